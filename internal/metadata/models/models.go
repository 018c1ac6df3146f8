package models

import (
	"fmt"
	"sort"

	"tokenmeta/pkg/platform/sentinel"
)

// PropertySubject is the identifying property every object carries.
const PropertySubject = "subject"

// NoHistory is the expected prior max sequence number of a property that has
// no entries yet.
const NoHistory int64 = -1

var wellKnown = map[string]struct{}{
	PropertySubject: {},
	"policy":        {},
	"preimage":      {},
	"name":          {},
	"description":   {},
	"ticker":        {},
	"decimals":      {},
	"url":           {},
	"logo":          {},
}

// IsWellKnown reports whether name is a scalar property that is overwritten in
// place instead of versioned.
func IsWellKnown(name string) bool {
	_, ok := wellKnown[name]
	return ok
}

type Signature struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Entry is one immutable version of a generic property.
type Entry struct {
	Value          Value       `json:"value"`
	SequenceNumber int64       `json:"sequenceNumber"`
	Signatures     []Signature `json:"signatures"`
}

// NamedEntry pairs an incoming entry with the property it targets.
type NamedEntry struct {
	Property string
	Entry    Entry
}

// EntryFromValue converts a schema-valid entry payload into an Entry.
func EntryFromValue(v Value) (Entry, error) {
	if v.Kind() != KindObject {
		return Entry{}, fmt.Errorf("entry must be an object, got %s", v.TypeName())
	}
	value, ok := v.Get("value")
	if !ok {
		return Entry{}, fmt.Errorf("entry has no value")
	}
	seqValue, _ := v.Get("sequenceNumber")
	seq, ok := seqValue.AsInt()
	if !ok {
		return Entry{}, fmt.Errorf("entry sequenceNumber must be an integer, got %s", seqValue.TypeName())
	}
	entry := Entry{Value: value, SequenceNumber: seq, Signatures: []Signature{}}
	sigs, _ := v.Get("signatures")
	for i, item := range sigs.Items() {
		pk, _ := item.Get("publicKey")
		sig, _ := item.Get("signature")
		pkStr, okPK := pk.AsString()
		sigStr, okSig := sig.AsString()
		if !okPK || !okSig {
			return Entry{}, fmt.Errorf("signature %d must carry string publicKey and signature", i)
		}
		entry.Signatures = append(entry.Signatures, Signature{PublicKey: pkStr, Signature: sigStr})
	}
	return entry, nil
}

// MaxSequence returns the highest sequence number in history, or NoHistory.
func MaxSequence(history []Entry) int64 {
	max := NoHistory
	for _, e := range history {
		if e.SequenceNumber > max {
			max = e.SequenceNumber
		}
	}
	return max
}

// Object is a stored metadata object. Scalars hold the well-known properties
// (including subject), Entries the version history of every other property in
// append order.
type Object struct {
	Subject string             `json:"subject"`
	Scalars map[string]Value   `json:"scalars"`
	Entries map[string][]Entry `json:"entries"`
}

func NewObject(subject string) *Object {
	return &Object{
		Subject: subject,
		Scalars: map[string]Value{PropertySubject: String(subject)},
		Entries: map[string][]Entry{},
	}
}

// Has reports whether the object carries the property in either form.
func (o *Object) Has(name string) bool {
	if _, ok := o.Scalars[name]; ok {
		return true
	}
	_, ok := o.Entries[name]
	return ok
}

// PropertyNames lists subject first, then the remaining names sorted.
func (o *Object) PropertyNames() []string {
	names := make([]string, 0, len(o.Scalars)+len(o.Entries))
	for name := range o.Scalars {
		if name != PropertySubject {
			names = append(names, name)
		}
	}
	for name := range o.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{PropertySubject}, names...)
}

// Clone copies the maps and histories so the copy can be mutated freely.
// Values are immutable and shared.
func (o *Object) Clone() *Object {
	out := &Object{
		Subject: o.Subject,
		Scalars: make(map[string]Value, len(o.Scalars)),
		Entries: make(map[string][]Entry, len(o.Entries)),
	}
	for k, v := range o.Scalars {
		out.Scalars[k] = v
	}
	for k, history := range o.Entries {
		out.Entries[k] = append([]Entry(nil), history...)
	}
	return out
}

// Append adds an entry to a property history if the current max sequence
// number still equals the expected one.
type Append struct {
	Property    string
	Entry       Entry
	ExpectedMax int64
}

// Update is the store-level mutation of an existing object: scalar overwrites
// plus conditional appends.
type Update struct {
	Set     map[string]Value
	Appends []Append
}

func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Appends) == 0
}

// Properties lists the touched property names, sorted.
func (u Update) Properties() []string {
	names := make([]string, 0, len(u.Set)+len(u.Appends))
	for name := range u.Set {
		names = append(names, name)
	}
	for _, a := range u.Appends {
		names = append(names, a.Property)
	}
	sort.Strings(names)
	return names
}

// Apply mutates o in place. It returns sentinel.ErrConflict, leaving o
// untouched, when any append finds a history that moved since it was read.
func (o *Object) Apply(u Update) error {
	for _, a := range u.Appends {
		if MaxSequence(o.Entries[a.Property]) != a.ExpectedMax {
			return fmt.Errorf("property %s changed concurrently: %w", a.Property, sentinel.ErrConflict)
		}
	}
	if o.Scalars == nil {
		o.Scalars = map[string]Value{}
	}
	if o.Entries == nil {
		o.Entries = map[string][]Entry{}
	}
	for name, v := range u.Set {
		o.Scalars[name] = v
	}
	for _, a := range u.Appends {
		o.Entries[a.Property] = append(o.Entries[a.Property], a.Entry)
	}
	return nil
}
