// Package resolve turns a stored object into its current view: scalars as
// stored, versioned properties as their latest entry.
package resolve

import (
	"bytes"
	"encoding/json"
	"sort"

	"tokenmeta/internal/metadata/models"
)

// Property is one resolved property. Entry is set for versioned properties,
// Scalar otherwise.
type Property struct {
	Name   string
	Scalar models.Value
	Entry  *models.Entry
}

func (p Property) Versioned() bool { return p.Entry != nil }

func (p Property) MarshalJSON() ([]byte, error) {
	if p.Entry != nil {
		return json.Marshal(p.Entry)
	}
	return json.Marshal(p.Scalar)
}

// View is an ordered set of resolved properties. It marshals to a JSON object
// with subject first and the remaining names sorted.
type View struct {
	props []Property
}

// Latest returns the entry with the highest sequence number. Among equal
// sequence numbers the one appended last wins.
func Latest(history []models.Entry) (models.Entry, bool) {
	if len(history) == 0 {
		return models.Entry{}, false
	}
	best := 0
	for i := 1; i < len(history); i++ {
		if history[i].SequenceNumber >= history[best].SequenceNumber {
			best = i
		}
	}
	return history[best], true
}

// Resolve builds the view of obj. A nil object resolves to an empty view.
func Resolve(obj *models.Object) View {
	if obj == nil {
		return View{}
	}
	props := make([]Property, 0, len(obj.Scalars)+len(obj.Entries))
	for name, v := range obj.Scalars {
		props = append(props, Property{Name: name, Scalar: v})
	}
	for name, history := range obj.Entries {
		latest, ok := Latest(history)
		if !ok {
			continue
		}
		e := latest
		props = append(props, Property{Name: name, Entry: &e})
	}
	sortProperties(props)
	return View{props: props}
}

func sortProperties(props []Property) {
	sort.Slice(props, func(i, j int) bool {
		a, b := props[i].Name, props[j].Name
		if a == models.PropertySubject || b == models.PropertySubject {
			return a == models.PropertySubject && b != models.PropertySubject
		}
		return a < b
	})
}

func (v View) Len() int { return len(v.props) }

func (v View) IsEmpty() bool { return len(v.props) == 0 }

func (v View) Properties() []Property { return v.props }

func (v View) Names() []string {
	names := make([]string, len(v.props))
	for i, p := range v.props {
		names[i] = p.Name
	}
	return names
}

func (v View) Get(name string) (Property, bool) {
	for _, p := range v.props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Subject returns the subject scalar, if present.
func (v View) Subject() string {
	p, ok := v.Get(models.PropertySubject)
	if !ok {
		return ""
	}
	s, _ := p.Scalar.AsString()
	return s
}

// Only narrows the view to a single property.
func (v View) Only(name string) View {
	p, ok := v.Get(name)
	if !ok {
		return View{}
	}
	return View{props: []Property{p}}
}

// Project keeps subject plus the named properties that exist. Unknown names
// are skipped.
func (v View) Project(names []string) View {
	want := make(map[string]struct{}, len(names)+1)
	want[models.PropertySubject] = struct{}{}
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := make([]Property, 0, len(want))
	for _, p := range v.props {
		if _, ok := want[p.Name]; ok {
			out = append(out, p)
		}
	}
	return View{props: out}
}

func (v View) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range v.props {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := p.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
