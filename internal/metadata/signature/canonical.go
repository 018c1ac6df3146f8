package signature

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"tokenmeta/internal/metadata/models"
)

// CBOR major types used for container heads.
const (
	majorArray = 4
	majorMap   = 5
)

// scalarMode encodes scalars the way deployed signers do: smallest integer
// form and the shortest float width that loses no precision.
var scalarMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		ShortestFloat: cbor.ShortestFloat16,
		NaNConvert:    cbor.NaNConvert7e00,
		InfConvert:    cbor.InfConvertFloat16,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	return em
}

// CanonicalMessage returns the hex digest an entry signature commits to.
// Each component is CBOR-encoded and hashed with BLAKE2b-256 independently;
// the hex digests are concatenated (subject, property, value, sequence
// number) and hashed once more.
func CanonicalMessage(subject, property string, entry models.Entry) (string, error) {
	parts := make([]byte, 0, 4*hex.EncodedLen(blake2b.Size256))
	components := []models.Value{
		models.String(subject),
		models.String(property),
		entry.Value,
		models.Int(entry.SequenceNumber),
	}
	for _, c := range components {
		encoded, err := encodeValue(nil, c)
		if err != nil {
			return "", fmt.Errorf("encode canonical component: %w", err)
		}
		sum := blake2b.Sum256(encoded)
		parts = hex.AppendEncode(parts, sum[:])
	}
	digest := blake2b.Sum256(parts)
	return hex.EncodeToString(digest[:]), nil
}

// encodeValue appends the CBOR encoding of v to dst. Object members follow
// JavaScript own-key enumeration order (see enumerationOrder); there is no
// other key sorting.
func encodeValue(dst []byte, v models.Value) ([]byte, error) {
	switch v.Kind() {
	case models.KindArray:
		items := v.Items()
		dst = appendHead(dst, majorArray, uint64(len(items)))
		for _, item := range items {
			var err error
			if dst, err = encodeValue(dst, item); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case models.KindObject:
		members := enumerationOrder(v.Members())
		dst = appendHead(dst, majorMap, uint64(len(members)))
		for _, m := range members {
			var err error
			if dst, err = encodeValue(dst, models.String(m.Key)); err != nil {
				return nil, err
			}
			if dst, err = encodeValue(dst, m.Value); err != nil {
				return nil, err
			}
		}
		return dst, nil
	}

	var scalar any
	switch v.Kind() {
	case models.KindNull:
		scalar = nil
	case models.KindBool:
		scalar, _ = v.AsBool()
	case models.KindString:
		scalar, _ = v.AsString()
	case models.KindInt:
		scalar, _ = v.AsInt()
	case models.KindFloat:
		scalar, _ = v.AsFloat()
	default:
		return nil, fmt.Errorf("unsupported value kind %d", v.Kind())
	}
	b, err := scalarMode.Marshal(scalar)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// enumerationOrder returns members the way a JSON.parse result enumerates
// them: array-index keys first in ascending numeric order, then every other
// key in insertion order. Signers hash that order, not the wire order.
func enumerationOrder(members []models.Member) []models.Member {
	type indexed struct {
		n uint32
		m models.Member
	}
	var (
		indices []indexed
		named   []models.Member
	)
	for _, m := range members {
		if n, ok := arrayIndex(m.Key); ok {
			indices = append(indices, indexed{n: n, m: m})
			continue
		}
		named = append(named, m)
	}
	if len(indices) == 0 {
		return members
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i].n < indices[j].n })
	out := make([]models.Member, 0, len(members))
	for _, ix := range indices {
		out = append(out, ix.m)
	}
	return append(out, named...)
}

// arrayIndex reports whether key is a canonical array index: a decimal in
// [0, 2^32-2] without leading zeros or sign.
func arrayIndex(key string) (uint32, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}

func appendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= 0xff:
		return append(dst, m|24, byte(n))
	case n <= 0xffff:
		return append(dst, m|25, byte(n>>8), byte(n))
	case n <= 0xffffffff:
		return append(dst, m|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(dst, m|27,
			byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}
