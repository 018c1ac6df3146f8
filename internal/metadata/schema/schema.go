// Package schema validates metadata payloads against the JSON Schema
// documents in schemas/. Validation never stops at the first problem: every
// violation in the payload is reported.
package schema

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tokenmeta/internal/metadata/models"
)

// Kind selects the payload shape being validated.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindQuery  Kind = "query"
)

// Violation is one failed constraint. Path is a JSON pointer into the payload.
type Violation struct {
	Path    string `json:"path"`
	Keyword string `json:"keyword"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Path, v.Keyword, v.Message)
}

const (
	KeywordRequired             = "required"
	KeywordType                 = "type"
	KeywordMinLength            = "minLength"
	KeywordMaxLength            = "maxLength"
	KeywordMinimum              = "minimum"
	KeywordMaximum              = "maximum"
	KeywordMinItems             = "minItems"
	KeywordFormat               = "format"
	KeywordEncoding             = "encoding"
	KeywordEnum                 = "enum"
	KeywordAdditionalProperties = "additionalProperties"
)

const baseURL = "https://tokenmeta.local/schemas/"

//go:embed schemas/*.json
var documents embed.FS

var (
	base16RE = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	base64RE = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)?$`)
	printer  = message.NewPrinter(language.English)
	compiled = mustCompile()
)

func mustCompile() map[Kind]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	c.AssertContent()
	c.RegisterContentEncoding(&jsonschema.Decoder{Name: "base16", Decode: decodeBase16})
	c.RegisterContentEncoding(&jsonschema.Decoder{Name: "base64", Decode: decodeBase64})

	err := fs.WalkDir(documents, "schemas", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := documents.ReadFile(path)
		if err != nil {
			return err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return c.AddResource(baseURL+strings.TrimPrefix(path, "schemas/"), doc)
	})
	if err != nil {
		panic(fmt.Sprintf("schema: load documents: %v", err))
	}

	out := make(map[Kind]*jsonschema.Schema, 3)
	for _, k := range []Kind{KindCreate, KindUpdate, KindQuery} {
		out[k] = c.MustCompile(baseURL + string(k) + ".json")
	}
	return out
}

// Validate checks payload against the rules for kind. A nil result means the
// payload is valid.
func Validate(kind Kind, payload models.Value) []Violation {
	sch, ok := compiled[kind]
	if !ok {
		return []Violation{{Keyword: KeywordType, Message: fmt.Sprintf("unknown payload kind %q", kind)}}
	}
	raw, err := payload.MarshalJSON()
	if err != nil {
		return []Violation{{Keyword: KeywordType, Message: err.Error()}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []Violation{{Keyword: KeywordType, Message: err.Error()}}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Violation{{Keyword: KeywordType, Message: err.Error()}}
	}
	var out []Violation
	collect(verr, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// collect flattens the error tree. Only leaves name a failed keyword; inner
// nodes are $ref and schema wrappers.
func collect(e *jsonschema.ValidationError, out *[]Violation) {
	if len(e.Causes) > 0 {
		for _, c := range e.Causes {
			collect(c, out)
		}
		return
	}
	*out = append(*out, violations(e.InstanceLocation, e.ErrorKind)...)
}

func violations(loc []string, k jsonschema.ErrorKind) []Violation {
	path := pointer(loc)
	one := func(keyword, msg string) []Violation {
		return []Violation{{Path: path, Keyword: keyword, Message: msg}}
	}
	switch k := k.(type) {
	case *kind.Type:
		return one(KeywordType, "must be "+strings.Join(k.Want, " or "))
	case *kind.Required:
		out := make([]Violation, len(k.Missing))
		for i, name := range k.Missing {
			out[i] = Violation{Path: path, Keyword: KeywordRequired, Message: fmt.Sprintf("must have required property '%s'", name)}
		}
		return out
	case *kind.AdditionalProperties:
		out := make([]Violation, len(k.Properties))
		for i := range k.Properties {
			out[i] = Violation{Path: path, Keyword: KeywordAdditionalProperties, Message: "must NOT have additional properties"}
		}
		return out
	case *kind.FalseSchema:
		// a forbidden named property, such as subject on update
		return []Violation{{Path: pointer(loc[:max(len(loc)-1, 0)]), Keyword: KeywordAdditionalProperties, Message: "must NOT have additional properties"}}
	case *kind.MinLength:
		return one(KeywordMinLength, fmt.Sprintf("must NOT have fewer than %d characters", k.Want))
	case *kind.MaxLength:
		return one(KeywordMaxLength, fmt.Sprintf("must NOT have more than %d characters", k.Want))
	case *kind.Minimum:
		return one(KeywordMinimum, "must be >= "+k.Want.RatString())
	case *kind.Maximum:
		return one(KeywordMaximum, "must be <= "+k.Want.RatString())
	case *kind.MinItems:
		return one(KeywordMinItems, fmt.Sprintf("must NOT have fewer than %d items", k.Want))
	case *kind.Enum:
		return one(KeywordEnum, "must be equal to one of the allowed values")
	case *kind.Format:
		return one(KeywordFormat, fmt.Sprintf("must match format %q", k.Want))
	case *kind.ContentEncoding:
		return one(KeywordEncoding, fmt.Sprintf("invalid %s-encoded data", k.Want))
	default:
		keyword := ""
		if kp := k.KeywordPath(); len(kp) > 0 {
			keyword = kp[len(kp)-1]
		}
		return one(keyword, k.LocalizedString(printer))
	}
}

// decodeBase16 accepts odd-length digits; only the alphabet is checked.
func decodeBase16(s string) ([]byte, error) {
	if !base16RE.MatchString(s) {
		return nil, errors.New("invalid base16-encoded data")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// decodeBase64 requires canonical padding and rejects embedded newlines,
// which the standard decoder would skip.
func decodeBase64(s string) ([]byte, error) {
	if !base64RE.MatchString(s) {
		return nil, errors.New("invalid base64-encoded data")
	}
	return base64.StdEncoding.DecodeString(s)
}

func pointer(loc []string) string {
	var b strings.Builder
	for _, tok := range loc {
		tok = strings.ReplaceAll(tok, "~", "~0")
		tok = strings.ReplaceAll(tok, "/", "~1")
		b.WriteString("/")
		b.WriteString(tok)
	}
	return b.String()
}
