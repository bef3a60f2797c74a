package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/m4xw311/strudelgate/errors"
)

// ErrIncomplete marks a payload that has not finished streaming. The
// definition returned alongside it holds everything that has arrived so far.
var ErrIncomplete = errors.Sentinel("widget payload is incomplete")

// InvalidPayloadError is returned for payloads that can never become a valid
// definition, however much more of them arrives.
type InvalidPayloadError struct {
	Reason string
	Err    error
}

func (e *InvalidPayloadError) Error() string {
	if e.Err == nil {
		return "invalid widget payload: " + e.Reason
	}
	return fmt.Sprintf("invalid widget payload: %s: %v", e.Reason, e.Err)
}

func (e *InvalidPayloadError) Unwrap() error { return e.Err }

var multiSelectSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	s, err := jsonschema.For[Definition](nil)
	if err != nil {
		return nil, err
	}
	return s.Resolve(nil)
})

// DecodeMultiSelect turns a raw agent frame into a Definition. Truncated JSON
// is repaired and reported with ErrIncomplete, as are groups whose label has
// not arrived whole; those groups are left out. Incomplete definitions are
// marked Partial. Anything that does not match the form's schema is an
// *InvalidPayloadError.
func DecodeMultiSelect(data []byte) (Definition, error) {
	var def Definition
	incomplete := false
	var whole map[string]bool

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return def, &InvalidPayloadError{Reason: "not JSON", Err: err}
		}
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return def, &InvalidPayloadError{Reason: "not JSON", Err: err}
		}
		if err := json.Unmarshal([]byte(fixed), &raw); err != nil {
			return def, &InvalidPayloadError{Reason: "not JSON", Err: err}
		}
		whole = completeLabels(data)
		data = []byte(fixed)
		incomplete = true
	}

	schema, err := multiSelectSchema()
	if err != nil {
		return def, errors.Wrapf(err, "multi-select schema")
	}
	if err := schema.Validate(raw); err != nil {
		return def, &InvalidPayloadError{Reason: "schema violation", Err: err}
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, &InvalidPayloadError{Reason: "decode", Err: err}
	}

	if def.Groups != nil {
		groups := make([]GroupDef, 0, len(def.Groups))
		for _, g := range def.Groups {
			if g.Label == "" || (whole != nil && !whole[g.Label]) {
				incomplete = true
				continue
			}
			groups = append(groups, g)
		}
		def.Groups = groups
	}

	if incomplete {
		def.Partial = true
		return def, ErrIncomplete
	}
	return def, nil
}

type scope struct {
	object  bool
	wantKey bool
	key     string
}

// completeLabels lists the group labels of a truncated frame whose closing
// quote has arrived. Repair would otherwise turn a label cut off mid-string
// into a group of its own.
func completeLabels(data []byte) map[string]bool {
	labels := make(map[string]bool)
	dec := json.NewDecoder(bytes.NewReader(data))
	var stack []*scope
	for {
		tok, err := dec.Token()
		if err != nil {
			return labels
		}
		var top *scope
		if n := len(stack); n > 0 {
			top = stack[n-1]
		}
		if top != nil && top.object && top.wantKey {
			if key, ok := tok.(string); ok {
				top.key = key
				top.wantKey = false
				continue
			}
		}
		switch tok {
		case json.Delim('{'):
			stack = append(stack, &scope{object: true, wantKey: true})
			continue
		case json.Delim('['):
			stack = append(stack, &scope{})
			continue
		case json.Delim('}'), json.Delim(']'):
			stack = stack[:len(stack)-1]
		default:
			// root object > groups array > group object
			if label, ok := tok.(string); ok && len(stack) == 3 &&
				stack[0].key == "groups" && !stack[1].object && top.key == "label" {
				labels[label] = true
			}
		}
		if n := len(stack); n > 0 && stack[n-1].object {
			stack[n-1].wantKey = true
		}
	}
}
