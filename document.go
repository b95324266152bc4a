package orientdb

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/jonasrmichel/orientdb-android/filter"
)

// RID addresses a stored record.
type RID = filter.RID

/*
Document is one stored record: a JSON payload plus its identity and schema
class. The payload is kept as raw bytes and parsed lazily, so evaluating a
predicate over a record does not require a full unmarshal.
*/
type Document struct {
	rid   RID
	class string
	raw   []byte
	value *fastjson.Value
}

// NewDocument validates payload as JSON and wraps it. The identity is
// assigned when the document is stored.
func NewDocument(class string, payload []byte) (*Document, error) {
	v, err := fastjson.ParseBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid document payload: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("document payload must be a JSON object, got %s", v.Type())
	}
	raw := make([]byte, len(payload))
	copy(raw, payload)
	return &Document{class: class, raw: raw, value: v}, nil
}

func (d *Document) Identity() RID {
	return d.rid
}

func (d *Document) ClassName() string {
	return d.class
}

// Raw returns the document's JSON payload.
func (d *Document) Raw() []byte {
	return d.raw
}

// FieldValue resolves a dotted path into the payload. Absent paths report
// ok == false; the filter treats absent as a comparable nil, not an error.
func (d *Document) FieldValue(path string) (interface{}, bool) {
	v := d.value.Get(strings.Split(path, ".")...)
	if v == nil {
		return nil, false
	}
	return jsonToGo(v), true
}

// FieldNames lists the top-level field names, for the any()/all() wildcards.
func (d *Document) FieldNames() []string {
	obj, err := d.value.Object()
	if err != nil {
		return nil
	}
	names := make([]string, 0, obj.Len())
	obj.Visit(func(key []byte, _ *fastjson.Value) {
		names = append(names, string(key))
	})
	return names
}

// Map materializes the payload as nested Go values.
func (d *Document) Map() map[string]interface{} {
	m, _ := jsonToGo(d.value).(map[string]interface{})
	return m
}

func jsonToGo(v *fastjson.Value) interface{} {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]interface{}, len(arr))
		for i, elem := range arr {
			out[i] = jsonToGo(elem)
		}
		return out
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]interface{}, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			out[string(key)] = jsonToGo(val)
		})
		return out
	}
	return nil
}
