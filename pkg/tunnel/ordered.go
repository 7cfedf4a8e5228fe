package tunnel

import (
	"bytes"
	"encoding/json"
)

// Node is anything that lowers to an ordered list of fields.
type Node interface {
	Fields() []Field
}

// Field is one key of a JSON object. Value is a scalar, a slice of scalars,
// a Node or a slice of Objects.
type Field struct {
	Key   string
	Value any
}

// Object is an ordered JSON object.
type Object []Field

// Fields implements Node.
func (o Object) Fields() []Field { return o }

// MarshalJSON writes the fields in order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v := f.Value
		if n, ok := v.(Node); ok {
			v = Object(n.Fields())
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// fields accumulates Fields, skipping unset optional values.
type fields []Field

func (f *fields) set(key string, v any) {
	*f = append(*f, Field{Key: key, Value: v})
}

func (f *fields) str(key, v string) {
	if v != "" {
		f.set(key, v)
	}
}

func (f *fields) num(key string, v int) {
	if v != 0 {
		f.set(key, v)
	}
}

func (f *fields) flag(key string, v bool) {
	if v {
		f.set(key, v)
	}
}

func lowerAll[T Node](items []T) []Object {
	out := make([]Object, 0, len(items))
	for _, it := range items {
		out = append(out, Object(it.Fields()))
	}
	return out
}

// Render marshals node as indented JSON with keys in field order.
func Render(node Node) ([]byte, error) {
	compact, err := json.Marshal(Object(node.Fields()))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
