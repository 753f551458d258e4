package domain

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// field binds a JSON object key to the Go value it decodes into.
type field struct {
	name   string
	target any // pointer
}

// decodeObject decodes a JSON object key by key. Keys listed in fields are
// decoded into their targets. A key whose value does not fit its target stays
// raw in the returned extras and is reported as malformed, so a single bad
// value never fails the whole record. Explicit nulls are kept as extras too,
// which lets encodeObject write them back unchanged.
func decodeObject(data []byte, fields []field) (map[string]json.RawMessage, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	var malformed []string
	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok || isNull(v) {
			continue
		}
		if err := json.Unmarshal(v, f.target); err != nil {
			reflect.ValueOf(f.target).Elem().SetZero()
			malformed = append(malformed, f.name)
			continue
		}
		delete(raw, f.name)
	}

	if len(raw) == 0 {
		raw = nil
	}
	return raw, malformed, nil
}

// encodeObject is the inverse of decodeObject: extras first, then every
// non-zero typed field on top.
func encodeObject(extra map[string]json.RawMessage, fields []field) ([]byte, error) {
	out := make(map[string]any, len(extra)+len(fields))
	for k, v := range extra {
		out[k] = v
	}
	for _, f := range fields {
		if isEmpty(f.target) {
			continue
		}
		out[f.name] = f.target
	}
	return json.Marshal(out)
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func isEmpty(ptr any) bool {
	v := reflect.ValueOf(ptr).Elem()
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
