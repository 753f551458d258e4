package jsonfile

import (
	"encoding/json"
	"fmt"
)

// LoadLibrary reads an entity library file of the form
//
//	{"<collection>": {"<id>": {...}}, "last_updated": "...", "total_count": n}
//
// found is false when the file does not exist.
func LoadLibrary[T any](f *Files, name, collection string) (records map[string]T, found bool, err error) {
	var doc map[string]json.RawMessage
	found, err = f.ReadJSON(name, &doc)
	if err != nil || !found {
		return map[string]T{}, found, err
	}
	records = make(map[string]T)
	if raw, ok := doc[collection]; ok && !isNullRaw(raw) {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, true, fmt.Errorf("decode %s.%s: %w", name, collection, err)
		}
	}
	return records, true, nil
}

// SaveLibrary replaces an entity library file. Records are written keyed by
// ID in sorted order, with last_updated and total_count refreshed.
func SaveLibrary[T any](f *Files, name, collection string, records map[string]T) error {
	if records == nil {
		records = map[string]T{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	doc := f.existingDoc(name)
	doc[collection] = raw
	doc[lastUpdatedKey], _ = json.Marshal(f.Stamp())
	doc["total_count"], _ = json.Marshal(len(records))
	return f.WriteJSON(name, doc)
}
