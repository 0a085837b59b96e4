package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContextType identifies a scoping dimension under which a principal's
// permitted resource ids are listed.
type ContextType string

const (
	// ContextCellGroup scopes access to specific cell groups.
	ContextCellGroup ContextType = "cell_group_ids"
	// ContextMinistry scopes access to specific ministries.
	ContextMinistry ContextType = "ministry_ids"
	// ContextDistrict scopes access to specific districts.
	ContextDistrict ContextType = "district_ids"
)

// Valid reports whether the context type is a known scoping dimension.
func (t ContextType) Valid() bool {
	switch t {
	case ContextCellGroup, ContextMinistry, ContextDistrict:
		return true
	}
	return false
}

// ParseContextType parses the wire key of a scoping dimension.
func ParseContextType(s string) (ContextType, bool) {
	t := ContextType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, true
	}
	return "", false
}

// ContextMap maps a scoping dimension to the resource ids a principal
// may act on. Membership tests are exact string matches.
type ContextMap map[ContextType][]string

// UnmarshalJSON accepts both `{"ministry_ids": ["x"]}` and the bare
// scalar form `{"ministry_ids": "x"}` that older records may hold.
func (m *ContextMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ContextMap, len(raw))
	for key, value := range raw {
		ids, err := decodeIDValue(value)
		if err != nil {
			return fmt.Errorf("rbac: context key %q: %w", key, err)
		}
		out[ContextType(key)] = ids
	}
	*m = out
	return nil
}

func decodeIDValue(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return []string{scalar}, nil
	}
	// Numeric ids survive as their decimal representation.
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return []string{number.String()}, nil
	}
	var numbers []json.Number
	if err := json.Unmarshal(raw, &numbers); err == nil {
		ids := make([]string, len(numbers))
		for i, n := range numbers {
			ids[i] = n.String()
		}
		return ids, nil
	}
	return nil, fmt.Errorf("unsupported id value %s", string(raw))
}

// Contains reports whether id is listed under the given dimension.
func (m ContextMap) Contains(t ContextType, id string) bool {
	if m == nil {
		return false
	}
	for _, candidate := range m[t] {
		if candidate == id {
			return true
		}
	}
	return false
}

// HasAny reports whether any of the given dimensions holds at least one id.
func (m ContextMap) HasAny(types ...ContextType) bool {
	for _, t := range types {
		if len(m[t]) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, preserving nil.
func (m ContextMap) Clone() ContextMap {
	if m == nil {
		return nil
	}
	out := make(ContextMap, len(m))
	for t, ids := range m {
		out[t] = append([]string(nil), ids...)
	}
	return out
}

// NewContextMap builds a single-dimension map from trimmed, deduplicated ids.
func NewContextMap(t ContextType, ids []string) ContextMap {
	seen := make(map[string]struct{}, len(ids))
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	if len(clean) == 0 {
		return nil
	}
	return ContextMap{t: clean}
}
