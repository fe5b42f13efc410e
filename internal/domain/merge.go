package domain

import (
	"encoding/json"
	"fmt"
)

// MergeRecord overlays the non-zero top-level fields of incoming onto
// existing. Fields incoming leaves empty keep their stored value, so a
// sparse sync payload never blanks data it did not carry.
func MergeRecord(existing, incoming Record) (Record, error) {
	if existing == nil {
		return incoming, nil
	}
	base, err := recordFields(existing)
	if err != nil {
		return nil, err
	}
	patch, err := recordFields(incoming)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if isZeroJSON(v) {
			continue
		}
		base[k] = v
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", incoming.Collection(), err)
	}
	return DecodeRecord(incoming.Collection(), raw)
}

func recordFields(rec Record) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Collection(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Collection(), err)
	}
	return fields, nil
}

func isZeroJSON(v json.RawMessage) bool {
	switch string(v) {
	case `null`, `""`, `0`, `[]`, `{}`, `"0001-01-01T00:00:00Z"`:
		return true
	}
	return false
}
