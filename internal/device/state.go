package device

import (
	"encoding/json"
	"fmt"
	"sort"
)

// State maps attributes to their current values. A missing key means the
// value has not been observed yet.
type State map[Attribute]Value

// Clone returns an independent copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for a, v := range s {
		out[a] = v
	}
	return out
}

// Equal reports whether both states hold the same attributes with equal values.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for a, v := range s {
		if ov, ok := other[a]; !ok || ov != v {
			return false
		}
	}
	return true
}

// UnmarshalJSON decodes an object keyed by attribute name. Unknown keys are
// skipped so stored history survives attribute additions.
func (s *State) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(State, len(raw))
	for name, v := range raw {
		a, ok := ParseAttribute(name)
		if !ok || v == nil {
			continue
		}
		val, err := a.Coerce(v)
		if err != nil {
			return err
		}
		out[a] = val
	}
	*s = out
	return nil
}

// Delta is a set of caller-initiated changes.
type Delta map[Attribute]Value

// DeltaFromMap converts a loosely typed object (for example a decoded JSON
// request body) into a Delta. Keys outside the settable allow-list are
// dropped without error.
func DeltaFromMap(m map[string]any) (Delta, error) {
	d := make(Delta, len(m))
	for name, raw := range m {
		a, ok := ParseAttribute(name)
		if !ok || !a.Settable() {
			continue
		}
		v, err := a.Coerce(raw)
		if err != nil {
			return nil, err
		}
		d[a] = v
	}
	return d, nil
}

// Update is the payload forwarded to the directory's set endpoint.
type Update map[string]any

// Snapshot is the externally visible view of a record after an operation.
type Snapshot struct {
	ID          ID                 `json:"id"`
	New         bool               `json:"new"`
	Provisional map[Attribute]bool `json:"provisional"`
	State       State              `json:"state"`
	Valid       bool               `json:"valid"`
}

// IsProvisional reports whether any attribute awaits device confirmation.
func (s Snapshot) IsProvisional() bool {
	for _, p := range s.Provisional {
		if p {
			return true
		}
	}
	return false
}

// ProvisionalAttributes lists the attributes awaiting confirmation, sorted.
func (s Snapshot) ProvisionalAttributes() []Attribute {
	var out []Attribute
	for a, p := range s.Provisional {
		if p {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String is a compact form for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf("device %s new=%t valid=%t provisional=%v", s.ID, s.New, s.Valid, s.ProvisionalAttributes())
}
