package fleet

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

const (
	// UnknownAgentID is the key used for telemetry that carries no robot_id.
	// Every robot omitting its id lands on this one record.
	UnknownAgentID = "unknown"

	StatusOperational = "operational"
	StatusLowBattery  = "low_battery"
)

const (
	keyAgentID  = "robot_id"
	keyBattery  = "battery"
	keyPosition = "position"
	keyStatus   = "status"
	keyLastSeen = "last_seen"
)

var ErrNotObject = errors.New("telemetry payload must be a JSON object")

// Position is the robot's reported location. The monitor does not interpret it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is the latest telemetry reported by one robot.
//
// The payload schema is open: fields the monitor knows about are decoded into
// typed fields, everything else is kept verbatim in Extra. A known field whose
// value does not fit its Go type is also kept verbatim in Extra under its
// original key, so nothing a robot sends is lost. A robot_id that is not a
// JSON string is keyed by its literal text and kept in Extra too, where it
// takes precedence over AgentID on output.
type Record struct {
	AgentID  string
	Battery  *int
	Position *Position
	Status   string
	// LastSeen is stamped by Store.Ingest. A value sent by a robot is replaced.
	LastSeen time.Time

	Extra map[string]json.RawMessage
}

// Operational reports whether the record counts towards the operational
// gauge. Anything other than the exact "operational" status is treated as
// low battery, including unknown or misspelled values.
func (r Record) Operational() bool {
	return r.Status == StatusOperational
}

func (r Record) Clone() Record {
	out := r
	if r.Battery != nil {
		b := *r.Battery
		out.Battery = &b
	}
	if r.Position != nil {
		p := *r.Position
		out.Position = &p
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = bytes.Clone(v)
		}
	}
	return out
}

func (r *Record) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return ErrNotObject
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{}
	keep := func(k string, v json.RawMessage) {
		if r.Extra == nil {
			r.Extra = map[string]json.RawMessage{}
		}
		r.Extra[k] = v
	}

	for k, v := range raw {
		switch k {
		case keyAgentID:
			var isString bool
			r.AgentID, isString = decodeAgentID(v)
			if !isString {
				// echoed back as sent
				keep(k, v)
			}
		case keyBattery:
			var b int
			if isNull(v) || json.Unmarshal(v, &b) != nil {
				keep(k, v)
				continue
			}
			r.Battery = &b
		case keyPosition:
			p, ok := decodePosition(v)
			if !ok {
				keep(k, v)
				continue
			}
			r.Position = p
		case keyStatus:
			var s string
			if isNull(v) || json.Unmarshal(v, &s) != nil {
				keep(k, v)
				continue
			}
			r.Status = s
		case keyLastSeen:
			// server owned: Store.Ingest always overwrites it
			var ts time.Time
			if json.Unmarshal(v, &ts) == nil {
				r.LastSeen = ts.UTC()
			}
		default:
			keep(k, v)
		}
	}
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+5)
	maps.Copy(out, r.Extra)

	set := func(k string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[k] = data
		return nil
	}
	if _, verbatim := r.Extra[keyAgentID]; !verbatim {
		if err := set(keyAgentID, r.AgentID); err != nil {
			return nil, err
		}
	}
	if r.Battery != nil {
		if err := set(keyBattery, *r.Battery); err != nil {
			return nil, err
		}
	}
	if r.Position != nil {
		if err := set(keyPosition, r.Position); err != nil {
			return nil, err
		}
	}
	if r.Status != "" {
		if err := set(keyStatus, r.Status); err != nil {
			return nil, err
		}
	}
	if !r.LastSeen.IsZero() {
		if err := set(keyLastSeen, r.LastSeen.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// decodeAgentID accepts any JSON value as an id. Strings are used as-is,
// null is empty, and anything else keys the robot by its literal JSON text.
// The second result reports whether v was a string.
func decodeAgentID(v json.RawMessage) (string, bool) {
	if isNull(v) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	return strings.TrimSpace(string(v)), false
}

// decodePosition only accepts objects made of exactly numeric x and y.
// Anything richer is left to the caller to keep verbatim.
func decodePosition(v json.RawMessage) (*Position, bool) {
	var m map[string]float64
	if isNull(v) || json.Unmarshal(v, &m) != nil || len(m) != 2 {
		return nil, false
	}
	x, okX := m["x"]
	y, okY := m["y"]
	if !okX || !okY {
		return nil, false
	}
	return &Position{X: x, Y: y}, true
}
