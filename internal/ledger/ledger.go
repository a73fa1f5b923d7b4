// Package ledger holds the vision ledger: the durable JSON document that
// accumulates every resolved gate response and the insights derived from it.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gatecheck/internal/types"
)

// SourceGateCollaboration tags entries written by the integrator.
const SourceGateCollaboration = "gate_collaboration"

// TimestampLayout is the ISO-8601 layout used for entry keys and timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is the vision ledger document.
type Ledger struct {
	Status       types.LedgerStatus `json:"status"`
	StartedAt    string             `json:"started_at"`
	CurrentPhase string             `json:"current_phase"`
	Responses    Responses          `json:"responses"`
	Insights     []string           `json:"insights"`
	Ambiguities  []string           `json:"ambiguities"`
}

// GateEntry is one integrated gate response.
type GateEntry struct {
	Responses []string `json:"responses"`
	Decision  string   `json:"decision"`
	Context   string   `json:"context"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

// Responses maps phase names to sub-maps. The two phases the protocol knows
// are typed; any other phase is carried through untouched.
type Responses struct {
	VisionCore    map[string]any
	GateResponses map[string]GateEntry
	Other         map[string]json.RawMessage
}

const (
	phaseVisionCore    = "vision_core"
	phaseGateResponses = "gate_responses"
)

// MarshalJSON flattens the typed phases and the carried ones into one object.
func (r Responses) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Other)+2)
	for k, v := range r.Other {
		out[k] = v
	}
	vc := r.VisionCore
	if vc == nil {
		vc = map[string]any{}
	}
	gr := r.GateResponses
	if gr == nil {
		gr = map[string]GateEntry{}
	}
	out[phaseVisionCore] = vc
	out[phaseGateResponses] = gr
	return json.Marshal(out)
}

// UnmarshalJSON splits the object into typed and carried phases.
func (r *Responses) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.VisionCore = map[string]any{}
	r.GateResponses = map[string]GateEntry{}
	r.Other = map[string]json.RawMessage{}

	for k, v := range raw {
		switch k {
		case phaseVisionCore:
			if err := json.Unmarshal(v, &r.VisionCore); err != nil {
				return fmt.Errorf("responses.%s: %w", k, err)
			}
			if r.VisionCore == nil {
				r.VisionCore = map[string]any{}
			}
		case phaseGateResponses:
			if err := json.Unmarshal(v, &r.GateResponses); err != nil {
				return fmt.Errorf("responses.%s: %w", k, err)
			}
			if r.GateResponses == nil {
				r.GateResponses = map[string]GateEntry{}
			}
		default:
			r.Other[k] = v
		}
	}
	return nil
}

// New returns a fresh ledger started at now.
func New(now time.Time, phase string) *Ledger {
	return &Ledger{
		Status:       types.StatusInProgress,
		StartedAt:    now.Format(TimestampLayout),
		CurrentPhase: phase,
		Responses: Responses{
			VisionCore:    map[string]any{},
			GateResponses: map[string]GateEntry{},
			Other:         map[string]json.RawMessage{},
		},
		Insights:    []string{},
		Ambiguities: []string{},
	}
}

// GateKeys returns the gate response keys in chronological order.
func (l *Ledger) GateKeys() []string {
	keys := make([]string, 0, len(l.Responses.GateResponses))
	for k := range l.Responses.GateResponses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads a ledger. A missing file reports os.ErrNotExist through the error chain.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	if l.Responses.GateResponses == nil {
		l.Responses = Responses{
			VisionCore:    map[string]any{},
			GateResponses: map[string]GateEntry{},
			Other:         map[string]json.RawMessage{},
		}
	}
	if l.Insights == nil {
		l.Insights = []string{}
	}
	if l.Ambiguities == nil {
		l.Ambiguities = []string{}
	}
	return &l, nil
}

// Save writes the ledger through a temp file and rename.
func (l *Ledger) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
