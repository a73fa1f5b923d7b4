package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatecheck/internal/mailbox"
	"gatecheck/internal/types"
)

type fixture struct {
	mb  *mailbox.Mailbox
	in  *Integrator
	dir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	mb := mailbox.New(filepath.Join(dir, "gate_request.md"), filepath.Join(dir, "gate_response.json"))
	in := NewIntegrator(mb, filepath.Join(dir, "vision_ledger.json"), "vision_gathering")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	in.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return fixture{mb: mb, in: in, dir: dir}
}

func TestIntegrate_NoResponse(t *testing.T) {
	f := newFixture(t)

	ok, err := f.in.Integrate()
	require.NoError(t, err)
	assert.False(t, ok)

	_, statErr := os.Stat(f.in.Path())
	assert.True(t, os.IsNotExist(statErr), "ledger must not be created without a response")
}

func TestIntegrate_RoundTrip(t *testing.T) {
	f := newFixture(t)
	_, err := f.mb.WriteResponse([]string{"a", "b"}, types.DecisionProceed, "c")
	require.NoError(t, err)

	ok, err := f.in.Integrate()
	require.NoError(t, err)
	require.True(t, ok)

	l, err := Load(f.in.Path())
	require.NoError(t, err)
	assert.Equal(t, types.StatusProceeding, l.Status)
	assert.Equal(t, "vision_gathering", l.CurrentPhase)
	require.Len(t, l.Responses.GateResponses, 1)

	entry := l.Responses.GateResponses[l.GateKeys()[0]]
	assert.Equal(t, []string{"a", "b"}, entry.Responses)
	assert.Equal(t, "proceed", entry.Decision)
	assert.Equal(t, "c", entry.Context)
	assert.Equal(t, SourceGateCollaboration, entry.Source)
}

func TestIntegrate_NotIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.mb.WriteResponse([]string{"Keep it domain agnostic", "avoid scope drift"}, types.DecisionModify, "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := f.in.Integrate()
		require.NoError(t, err)
		require.True(t, ok)
	}

	l, err := Load(f.in.Path())
	require.NoError(t, err)

	keys := l.GateKeys()
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])

	want := []string{
		"User wants a domain-agnostic tool",
		"Key problem to solve: scope drift",
		"User wants a domain-agnostic tool",
		"Key problem to solve: scope drift",
	}
	if diff := cmp.Diff(want, l.Insights); diff != "" {
		t.Errorf("insights mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.StatusModifying, l.Status)
}

func TestIntegrate_SameInstantKeysStayDistinct(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.in.SetClock(func() time.Time { return fixed })

	_, err := f.mb.WriteResponse(nil, types.DecisionStop, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.in.Integrate()
		require.NoError(t, err)
	}

	l, err := Load(f.in.Path())
	require.NoError(t, err)
	assert.Len(t, l.Responses.GateResponses, 3)
	assert.Equal(t, types.StatusPaused, l.Status)
}

func TestIntegrate_UnrecognisedDecisionKeepsStatus(t *testing.T) {
	f := newFixture(t)
	raw := `{"user_responses":["x"],"user_decision":"maybe","additional_context":"","timestamp":1}`
	require.NoError(t, os.WriteFile(f.mb.ResponsePath(), []byte(raw), 0644))

	ok, err := f.in.Integrate()
	require.NoError(t, err)
	require.True(t, ok)

	l, err := Load(f.in.Path())
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, l.Status)
	assert.Len(t, l.Responses.GateResponses, 1)
}

func TestIntegrate_MalformedResponse(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.mb.ResponsePath(), []byte("not json"), 0644))

	ok, err := f.in.Integrate()
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.IntegrationFailure))

	_, statErr := os.Stat(f.in.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestIntegrate_CorruptLedgerLeftUntouched(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.in.Path(), []byte("{broken"), 0644))
	_, err := f.mb.WriteResponse([]string{"a"}, types.DecisionProceed, "")
	require.NoError(t, err)

	ok, err := f.in.Integrate()
	assert.False(t, ok)
	assert.True(t, types.IsKind(err, types.IntegrationFailure))

	data, err := os.ReadFile(f.in.Path())
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(data))
}

func TestLedger_PreservesUnknownPhases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vision_ledger.json")
	raw := `{
  "status": "in_progress",
  "started_at": "2026-01-01T00:00:00Z",
  "current_phase": "vision_gathering",
  "responses": {
    "vision_core": {"goal": "ship"},
    "gate_responses": {},
    "technical_constraints": {"lang": "go"}
  },
  "insights": ["existing"],
  "ambiguities": ["unclear deadline"]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.Save(path))

	var doc map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	responses := doc["responses"].(map[string]any)
	assert.Equal(t, map[string]any{"lang": "go"}, responses["technical_constraints"])
	assert.Equal(t, map[string]any{"goal": "ship"}, responses["vision_core"])
	assert.Equal(t, []any{"existing"}, doc["insights"])
	assert.Equal(t, []any{"unclear deadline"}, doc["ambiguities"])
}

func TestLedger_NewWireShape(t *testing.T) {
	l := New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "vision_gathering")
	data, err := json.Marshal(l)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "in_progress", doc["status"])
	assert.Equal(t, map[string]any{
		"vision_core":    map[string]any{},
		"gate_responses": map[string]any{},
	}, doc["responses"])
	assert.Equal(t, []any{}, doc["insights"])
}

func TestDeriveInsights(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		want    []string
	}{
		{"none", []string{"nothing relevant"}, []string{}},
		{"case insensitive", []string{"DOMAIN AGNOSTIC please"}, []string{"User wants a domain-agnostic tool"}},
		{
			"several in one answer",
			[]string{"Scope drift and safety worry me"},
			[]string{"Key problem to solve: scope drift", "Safety is a first-class requirement for the user"},
		},
		{
			"duplicates across answers",
			[]string{"safety", "safety again"},
			[]string{"Safety is a first-class requirement for the user", "Safety is a first-class requirement for the user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, DeriveInsights(tt.answers)); diff != "" {
				t.Errorf("DeriveInsights() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
