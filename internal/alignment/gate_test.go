package alignment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gatecheck/internal/logging"
)

func newTestGate(t *testing.T) (*Gate, string) {
	t.Helper()
	dir := t.TempDir()
	g := NewGate(GateConfig{
		CharterPath: filepath.Join(dir, "vision_charter.json"),
		LogPath:     filepath.Join(dir, "alignment_log.jsonl"),
	})
	return g, dir
}

func TestEvaluate_Perfect(t *testing.T) {
	g, _ := newTestGate(t)
	c := g.Evaluate("Rename a local variable", "edit")

	assert.Equal(t, LevelPerfect, c.Level)
	assert.Equal(t, 0.9, c.Confidence)
	assert.Empty(t, c.Concerns)
	assert.False(t, c.RequiresUserInput)
	assert.False(t, c.Blocking)
	assert.NotEmpty(t, c.ID)
}

func TestEvaluate_ScenarioA(t *testing.T) {
	g, _ := newTestGate(t)
	c := g.Evaluate("Delete temp files", ActionFileDeletion, WithRiskLevel("high"), WithToolsUsed())

	if diff := cmp.Diff([]DriftType{DriftRiskThresholdExceeded, DriftUserPreferenceIgnored}, c.DriftTypes); diff != "" {
		t.Errorf("drift types mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, c.Concerns, 2)
	assert.Len(t, c.Recommendations, 2)
	assert.Equal(t, LevelConcerning, c.Level)
	assert.Equal(t, 0.8, c.Confidence)
	assert.True(t, c.RequiresUserInput)
	assert.False(t, c.Blocking)
}

func TestEvaluate_ScenarioB(t *testing.T) {
	g, _ := newTestGate(t)
	c := g.Evaluate("Delete temp files", ActionFileDeletion,
		WithRiskLevel("high"),
		WithSafetyChecksPassed(false),
		WithProjectPlanAligned(false),
	)

	want := []DriftType{
		DriftRiskThresholdExceeded,
		DriftUserPreferenceIgnored,
		DriftSafetyViolation,
		DriftProjectPlanDeviation,
	}
	if diff := cmp.Diff(want, c.DriftTypes); diff != "" {
		t.Errorf("drift types mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, c.Concerns, 4)
	assert.Equal(t, LevelCritical, c.Level)
	assert.Equal(t, 0.9, c.Confidence)
	assert.True(t, c.RequiresUserInput)
	assert.True(t, c.Blocking)
}

func TestEvaluate_Rules(t *testing.T) {
	tests := []struct {
		name       string
		actionType string
		opts       []EvalOption
		charter    func(*Charter)
		wantDrift  []DriftType
		wantLevel  Level
	}{
		{
			name:       "risk assessment satisfies risk rule",
			actionType: "edit",
			opts:       []EvalOption{WithRiskLevel("critical"), WithToolsUsed(ToolRiskAssessment)},
			wantDrift:  []DriftType{},
			wantLevel:  LevelPerfect,
		},
		{
			name:       "risk rule off when charter does not require profiles",
			actionType: "edit",
			opts:       []EvalOption{WithRiskLevel("high")},
			charter:    func(c *Charter) { c.RequiresRiskProfiles = false },
			wantDrift:  []DriftType{},
			wantLevel:  LevelPerfect,
		},
		{
			name:       "medium risk ignored",
			actionType: "edit",
			opts:       []EvalOption{WithRiskLevel("medium")},
			wantDrift:  []DriftType{},
			wantLevel:  LevelPerfect,
		},
		{
			name:       "single preference concern is good",
			actionType: ActionMajorRefactor,
			wantDrift:  []DriftType{DriftUserPreferenceIgnored},
			wantLevel:  LevelGood,
		},
		{
			name:       "preferences not applied is good",
			actionType: "edit",
			opts:       []EvalOption{WithUserPreferencesApplied(false)},
			wantDrift:  []DriftType{DriftUserPreferenceIgnored},
			wantLevel:  LevelGood,
		},
		{
			name:       "approval rule off when charter allows",
			actionType: ActionSystemChange,
			charter:    func(c *Charter) { c.WantsApprovalBeforeChanges = false },
			wantDrift:  []DriftType{},
			wantLevel:  LevelPerfect,
		},
		{
			name:       "safety failure ignored without safety_first",
			actionType: "edit",
			opts:       []EvalOption{WithSafetyChecksPassed(false)},
			charter:    func(c *Charter) { c.SafetyFirst = false },
			wantDrift:  []DriftType{},
			wantLevel:  LevelPerfect,
		},
		{
			name:       "single non-preference concern is concerning",
			actionType: ActionBypassValidation,
			wantDrift:  []DriftType{DriftToolBypassAttempt},
			wantLevel:  LevelConcerning,
		},
		{
			name:       "two preference concerns are concerning",
			actionType: ActionFileDeletion,
			opts:       []EvalOption{WithUserPreferencesApplied(false)},
			wantDrift:  []DriftType{DriftUserPreferenceIgnored, DriftUserPreferenceIgnored},
			wantLevel:  LevelConcerning,
		},
		{
			name:       "three concerns are critical",
			actionType: ActionDirectFileChange,
			opts:       []EvalOption{WithProjectPlanAligned(false), WithUserPreferencesApplied(false)},
			wantDrift:  []DriftType{DriftProjectPlanDeviation, DriftUserPreferenceIgnored, DriftToolBypassAttempt},
			wantLevel:  LevelCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(t)
			if tt.charter != nil {
				c := g.Charter()
				tt.charter(&c)
				require.NoError(t, g.UpdateCharter(c))
			}

			c := g.Evaluate("action", tt.actionType, tt.opts...)
			if diff := cmp.Diff(tt.wantDrift, c.DriftTypes); diff != "" {
				t.Errorf("drift types mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantLevel, c.Level)
		})
	}
}

func TestEvaluate_AppendsLog(t *testing.T) {
	g, dir := newTestGate(t)
	g.Evaluate("one", "edit")
	g.Evaluate("two", ActionFileDeletion)

	f, err := os.Open(filepath.Join(dir, "alignment_log.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var descs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var c Check
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &c))
		descs = append(descs, c.ActionDescription)
	}
	assert.Equal(t, []string{"one", "two"}, descs)
}

func TestEvaluate_LogFailureIsReportedNotRaised(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logging.UseCore(core)
	defer restore()

	dir := t.TempDir()
	// The log path is a directory, so appends fail.
	logPath := filepath.Join(dir, "alignment_log.jsonl")
	require.NoError(t, os.Mkdir(logPath, 0755))

	g := NewGate(GateConfig{CharterPath: filepath.Join(dir, "c.json"), LogPath: logPath})
	c := g.Evaluate("still evaluated", "edit")

	assert.Equal(t, LevelPerfect, c.Level)
	assert.Len(t, g.History(), 1)
	assert.Equal(t, 1, logs.FilterMessageSnippet("Failed to append alignment log").Len())
}

func TestHistory_EvictsOldest(t *testing.T) {
	g, _ := newTestGate(t)
	for i := 0; i < DefaultHistorySize+5; i++ {
		g.Evaluate(fmt.Sprintf("action-%d", i), "edit")
	}

	h := g.History()
	require.Len(t, h, DefaultHistorySize)
	assert.Equal(t, "action-5", h[0].ActionDescription)
	assert.Equal(t, fmt.Sprintf("action-%d", DefaultHistorySize+4), h[len(h)-1].ActionDescription)
}

func TestSummary_Score(t *testing.T) {
	g, _ := newTestGate(t)
	g.Evaluate("p1", "edit")
	g.Evaluate("p2", "edit")
	g.Evaluate("g1", ActionMajorRefactor)

	s := g.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 93.33, s.OverallScore)
	assert.Equal(t, 2, s.Levels[LevelPerfect])
	assert.Equal(t, 1, s.Levels[LevelGood])
	assert.Equal(t, 0, s.Levels[LevelCritical])
}

func TestSummary_CriticalPullsScoreDown(t *testing.T) {
	g, _ := newTestGate(t)
	g.Evaluate("p", "edit")
	g.Evaluate("c", ActionDirectFileChange, WithProjectPlanAligned(false), WithUserPreferencesApplied(false))

	assert.Equal(t, 50.0, g.Summary().OverallScore)
}

func TestSummary_Empty(t *testing.T) {
	g, _ := newTestGate(t)
	s := g.Summary()
	assert.Zero(t, s.Total)
	assert.Zero(t, s.OverallScore)
	assert.Empty(t, s.RecentConcerns)
}

func TestSummary_RecentConcerns(t *testing.T) {
	g, _ := newTestGate(t)
	for i := 0; i < 7; i++ {
		g.Evaluate(fmt.Sprintf("bypass-%d", i), ActionBypassValidation)
		g.Evaluate("clean", "edit")
	}

	s := g.Summary()
	require.Len(t, s.RecentConcerns, 5)
	for _, concerns := range s.RecentConcerns {
		assert.Equal(t, []string{"bypass_validation bypasses the standard tooling"}, concerns)
	}
}

func TestRestore(t *testing.T) {
	g, dir := newTestGate(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return base })
	g.Evaluate("p", "edit")
	g.Evaluate("g", ActionMajorRefactor)

	logPath := filepath.Join(dir, "alignment_log.jsonl")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fresh := NewGate(GateConfig{CharterPath: filepath.Join(dir, "vision_charter.json"), LogPath: logPath})
	n, err := fresh.Restore()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h := fresh.History()
	assert.Equal(t, "p", h[0].ActionDescription)
	assert.True(t, h[0].Timestamp.Equal(base))
	assert.Equal(t, 90.0, fresh.Summary().OverallScore)
}

func TestRestore_MissingLog(t *testing.T) {
	g, _ := newTestGate(t)
	n, err := g.Restore()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEvaluate_RecordsInStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "alignment_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	g := NewGate(GateConfig{
		CharterPath: filepath.Join(dir, "vision_charter.json"),
		LogPath:     filepath.Join(dir, "alignment_log.jsonl"),
		Store:       store,
	})
	g.Evaluate("Delete temp files", ActionFileDeletion, WithRiskLevel("high"))

	history, err := store.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, LevelConcerning, history[0].Level)
}
