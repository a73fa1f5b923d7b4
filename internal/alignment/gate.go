package alignment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatecheck/internal/logging"
)

// DefaultHistorySize bounds the in-memory check buffer.
const DefaultHistorySize = 50

// recentConcernLists is how many non-empty concern lists Summary reports.
const recentConcernLists = 5

// GateConfig configures a Gate.
type GateConfig struct {
	CharterPath string
	LogPath     string
	HistorySize int
	Store       *Store // optional
}

// Gate evaluates actions against a charter and remembers recent checks.
type Gate struct {
	mu      sync.Mutex
	cfg     GateConfig
	charter Charter
	history []Check
	now     func() time.Time
}

// NewGate loads the charter and returns a gate with an empty history.
// A malformed charter file is logged and replaced by the defaults in memory.
func NewGate(cfg GateConfig) *Gate {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}

	charter, err := LoadCharter(cfg.CharterPath)
	if err != nil {
		logging.Get(logging.CategoryAlignment).Warn("Using default charter: %v", err)
	}

	return &Gate{
		cfg:     cfg,
		charter: charter,
		history: make([]Check, 0, cfg.HistorySize),
		now:     time.Now,
	}
}

// SetClock replaces the wall clock used to stamp checks.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Charter returns a copy of the active charter.
func (g *Gate) Charter() Charter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charter
}

// UpdateCharter replaces and persists the charter.
func (g *Gate) UpdateCharter(c Charter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.CharterPath != "" {
		if err := c.Save(g.cfg.CharterPath); err != nil {
			return err
		}
	}
	g.charter = c
	logging.Get(logging.CategoryAlignment).Info("Charter updated: %v", c.Fields())
	return nil
}

// EvalOption adjusts the inputs of one evaluation.
type EvalOption func(*evalInput)

type evalInput struct {
	riskLevel              string
	toolsUsed              []string
	userPreferencesApplied bool
	safetyChecksPassed     bool
	projectPlanAligned     bool
}

// WithRiskLevel sets the action's risk level. Defaults to "unknown".
func WithRiskLevel(level string) EvalOption {
	return func(in *evalInput) { in.riskLevel = level }
}

// WithToolsUsed lists the tools involved in the action.
func WithToolsUsed(tools ...string) EvalOption {
	return func(in *evalInput) { in.toolsUsed = append(in.toolsUsed, tools...) }
}

// WithUserPreferencesApplied reports whether the user's preferences were honoured.
func WithUserPreferencesApplied(ok bool) EvalOption {
	return func(in *evalInput) { in.userPreferencesApplied = ok }
}

// WithSafetyChecksPassed reports whether the safety checks passed.
func WithSafetyChecksPassed(ok bool) EvalOption {
	return func(in *evalInput) { in.safetyChecksPassed = ok }
}

// WithProjectPlanAligned reports whether the action follows the project plan.
func WithProjectPlanAligned(ok bool) EvalOption {
	return func(in *evalInput) { in.projectPlanAligned = ok }
}

// Evaluate runs the rules against an action, records the check and returns it.
func (g *Gate) Evaluate(description, actionType string, opts ...EvalOption) Check {
	in := evalInput{
		riskLevel:              "unknown",
		toolsUsed:              []string{},
		userPreferencesApplied: true,
		safetyChecksPassed:     true,
		projectPlanAligned:     true,
	}
	for _, opt := range opts {
		opt(&in)
	}

	g.mu.Lock()
	charter := g.charter
	now := g.now()
	g.mu.Unlock()

	check := Check{
		ID:                uuid.NewString(),
		Timestamp:         now,
		ActionDescription: description,
		ActionType:        actionType,
		DriftTypes:        []DriftType{},
		Concerns:          []string{},
		Recommendations:   []string{},
	}

	add := func(drift DriftType, concern, recommendation string) {
		check.DriftTypes = append(check.DriftTypes, drift)
		check.Concerns = append(check.Concerns, concern)
		check.Recommendations = append(check.Recommendations, recommendation)
	}

	if (in.riskLevel == "high" || in.riskLevel == "critical") &&
		charter.RequiresRiskProfiles &&
		!slices.Contains(in.toolsUsed, ToolRiskAssessment) {
		add(DriftRiskThresholdExceeded,
			fmt.Sprintf("%s-risk action without a risk assessment", in.riskLevel),
			"Run a risk assessment and share the risk profile before proceeding")
	}

	if charter.WantsApprovalBeforeChanges {
		switch actionType {
		case ActionFileDeletion, ActionMajorRefactor, ActionSystemChange:
			add(DriftUserPreferenceIgnored,
				fmt.Sprintf("%s requires user approval before changes", actionType),
				"Ask the user to approve this change first")
		}
	}

	if charter.SafetyFirst && !in.safetyChecksPassed {
		add(DriftSafetyViolation,
			"Safety checks did not pass",
			"Resolve the failing safety checks before proceeding")
	}

	if !in.projectPlanAligned {
		add(DriftProjectPlanDeviation,
			"Action deviates from the project plan",
			"Confirm the change against the project plan or update the plan with the user")
	}

	if !in.userPreferencesApplied {
		add(DriftUserPreferenceIgnored,
			"User preferences were not applied",
			"Re-apply the user's stated preferences")
	}

	switch actionType {
	case ActionDirectFileChange, ActionBypassValidation:
		add(DriftToolBypassAttempt,
			fmt.Sprintf("%s bypasses the standard tooling", actionType),
			"Use the approved tools and validation path instead")
	}

	classify(&check)
	g.record(check)
	return check
}

// classify assigns level, confidence and gating flags. First match wins.
func classify(c *Check) {
	switch n := len(c.Concerns); {
	case n == 0:
		c.Level, c.Confidence = LevelPerfect, 0.9
	case n == 1 && c.DriftTypes[0] == DriftUserPreferenceIgnored:
		c.Level, c.Confidence = LevelGood, 0.7
	case n <= 2:
		c.Level, c.Confidence = LevelConcerning, 0.8
		c.RequiresUserInput = true
	default:
		c.Level, c.Confidence = LevelCritical, 0.9
		c.RequiresUserInput = true
		c.Blocking = true
	}
}

// record appends to the ring buffer, the JSONL log and the optional store.
// Persistence failures are logged, never returned.
func (g *Gate) record(c Check) {
	log := logging.Get(logging.CategoryAlignment)

	g.mu.Lock()
	g.push(c)
	g.mu.Unlock()

	if err := appendLog(g.cfg.LogPath, c); err != nil {
		log.Error("Failed to append alignment log: %v", err)
	}
	if g.cfg.Store != nil {
		if err := g.cfg.Store.RecordCheck(&c); err != nil {
			log.Error("Failed to record alignment check: %v", err)
		}
	}

	log.Info("Alignment %s (%.1f) for %q: %d concern(s), blocking=%v",
		c.Level, c.Confidence, c.ActionDescription, len(c.Concerns), c.Blocking)
}

// push must be called with mu held.
func (g *Gate) push(c Check) {
	if len(g.history) >= g.cfg.HistorySize {
		copy(g.history, g.history[1:])
		g.history = g.history[:len(g.history)-1]
	}
	g.history = append(g.history, c)
}

func appendLog(path string, c Check) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	line, err := json.Marshal(c)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// History returns the buffered checks, oldest first.
func (g *Gate) History() []Check {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.history)
}

// Summary aggregates the in-memory buffer.
//
// The score weights perfect, good and concerning at 100, 80 and 40; critical
// and unknown checks add nothing to the numerator but still count in the total.
func (g *Gate) Summary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Summary{
		Total:          len(g.history),
		Levels:         make(map[Level]int, len(Levels)),
		RecentConcerns: [][]string{},
	}
	for _, l := range Levels {
		s.Levels[l] = 0
	}
	for _, c := range g.history {
		s.Levels[c.Level]++
	}

	if s.Total > 0 {
		weighted := float64(s.Levels[LevelPerfect]*100 + s.Levels[LevelGood]*80 + s.Levels[LevelConcerning]*40)
		s.OverallScore = math.Round(weighted/float64(s.Total)*100) / 100
	}

	for i := len(g.history) - 1; i >= 0 && len(s.RecentConcerns) < recentConcernLists; i-- {
		if len(g.history[i].Concerns) > 0 {
			s.RecentConcerns = append(s.RecentConcerns, g.history[i].Concerns)
		}
	}
	slices.Reverse(s.RecentConcerns)
	return s
}

// Restore reloads the newest checks from the alignment log into the buffer,
// replacing its contents. Unparseable lines are skipped. Returns the count loaded.
func (g *Gate) Restore() (int, error) {
	log := logging.Get(logging.CategoryAlignment)
	f, err := os.Open(g.cfg.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open alignment log: %w", err)
	}
	defer f.Close()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = g.history[:0]

	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Check
		if err := json.Unmarshal(line, &c); err != nil {
			skipped++
			continue
		}
		g.push(c)
	}
	if err := scanner.Err(); err != nil {
		return len(g.history), fmt.Errorf("scan alignment log: %w", err)
	}

	if skipped > 0 {
		log.Warn("Skipped %d unparseable alignment log line(s)", skipped)
	}
	log.Debug("Restored %d alignment check(s) from %s", len(g.history), g.cfg.LogPath)
	return len(g.history), nil
}
