// Package alignment evaluates proposed agent actions against the vision charter
// and decides whether a gate checkpoint must be raised, and whether the action
// is blocked outright.
package alignment

import "time"

// Level is the classified alignment of one action.
type Level string

const (
	LevelPerfect    Level = "perfect"
	LevelGood       Level = "good"
	LevelConcerning Level = "concerning"
	LevelCritical   Level = "critical"
	LevelUnknown    Level = "unknown"
)

// Levels lists every level in severity order.
var Levels = []Level{LevelPerfect, LevelGood, LevelConcerning, LevelCritical, LevelUnknown}

// DriftType names a category of deviation.
type DriftType string

const (
	DriftVisionMisalignment    DriftType = "vision_misalignment"
	DriftCharterViolation      DriftType = "charter_violation"
	DriftProjectPlanDeviation  DriftType = "project_plan_deviation"
	DriftRiskThresholdExceeded DriftType = "risk_threshold_exceeded"
	DriftToolBypassAttempt     DriftType = "tool_bypass_attempt"
	DriftSafetyViolation       DriftType = "safety_violation"
	DriftUserPreferenceIgnored DriftType = "user_preference_ignored"
)

// Action types the rules react to.
const (
	ActionFileDeletion     = "file_deletion"
	ActionMajorRefactor    = "major_refactor"
	ActionSystemChange     = "system_change"
	ActionDirectFileChange = "direct_file_change"
	ActionBypassValidation = "bypass_validation"
)

// ToolRiskAssessment satisfies the risk-profile rule when present in tools used.
const ToolRiskAssessment = "risk_assessment"

// Check is the outcome of one evaluation. It is never mutated after creation.
type Check struct {
	ID                string      `json:"id"`
	Timestamp         time.Time   `json:"timestamp"`
	ActionDescription string      `json:"action_description"`
	ActionType        string      `json:"action_type"`
	Level             Level       `json:"alignment_level"`
	DriftTypes        []DriftType `json:"drift_types"`
	Concerns          []string    `json:"concerns"`
	Recommendations   []string    `json:"recommendations"`
	RequiresUserInput bool        `json:"requires_user_input"`
	Blocking          bool        `json:"blocking"`
	Confidence        float64     `json:"confidence"`
}

// Summary aggregates the in-memory history.
type Summary struct {
	Total          int           `json:"total_checks"`
	Levels         map[Level]int `json:"alignment_levels"`
	OverallScore   float64       `json:"overall_score"`
	RecentConcerns [][]string    `json:"recent_concerns"`
}
