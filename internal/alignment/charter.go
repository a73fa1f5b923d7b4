package alignment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Charter is the set of boolean human preferences that parameterise the rules.
type Charter struct {
	RequiresRiskProfiles       bool `json:"requires_risk_profiles"`
	WantsApprovalBeforeChanges bool `json:"wants_approval_before_changes"`
	SafetyFirst                bool `json:"safety_first"`
	PrefersExistingTools       bool `json:"prefers_existing_tools"`
	ValuesTransparency         bool `json:"values_transparency"`
	WantsIncrementalProgress   bool `json:"wants_incremental_progress"`
	FollowsProjectPlan         bool `json:"follows_project_plan"`
	AvoidsScopeCreep           bool `json:"avoids_scope_creep"`
}

// DefaultCharter has every preference enabled.
func DefaultCharter() Charter {
	return Charter{
		RequiresRiskProfiles:       true,
		WantsApprovalBeforeChanges: true,
		SafetyFirst:                true,
		PrefersExistingTools:       true,
		ValuesTransparency:         true,
		WantsIncrementalProgress:   true,
		FollowsProjectPlan:         true,
		AvoidsScopeCreep:           true,
	}
}

// LoadCharter reads a charter, falling back to the defaults when the file is absent.
// Fields missing from the file keep their default value.
func LoadCharter(path string) (Charter, error) {
	c := DefaultCharter()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("read charter: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return DefaultCharter(), fmt.Errorf("parse charter: %w", err)
	}
	return c, nil
}

// Save writes the charter as a flat JSON object.
func (c Charter) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create charter directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal charter: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write charter: %w", err)
	}
	return nil
}

// Fields returns the charter as a name to value map.
func (c Charter) Fields() map[string]bool {
	data, _ := json.Marshal(c)
	var m map[string]bool
	_ = json.Unmarshal(data, &m)
	return m
}

// FieldNames lists the preference names in sorted order.
func FieldNames() []string {
	names := make([]string, 0, 8)
	for k := range DefaultCharter().Fields() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Set updates one preference by its JSON name.
func (c *Charter) Set(name, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("charter %s: %w", name, err)
	}

	fields := c.Fields()
	if _, ok := fields[name]; !ok {
		return fmt.Errorf("unknown charter preference %q", name)
	}
	fields[name] = v

	data, _ := json.Marshal(fields)
	return json.Unmarshal(data, c)
}
