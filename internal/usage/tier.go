// Package usage enforces per-subject rate and quota limits ahead of
// orchestration. Subjects are account ids for authenticated callers and
// client IPs for anonymous ones.
package usage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Unlimited exempts a dimension from enforcement.
const Unlimited = -1

// Tier bundles the four quota dimensions for one subscription level.
type Tier struct {
	Name              string `yaml:"-" json:"name"`
	RPMLimit          int64  `yaml:"rpmLimit" json:"rpmLimit"`
	DailyLimit        int64  `yaml:"dailyLimit" json:"dailyLimit"`
	MonthlyLimit      int64  `yaml:"monthlyLimit" json:"monthlyLimit"`
	TokenMonthlyLimit int64  `yaml:"tokenMonthlyLimit" json:"tokenMonthlyLimit"`
}

// Built-in tier names.
const (
	TierAnonymous  = "anonymous"
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// BuiltinTiers returns the default tier table.
func BuiltinTiers() map[string]Tier {
	return map[string]Tier{
		TierAnonymous:  {Name: TierAnonymous, RPMLimit: 5, DailyLimit: 10, MonthlyLimit: 50, TokenMonthlyLimit: 5000},
		TierFree:       {Name: TierFree, RPMLimit: 10, DailyLimit: 50, MonthlyLimit: 1000, TokenMonthlyLimit: 10000},
		TierPro:        {Name: TierPro, RPMLimit: 100, DailyLimit: 1000, MonthlyLimit: 20000, TokenMonthlyLimit: 500000},
		TierEnterprise: {Name: TierEnterprise, RPMLimit: 1000, DailyLimit: Unlimited, MonthlyLimit: Unlimited, TokenMonthlyLimit: Unlimited},
	}
}

// LoadTiers reads tier overrides from a YAML file and merges them over the
// built-in table. Unknown tier names are added as custom tiers.
func LoadTiers(path string) (map[string]Tier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tier config: %w", err)
	}
	return ParseTiers(data)
}

// ParseTiers merges YAML tier definitions over the built-in table.
func ParseTiers(data []byte) (map[string]Tier, error) {
	var overrides map[string]Tier
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing tier config: %w", err)
	}

	tiers := BuiltinTiers()
	for name, tier := range overrides {
		tier.Name = name
		tiers[name] = tier
	}
	return tiers, nil
}
