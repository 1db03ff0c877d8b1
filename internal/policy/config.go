package policy

import (
	"fmt"

	"github.com/vyrodovalexey/avauthgw/internal/config"
)

// RulesFromConfig converts configured rules to engine rules, preserving
// order.
func RulesFromConfig(cfgRules []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgRules))
	for i, rc := range cfgRules {
		target, err := targetFromConfig(rc.Target)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rc.Name, err)
		}
		rules = append(rules, Rule{
			Name:             rc.Name,
			PathPrefix:       rc.PathPrefix,
			RequiredGroups:   append([]string(nil), rc.RequiredGroups...),
			RequiredDeviceID: rc.RequiredDeviceID,
			Condition:        rc.Condition,
			Target:           target,
		})
	}
	return rules, nil
}

// targetFromConfig maps a configured target name to a Target.
func targetFromConfig(name string) (Target, error) {
	switch name {
	case config.TargetProtected:
		return TargetProtected, nil
	case config.TargetDefault, "":
		return TargetDefault, nil
	default:
		return "", fmt.Errorf("unknown target %q", name)
	}
}
