package resolver

import "strings"

// RuleKind discriminates targeting rules. Only the two declared kinds exist;
// anything else is dropped at the storage boundary.
type RuleKind string

const (
	RuleDevice RuleKind = "device"
	RuleGeo    RuleKind = "geo"
)

// Rule overrides the record's default target URL when its key matches the
// classified request.
type Rule struct {
	Kind      RuleKind
	Key       string
	TargetURL string
}

// matchRules returns the first rule's target URL whose key matches the
// classified device type or resolved country code. Rules are evaluated in
// stored order; keys compare case-insensitively. Returns "" when nothing
// matches.
func matchRules(rules []Rule, device, country string) string {
	for _, rule := range rules {
		switch rule.Kind {
		case RuleDevice:
			if strings.EqualFold(rule.Key, device) {
				return rule.TargetURL
			}
		case RuleGeo:
			if country != "" && strings.EqualFold(rule.Key, country) {
				return rule.TargetURL
			}
		}
	}

	return ""
}

func hasGeoRule(rules []Rule) bool {
	for _, rule := range rules {
		if rule.Kind == RuleGeo {
			return true
		}
	}

	return false
}
