package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchRules(t *testing.T) {
	t.Run("first match wins over later matches", func(t *testing.T) {
		rules := []Rule{
			{Kind: RuleDevice, Key: "mobile", TargetURL: "https://a.example"},
			{Kind: RuleGeo, Key: "US", TargetURL: "https://b.example"},
		}

		assert.Equal(t, "https://a.example", matchRules(rules, "mobile", "US"))
	})

	t.Run("falls through to later rules", func(t *testing.T) {
		rules := []Rule{
			{Kind: RuleDevice, Key: "mobile", TargetURL: "https://a.example"},
			{Kind: RuleGeo, Key: "US", TargetURL: "https://b.example"},
		}

		assert.Equal(t, "https://b.example", matchRules(rules, "desktop", "US"))
	})

	t.Run("keys compare case-insensitively", func(t *testing.T) {
		rules := []Rule{
			{Kind: RuleDevice, Key: "Mobile", TargetURL: "https://a.example"},
			{Kind: RuleGeo, Key: "us", TargetURL: "https://b.example"},
		}

		assert.Equal(t, "https://a.example", matchRules(rules, "mobile", ""))
		assert.Equal(t, "https://b.example", matchRules(rules, "desktop", "US"))
	})

	t.Run("no match returns empty", func(t *testing.T) {
		rules := []Rule{
			{Kind: RuleDevice, Key: "mobile", TargetURL: "https://a.example"},
		}

		assert.Equal(t, "", matchRules(rules, "desktop", "DE"))
		assert.Equal(t, "", matchRules(nil, "desktop", "DE"))
	})

	t.Run("unresolved country never matches a geo rule", func(t *testing.T) {
		rules := []Rule{
			{Kind: RuleGeo, Key: "", TargetURL: "https://b.example"},
		}

		assert.Equal(t, "", matchRules(rules, "desktop", ""))
	})
}

func TestHasGeoRule(t *testing.T) {
	assert.False(t, hasGeoRule(nil))
	assert.False(t, hasGeoRule([]Rule{{Kind: RuleDevice, Key: "mobile"}}))
	assert.True(t, hasGeoRule([]Rule{{Kind: RuleDevice, Key: "mobile"}, {Kind: RuleGeo, Key: "US"}}))
}
