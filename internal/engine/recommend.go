package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pulsestack/pulse-insights/internal/models"
)

// RuleEngine applies deployment-specific intervention rules on top of the
// scorer's built-in factor recommendations.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single intervention rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. All set fields
// must match.
type RuleMatch struct {
	Factor         string   `yaml:"factor"`
	Below          int      `yaml:"below"`
	RiskLevel      string   `yaml:"risk_level"`
	MetricContains []string `yaml:"metric_contains"`
	Severity       string   `yaml:"severity"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. An empty path or a
// missing file returns a nil engine, which every caller treats as "no extra
// rules".
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// RecommendForScore returns recommendations from rules matching a health
// score's factors or risk level.
func (e *RuleEngine) RecommendForScore(health models.HealthScore) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if len(rule.Match.MetricContains) > 0 || rule.Match.Severity != "" {
			continue
		}
		if rule.Match.Factor != "" && !factorBelow(rule.Match, health.Factors) {
			continue
		}
		if rule.Match.RiskLevel != "" && !strings.EqualFold(rule.Match.RiskLevel, string(health.RiskLevel)) {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

// RecommendForAnomalies returns recommendations from rules matching detected
// anomalies by metric substring or severity.
func (e *RuleEngine) RecommendForAnomalies(anomalies []models.Anomaly) []string {
	if e == nil || len(anomalies) == 0 {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if len(rule.Match.MetricContains) == 0 && rule.Match.Severity == "" {
			continue
		}
		if len(rule.Match.MetricContains) > 0 && !anomaliesContain(rule.Match.MetricContains, anomalies) {
			continue
		}
		if rule.Match.Severity != "" && !anomaliesHaveSeverity(rule.Match.Severity, anomalies) {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func factorBelow(match RuleMatch, factors models.HealthFactors) bool {
	var value int
	switch strings.ToLower(match.Factor) {
	case "activity":
		value = factors.Activity
	case "engagement":
		value = factors.Engagement
	case "featureusage", "feature_usage":
		value = factors.FeatureUsage
	case "sentiment":
		value = factors.Sentiment
	case "payment":
		value = factors.Payment
	default:
		return false
	}
	return value < match.Below
}

func anomaliesContain(keywords []string, anomalies []models.Anomaly) bool {
	for _, anomaly := range anomalies {
		metric := strings.ToLower(anomaly.Metric)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(metric, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func anomaliesHaveSeverity(severity string, anomalies []models.Anomaly) bool {
	for _, anomaly := range anomalies {
		if strings.EqualFold(severity, string(anomaly.Severity)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
