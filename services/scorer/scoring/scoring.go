// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring turns a finding set plus a versioned rubric into a
// final score with a per-category breakdown.
//
// Score is a pure function. Given the same findings and rubric it
// produces identical output: findings are sorted by rule_id before
// grouping and every map iteration goes through an ordered key list, so
// there is no iteration-order dependence.
package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// ErrInvalidRubric signals a rubric that cannot produce meaningful
// scores. Rubric validation failures are fatal at startup; a misweighted
// rubric silently producing wrong scores is worse than refusing to boot.
var ErrInvalidRubric = errors.New("invalid rubric configuration")

//go:embed rubric.yaml
var defaultRubricYAML []byte

// CapGroup caps the combined penalty contribution of a class group.
type CapGroup struct {
	Name    string                 `yaml:"name" json:"name"`
	Classes []datatypes.MacroClass `yaml:"classes" json:"classes"`
	Ceiling float64                `yaml:"ceiling" json:"ceiling"`
}

// BandThresholds maps a final score to its informational quality band.
type BandThresholds struct {
	Excellent float64 `yaml:"excellent" json:"excellent"`
	Good      float64 `yaml:"good" json:"good"`
	Fair      float64 `yaml:"fair" json:"fair"`
}

// RubricConfig is the complete, versioned scoring policy. It is passed
// explicitly into Score rather than read from ambient globals so that a
// stored rubric_version can be faithfully replayed later.
type RubricConfig struct {
	RubricVersion       string                           `yaml:"rubric_version" json:"rubric_version"`
	SeverityMultipliers map[datatypes.Severity]float64   `yaml:"severity_multipliers" json:"severity_multipliers"`
	MacroWeights        map[datatypes.MacroClass]float64 `yaml:"macro_weights" json:"macro_weights"`
	CapGroups           []CapGroup                       `yaml:"cap_groups" json:"cap_groups"`
	BandThresholds      BandThresholds                   `yaml:"band_thresholds" json:"band_thresholds"`
}

// DefaultRubric decodes the embedded rubric. Panics on a corrupt embed;
// that is a build defect, not a runtime condition.
func DefaultRubric() RubricConfig {
	cfg, err := decodeRubric(defaultRubricYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rubric is invalid: %v", err))
	}
	return cfg
}

// LoadRubric reads and validates a rubric override from disk.
func LoadRubric(path string) (RubricConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RubricConfig{}, fmt.Errorf("read rubric %s: %w", path, err)
	}
	return decodeRubric(data)
}

func decodeRubric(data []byte) (RubricConfig, error) {
	var cfg RubricConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RubricConfig{}, fmt.Errorf("%w: %v", ErrInvalidRubric, err)
	}
	if err := cfg.Validate(); err != nil {
		return RubricConfig{}, err
	}
	return cfg, nil
}

// Validate checks the rubric exhaustively. Every severity and macro
// class must carry a non-negative entry and every cap group must name
// valid classes with a non-negative ceiling.
func (c RubricConfig) Validate() error {
	if c.RubricVersion == "" {
		return fmt.Errorf("%w: missing rubric_version", ErrInvalidRubric)
	}
	for _, sev := range []datatypes.Severity{datatypes.SeverityMinor, datatypes.SeverityMajor, datatypes.SeverityCritical} {
		mult, ok := c.SeverityMultipliers[sev]
		if !ok {
			return fmt.Errorf("%w: missing severity multiplier for %s", ErrInvalidRubric, sev)
		}
		if mult < 0 {
			return fmt.Errorf("%w: negative severity multiplier for %s", ErrInvalidRubric, sev)
		}
	}
	for _, macro := range datatypes.MacroClasses {
		weight, ok := c.MacroWeights[macro]
		if !ok {
			return fmt.Errorf("%w: missing macro weight for %s", ErrInvalidRubric, macro)
		}
		if weight < 0 {
			return fmt.Errorf("%w: negative macro weight for %s", ErrInvalidRubric, macro)
		}
	}
	for _, group := range c.CapGroups {
		if group.Ceiling < 0 {
			return fmt.Errorf("%w: negative ceiling in cap group %s", ErrInvalidRubric, group.Name)
		}
		if len(group.Classes) == 0 {
			return fmt.Errorf("%w: empty cap group %s", ErrInvalidRubric, group.Name)
		}
		for _, class := range group.Classes {
			if !class.Valid() {
				return fmt.Errorf("%w: unknown class %q in cap group %s", ErrInvalidRubric, class, group.Name)
			}
		}
	}
	if c.BandThresholds.Excellent < c.BandThresholds.Good ||
		c.BandThresholds.Good < c.BandThresholds.Fair {
		return fmt.Errorf("%w: band thresholds must be non-increasing", ErrInvalidRubric)
	}
	return nil
}

// Penalty computes the penalty for one finding under this rubric. A
// finding with no stored penalty falls back to the macro-class weight.
func (c RubricConfig) Penalty(f datatypes.Finding) float64 {
	if f.Penalty > 0 {
		return f.Penalty
	}
	return c.MacroWeights[f.MacroClass] * c.SeverityMultipliers[f.Severity]
}

// Band maps a final score to its qualitative label.
func (c RubricConfig) Band(score float64) datatypes.QualityBand {
	switch {
	case score >= c.BandThresholds.Excellent:
		return datatypes.BandExcellent
	case score >= c.BandThresholds.Good:
		return datatypes.BandGood
	case score >= c.BandThresholds.Fair:
		return datatypes.BandFair
	default:
		return datatypes.BandNeedsRevision
	}
}

// =============================================================================
// Score
// =============================================================================

// Result is the scoring output applied onto a ScoreReport by the caller.
type Result struct {
	FinalScore float64
	Band       datatypes.QualityBand
	ByMacro    map[datatypes.MacroClass]datatypes.ScoreBreakdown
	Findings   []datatypes.Finding
}

// Score computes the final score for a finding set.
//
// # Description
//
// Starts from a base of 100 and subtracts each finding's penalty. The
// per-category breakdown always shows raw sums; configured cap groups
// limit only the contribution of their classes to the total. The final
// score is clamped to [0, 100].
//
// Findings are sorted by rule_id (then span start, then justification)
// before grouping, so the returned finding order and breakdown are
// reproducible regardless of input order.
func Score(findings []datatypes.Finding, rubric RubricConfig) Result {
	sorted := make([]datatypes.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].RuleID != sorted[b].RuleID {
			return sorted[a].RuleID < sorted[b].RuleID
		}
		aStart, bStart := spanKey(sorted[a]), spanKey(sorted[b])
		if aStart != bStart {
			return aStart < bStart
		}
		return sorted[a].Justification < sorted[b].Justification
	})

	byMacro := make(map[datatypes.MacroClass]datatypes.ScoreBreakdown, len(datatypes.MacroClasses))
	for _, macro := range datatypes.MacroClasses {
		byMacro[macro] = datatypes.ScoreBreakdown{RulesTriggered: []string{}}
	}

	totalPenalty := 0.0
	for i := range sorted {
		penalty := rubric.Penalty(sorted[i])
		sorted[i].Penalty = penalty
		totalPenalty += penalty

		breakdown := byMacro[sorted[i].MacroClass]
		breakdown.Penalty += penalty
		breakdown.Count++
		breakdown.RulesTriggered = appendUnique(breakdown.RulesTriggered, sorted[i].RuleID)
		byMacro[sorted[i].MacroClass] = breakdown
	}

	// Cap groups reduce the total only; the breakdown keeps raw values.
	for _, group := range rubric.CapGroups {
		groupSum := 0.0
		for _, class := range group.Classes {
			groupSum += byMacro[class].Penalty
		}
		if groupSum > group.Ceiling {
			totalPenalty -= groupSum - group.Ceiling
		}
	}

	finalScore := 100 - totalPenalty
	if finalScore < 0 {
		finalScore = 0
	}
	if finalScore > 100 {
		finalScore = 100
	}

	return Result{
		FinalScore: finalScore,
		Band:       rubric.Band(finalScore),
		ByMacro:    byMacro,
		Findings:   sorted,
	}
}

func spanKey(f datatypes.Finding) int {
	if f.SpanStart != nil {
		return *f.SpanStart
	}
	return -1
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
