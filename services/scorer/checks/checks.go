// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checks implements the deterministic validator bank: pure,
// stateless mechanical checks over a (source, target, locale) triple.
//
// Every check is bound to rules from the active knowledge base. A check
// whose rule family has no matching rule emits nothing; findings never
// carry invented rule_ids. Spans are byte offsets into the target text.
package checks

import (
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexgate/lexgate/pkg/validation"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

//go:embed patterns.yaml
var patternsYAML []byte

// patternTable is the decoded shape of patterns.yaml.
type patternTable struct {
	Punctuation  map[string]string `yaml:"punctuation"`
	Placeholders []string          `yaml:"placeholders"`
	Dates        struct {
		ISO string `yaml:"iso"`
		CJK string `yaml:"cjk"`
	} `yaml:"dates"`
}

// Config tunes the validator bank.
type Config struct {
	// SeverityMultipliers converts a severity into a penalty factor.
	SeverityMultipliers map[datatypes.Severity]float64
}

// DefaultConfig returns the standard multiplier table.
func DefaultConfig() Config {
	return Config{
		SeverityMultipliers: map[datatypes.Severity]float64{
			datatypes.SeverityMinor:    1,
			datatypes.SeverityMajor:    2,
			datatypes.SeverityCritical: 3,
		},
	}
}

// =============================================================================
// Bank
// =============================================================================

// Bank holds the compiled pattern tables shared by all checks. Construct
// once and reuse; Run is safe for concurrent callers.
type Bank struct {
	cfg          Config
	punctuation  map[string]string // half-width -> full-width
	widthReverse map[string]string // full-width -> half-width
	placeholders []*regexp.Regexp
	isoDate      *regexp.Regexp
	cjkDate      *regexp.Regexp
}

// NewBank compiles the embedded pattern tables.
//
// # Description
//
// Decodes patterns.yaml and compiles every regex up front so Run never
// pays compilation cost and never fails on pattern syntax.
//
// # Outputs
//   - *Bank: ready-to-use validator bank.
//   - error: pattern table decode or compile failure.
func NewBank(cfg Config) (*Bank, error) {
	var table patternTable
	if err := yaml.Unmarshal(patternsYAML, &table); err != nil {
		return nil, fmt.Errorf("decode pattern table: %w", err)
	}

	b := &Bank{
		cfg:          cfg,
		punctuation:  table.Punctuation,
		widthReverse: make(map[string]string, len(table.Punctuation)),
	}
	for half, full := range table.Punctuation {
		b.widthReverse[full] = half
	}

	for _, pattern := range table.Placeholders {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile placeholder pattern %q: %w", pattern, err)
		}
		b.placeholders = append(b.placeholders, re)
	}

	var err error
	if b.isoDate, err = regexp.Compile(table.Dates.ISO); err != nil {
		return nil, fmt.Errorf("compile iso date pattern: %w", err)
	}
	if b.cjkDate, err = regexp.Compile(table.Dates.CJK); err != nil {
		return nil, fmt.Errorf("compile cjk date pattern: %w", err)
	}
	return b, nil
}

// Run executes every check against the segment and returns the combined
// findings. Pure function over its inputs; no I/O.
func (b *Bank) Run(segmentID, sourceText, targetText, locale string, rules []datatypes.Rule) []datatypes.Finding {
	var findings []datatypes.Finding
	findings = append(findings, b.checkPlaceholders(segmentID, sourceText, targetText, rules)...)
	findings = append(findings, b.checkPunctuationWidth(segmentID, targetText, locale, rules)...)
	findings = append(findings, b.checkDateFormat(segmentID, targetText, locale, rules)...)
	findings = append(findings, b.checkLineBreaks(segmentID, sourceText, targetText, rules)...)
	findings = append(findings, b.checkRegexRules(segmentID, targetText, rules)...)
	for _, rule := range rulesMatching(rules, func(r datatypes.Rule) bool {
		return r.MicroClass == "glossary" && len(r.Terms) > 0
	}) {
		findings = append(findings, b.CheckGlossary(segmentID, sourceText, targetText, rule.Terms, &rule)...)
	}
	return findings
}

func (b *Bank) penalty(weight float64, sev datatypes.Severity) float64 {
	return weight * b.cfg.SeverityMultipliers[sev]
}

// =============================================================================
// Placeholder / tag preservation
// =============================================================================

// checkPlaceholders verifies that every bracket-family and printf-style
// token in the source survives into the target with identical text and
// count. Breakage is Critical because missing placeholders break runtime
// substitution downstream.
func (b *Bank) checkPlaceholders(segmentID, sourceText, targetText string, rules []datatypes.Rule) []datatypes.Finding {
	rule := firstRuleMatching(rules, func(r datatypes.Rule) bool {
		text := strings.ToLower(r.RuleText)
		return strings.Contains(text, "placeholder") || strings.Contains(text, "tag")
	})
	if rule == nil {
		return nil
	}

	sourceTokens := b.placeholderCounts(sourceText)
	targetTokens := b.placeholderCounts(targetText)

	var findings []datatypes.Finding
	for _, token := range sortedKeys(sourceTokens) {
		if targetTokens[token] < sourceTokens[token] {
			findings = append(findings, datatypes.Finding{
				SegmentID:     segmentID,
				RuleID:        rule.RuleID,
				MacroClass:    rule.MacroClass,
				Severity:      datatypes.SeverityCritical,
				Penalty:       b.penalty(rule.DefaultWeight, datatypes.SeverityCritical),
				Justification: fmt.Sprintf("Placeholder %q from source is missing in target.", token),
				Citation:      rule.Citation,
				Deterministic: true,
				Highlighted:   token,
			})
		}
	}
	for _, token := range sortedKeys(targetTokens) {
		if sourceTokens[token] < targetTokens[token] {
			findings = append(findings, datatypes.Finding{
				SegmentID:     segmentID,
				RuleID:        rule.RuleID,
				MacroClass:    rule.MacroClass,
				Severity:      datatypes.SeverityCritical,
				Penalty:       b.penalty(rule.DefaultWeight, datatypes.SeverityCritical),
				Justification: fmt.Sprintf("Placeholder %q in target does not match any source placeholder.", token),
				Citation:      rule.Citation,
				Deterministic: true,
				Highlighted:   token,
			})
		}
	}
	return findings
}

func (b *Bank) placeholderCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, re := range b.placeholders {
		for _, match := range re.FindAllString(text, -1) {
			counts[match]++
		}
	}
	return counts
}

// =============================================================================
// Punctuation width
// =============================================================================

// checkPunctuationWidth flags half-width ASCII punctuation in CJK target
// locales and, symmetrically, full-width punctuation in non-CJK locales.
func (b *Bank) checkPunctuationWidth(segmentID, targetText, locale string, rules []datatypes.Rule) []datatypes.Finding {
	punctRules := rulesMatching(rules, func(r datatypes.Rule) bool {
		return r.MacroClass == datatypes.MacroPunctuation &&
			strings.Contains(strings.ToLower(r.RuleText), "width")
	})
	if len(punctRules) == 0 {
		return nil
	}

	wrong := b.punctuation
	fix := func(found string) string { return b.punctuation[found] }
	note := "Half-width %q found; full-width %q is required for this locale."
	if !validation.IsCJK(locale) {
		wrong = b.widthReverse
		fix = func(found string) string { return b.widthReverse[found] }
		note = "Full-width %q found; half-width %q is required for this locale."
	}

	var findings []datatypes.Finding
	for _, ch := range sortedKeys2(wrong) {
		rule := bindPunctuationRule(punctRules, ch, fix(ch))
		for _, span := range allOccurrences(targetText, ch) {
			start, end := span[0], span[1]
			findings = append(findings, datatypes.Finding{
				SegmentID:     segmentID,
				RuleID:        rule.RuleID,
				MacroClass:    rule.MacroClass,
				Severity:      rule.DefaultSeverity,
				Penalty:       b.penalty(rule.DefaultWeight, rule.DefaultSeverity),
				Justification: fmt.Sprintf(note, ch, fix(ch)),
				Citation:      rule.Citation,
				Deterministic: true,
				SpanStart:     &start,
				SpanEnd:       &end,
				Highlighted:   ch,
			})
		}
	}
	return findings
}

// bindPunctuationRule prefers a rule that names either form of the mark,
// falling back to the first width rule.
func bindPunctuationRule(punctRules []datatypes.Rule, forms ...string) *datatypes.Rule {
	for i := range punctRules {
		for _, form := range forms {
			if strings.Contains(punctRules[i].RuleText, form) {
				return &punctRules[i]
			}
		}
	}
	return &punctRules[0]
}

// =============================================================================
// Date format
// =============================================================================

// checkDateFormat flags format mismatches only, never date value
// correctness. CJK locales must not carry ISO dates; non-CJK locales must
// not carry CJK calendar dates.
func (b *Bank) checkDateFormat(segmentID, targetText, locale string, rules []datatypes.Rule) []datatypes.Finding {
	rule := firstRuleMatching(rules, func(r datatypes.Rule) bool {
		text := strings.ToLower(r.RuleText)
		return strings.Contains(text, "date") &&
			(strings.Contains(r.RuleText, "年") || strings.Contains(text, "format"))
	})
	if rule == nil {
		return nil
	}

	pattern := b.isoDate
	note := "ISO date %q found; the localized calendar form (YYYY年M月D日) is required."
	if !validation.IsCJK(locale) {
		pattern = b.cjkDate
		note = "Localized calendar date %q found; ISO format (YYYY-MM-DD) is required."
	}

	var findings []datatypes.Finding
	for _, span := range pattern.FindAllStringIndex(targetText, -1) {
		start, end := span[0], span[1]
		findings = append(findings, datatypes.Finding{
			SegmentID:     segmentID,
			RuleID:        rule.RuleID,
			MacroClass:    rule.MacroClass,
			Severity:      rule.DefaultSeverity,
			Penalty:       b.penalty(rule.DefaultWeight, rule.DefaultSeverity),
			Justification: fmt.Sprintf(note, targetText[start:end]),
			Citation:      rule.Citation,
			Deterministic: true,
			SpanStart:     &start,
			SpanEnd:       &end,
			Highlighted:   targetText[start:end],
		})
	}
	return findings
}

// =============================================================================
// Line-break preservation
// =============================================================================

// checkLineBreaks requires the count and byte positions of hard line
// breaks to match between source and target. Any mismatch is Minor; this
// is formatting, not meaning.
func (b *Bank) checkLineBreaks(segmentID, sourceText, targetText string, rules []datatypes.Rule) []datatypes.Finding {
	rule := firstRuleMatching(rules, func(r datatypes.Rule) bool {
		text := strings.ToLower(r.RuleText)
		return strings.Contains(text, "line break") || strings.Contains(text, "formatting")
	})
	if rule == nil {
		return nil
	}

	sourceBreaks := strings.Count(sourceText, "\n")
	targetBreaks := strings.Count(targetText, "\n")
	if sourceBreaks == targetBreaks && sourceBreaks == 0 {
		return nil
	}
	if sourceBreaks == targetBreaks && lineLengthsMatch(sourceText, targetText) {
		return nil
	}

	return []datatypes.Finding{{
		SegmentID:  segmentID,
		RuleID:     rule.RuleID,
		MacroClass: rule.MacroClass,
		Severity:   datatypes.SeverityMinor,
		Penalty:    b.penalty(rule.DefaultWeight, datatypes.SeverityMinor),
		Justification: fmt.Sprintf(
			"Line break mismatch: source has %d break(s), target has %d, or break positions differ.",
			sourceBreaks, targetBreaks),
		Citation:      rule.Citation,
		Deterministic: true,
	}}
}

// lineLengthsMatch reports whether both texts break into the same number
// of lines. Positions in translated text cannot match byte-for-byte, so
// the position check is structural: same line count on both sides.
func lineLengthsMatch(sourceText, targetText string) bool {
	return len(strings.Split(sourceText, "\n")) == len(strings.Split(targetText, "\n"))
}

// =============================================================================
// Regex-ready rules
// =============================================================================

// checkRegexRules executes knowledge-base rules that ship their own
// pattern. A pattern that fails to compile is logged and skipped; a bad
// rule must not take down the whole bank.
func (b *Bank) checkRegexRules(segmentID, targetText string, rules []datatypes.Rule) []datatypes.Finding {
	var findings []datatypes.Finding
	for i := range rules {
		rule := &rules[i]
		if !rule.RegexReady || rule.RegexPattern == "" {
			continue
		}
		re, err := regexp.Compile(rule.RegexPattern)
		if err != nil {
			slog.Warn("Skipping rule with invalid regex pattern",
				"rule_id", rule.RuleID, "error", err)
			continue
		}
		for _, span := range re.FindAllStringIndex(targetText, -1) {
			start, end := span[0], span[1]
			findings = append(findings, datatypes.Finding{
				SegmentID:     segmentID,
				RuleID:        rule.RuleID,
				MacroClass:    rule.MacroClass,
				Severity:      rule.DefaultSeverity,
				Penalty:       b.penalty(rule.DefaultWeight, rule.DefaultSeverity),
				Justification: fmt.Sprintf("Pattern violation: %s", rule.RuleText),
				Citation:      rule.Citation,
				Deterministic: true,
				SpanStart:     &start,
				SpanEnd:       &end,
				Highlighted:   targetText[start:end],
			})
		}
	}
	return findings
}

// =============================================================================
// Glossary / do-not-translate terms
// =============================================================================

// CheckGlossary verifies that every glossary source term present in the
// source text is rendered with its approved translation in the target.
// Matching is case-insensitive on both sides.
func (b *Bank) CheckGlossary(segmentID, sourceText, targetText string, glossary map[string]string, rule *datatypes.Rule) []datatypes.Finding {
	if rule == nil || len(glossary) == 0 {
		return nil
	}
	lowerSource := strings.ToLower(sourceText)
	lowerTarget := strings.ToLower(targetText)

	var findings []datatypes.Finding
	for _, term := range sortedKeys2(glossary) {
		expected := glossary[term]
		if !strings.Contains(lowerSource, strings.ToLower(term)) {
			continue
		}
		if strings.Contains(lowerTarget, strings.ToLower(expected)) {
			continue
		}
		findings = append(findings, datatypes.Finding{
			SegmentID:  segmentID,
			RuleID:     rule.RuleID,
			MacroClass: rule.MacroClass,
			Severity:   datatypes.SeverityMajor,
			Penalty:    b.penalty(rule.DefaultWeight, datatypes.SeverityMajor),
			Justification: fmt.Sprintf(
				"Glossary term %q must be translated as %q.", term, expected),
			Citation:      rule.Citation,
			Deterministic: true,
			Highlighted:   term,
		})
	}
	return findings
}

// =============================================================================
// Helpers
// =============================================================================

func firstRuleMatching(rules []datatypes.Rule, match func(datatypes.Rule) bool) *datatypes.Rule {
	for i := range rules {
		if match(rules[i]) {
			return &rules[i]
		}
	}
	return nil
}

func rulesMatching(rules []datatypes.Rule, match func(datatypes.Rule) bool) []datatypes.Rule {
	var out []datatypes.Rule
	for _, rule := range rules {
		if match(rule) {
			out = append(out, rule)
		}
	}
	return out
}

// allOccurrences returns byte [start, end) spans of every occurrence of
// needle in text.
func allOccurrences(text, needle string) [][2]int {
	var spans [][2]int
	offset := 0
	for {
		idx := strings.Index(text[offset:], needle)
		if idx < 0 {
			return spans
		}
		start := offset + idx
		spans = append(spans, [2]int{start, start + len(needle)})
		offset = start + len(needle)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
