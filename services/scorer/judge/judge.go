// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package judge adapts an external natural-language judging capability
// into schema-validated findings.
//
// The adapter is the only place LLM output enters the scoring pipeline,
// and it never trusts that output: rule-mode findings are restricted to
// the retrieved candidate allowlist, severities must parse, spans must
// fall inside the target text, and a response that fails the output
// contract entirely is reported as ErrContractViolation so deterministic
// findings can still carry the evaluation.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexgate/lexgate/services/llm"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// ErrContractViolation signals that the judging capability returned a
// response that does not conform to the output schema at all. Individual
// malformed entries are discarded silently; this error means nothing
// usable came back.
var ErrContractViolation = errors.New("judge response violates output contract")

// QualityWeight is the default weight for synthetic quality findings.
// Fundamental translation failures outweigh style-guide rules, whose
// weights typically sit in the 1-8 range.
const QualityWeight = 15.0

// qualityIssueClasses is the closed set of general-quality dimensions and
// their macro class mapping. Issue types outside this set are discarded.
var qualityIssueClasses = map[string]datatypes.MacroClass{
	"script_mixing":   datatypes.MacroAccuracy,
	"mistranslation":  datatypes.MacroAccuracy,
	"missing_content": datatypes.MacroAccuracy,
	"grammar":         datatypes.MacroAccuracy,
	"register":        datatypes.MacroStyle,
	"terminology":     datatypes.MacroTerminology,
}

// Config tunes the adapter.
type Config struct {
	// Timeout bounds a single judging call.
	Timeout time.Duration
	// TransportRetries is the retry budget for transient transport
	// failures. Schema violations are never retried; a model that broke
	// the contract once will break it again.
	TransportRetries int
	// SeverityMultipliers converts severity into a penalty factor.
	SeverityMultipliers map[datatypes.Severity]float64
}

// DefaultConfig returns the standard adapter settings.
func DefaultConfig() Config {
	return Config{
		Timeout:          120 * time.Second,
		TransportRetries: 1,
		SeverityMultipliers: map[datatypes.Severity]float64{
			datatypes.SeverityMinor:    1,
			datatypes.SeverityMajor:    2,
			datatypes.SeverityCritical: 3,
		},
	}
}

// =============================================================================
// Adapter
// =============================================================================

// Judge converts free-form model judgments into validated findings.
type Judge struct {
	client llm.LLMClient
	cfg    Config
}

// NewJudge builds a Judge over any chat-capable client.
func NewJudge(client llm.LLMClient, cfg Config) *Judge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.SeverityMultipliers == nil {
		cfg.SeverityMultipliers = DefaultConfig().SeverityMultipliers
	}
	return &Judge{client: client, cfg: cfg}
}

// judgeEntry is the wire shape of one rule-mode finding.
type judgeEntry struct {
	RuleID          string             `json:"rule_id"`
	Severity        datatypes.Severity `json:"severity"`
	Justification   string             `json:"justification"`
	HighlightedText string             `json:"highlighted_text"`
	SpanStart       *int               `json:"span_start"`
	SpanEnd         *int               `json:"span_end"`
}

type judgeResponse struct {
	Findings []judgeEntry `json:"findings"`
}

// EvaluateRules judges the target text against the retrieved candidate
// rules.
//
// # Description
//
// Sends the candidate shortlist and the segment pair to the judging
// capability in forced-JSON mode, then filters the response: entries
// citing rules outside the candidate set, carrying invalid severities,
// or pointing spans outside the target are discarded one by one. A
// response with no parseable structure returns ErrContractViolation.
//
// # Inputs
//   - ctx: caller context; the configured timeout is layered on top.
//   - segmentID: stamp applied to every emitted finding.
//   - sourceText, targetText, locale: the segment under evaluation.
//   - candidates: the retriever's shortlist; also the rule_id allowlist.
//
// # Outputs
//   - []datatypes.Finding: validated findings, possibly empty.
//   - error: ErrContractViolation or a transport failure after retries.
func (j *Judge) EvaluateRules(ctx context.Context, segmentID, sourceText, targetText, locale string, candidates []datatypes.Rule) ([]datatypes.Finding, error) {
	ctx, span := otel.Tracer("lexgate.judge").Start(ctx, "judge.EvaluateRules")
	defer span.End()

	if len(candidates) == 0 {
		return nil, nil
	}

	content, err := j.chat(ctx, rulesSystemPrompt(locale, candidates), userPrompt(sourceText, targetText))
	if err != nil {
		return nil, err
	}

	var resp judgeResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}

	allowed := make(map[string]*datatypes.Rule, len(candidates))
	for i := range candidates {
		allowed[candidates[i].RuleID] = &candidates[i]
	}

	findings := make([]datatypes.Finding, 0, len(resp.Findings))
	discarded := 0
	for _, entry := range resp.Findings {
		rule, ok := allowed[entry.RuleID]
		if !ok {
			slog.Warn("Discarding judge finding outside candidate set", "rule_id", entry.RuleID)
			discarded++
			continue
		}
		if !entry.Severity.Valid() || entry.Justification == "" {
			discarded++
			continue
		}
		finding := datatypes.Finding{
			SegmentID:     segmentID,
			RuleID:        rule.RuleID,
			MacroClass:    rule.MacroClass,
			Severity:      entry.Severity,
			Penalty:       rule.DefaultWeight * j.cfg.SeverityMultipliers[entry.Severity],
			Justification: entry.Justification,
			Citation:      rule.Citation,
			Deterministic: false,
			Highlighted:   entry.HighlightedText,
		}
		if entry.SpanStart != nil && entry.SpanEnd != nil {
			start, end := *entry.SpanStart, *entry.SpanEnd
			if start < 0 || end < start || end > len(targetText) {
				// Keep the finding, drop only the untrustworthy span.
				slog.Warn("Dropping out-of-bounds judge span",
					"rule_id", entry.RuleID, "start", start, "end", end)
			} else {
				finding.SpanStart = &start
				finding.SpanEnd = &end
			}
		}
		findings = append(findings, finding)
	}

	span.SetAttributes(
		attribute.Int("judge.findings", len(findings)),
		attribute.Int("judge.discarded", discarded),
	)
	return findings, nil
}

// qualityEntry is the wire shape of one general-quality finding.
type qualityEntry struct {
	IssueType       string             `json:"issue_type"`
	Severity        datatypes.Severity `json:"severity"`
	Justification   string             `json:"justification"`
	HighlightedText string             `json:"highlighted_text"`
}

type qualityResponse struct {
	Issues []qualityEntry `json:"issues"`
}

// EvaluateQuality runs the general quality assessment, independent of
// rule retrieval. Findings carry synthetic QUALITY_* rule_ids drawn from
// the closed issue-type set; anything outside that set is discarded.
func (j *Judge) EvaluateQuality(ctx context.Context, segmentID, sourceText, targetText, locale string) ([]datatypes.Finding, error) {
	ctx, span := otel.Tracer("lexgate.judge").Start(ctx, "judge.EvaluateQuality")
	defer span.End()

	content, err := j.chat(ctx, qualitySystemPrompt(locale), userPrompt(sourceText, targetText))
	if err != nil {
		return nil, err
	}

	var resp qualityResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}

	var findings []datatypes.Finding
	for _, entry := range resp.Issues {
		macro, ok := qualityIssueClasses[entry.IssueType]
		if !ok || !entry.Severity.Valid() || entry.Justification == "" {
			continue
		}
		findings = append(findings, datatypes.Finding{
			SegmentID:     segmentID,
			RuleID:        "QUALITY_" + strings.ToUpper(entry.IssueType),
			MacroClass:    macro,
			Severity:      entry.Severity,
			Penalty:       QualityWeight * j.cfg.SeverityMultipliers[entry.Severity],
			Justification: entry.Justification,
			Citation: datatypes.Citation{
				SectionPath:  []string{"General Translation Quality", issueTitle(entry.IssueType)},
				DocumentName: "Professional Translation Standards",
			},
			Deterministic: false,
			Highlighted:   entry.HighlightedText,
		})
	}
	span.SetAttributes(attribute.Int("judge.quality_findings", len(findings)))
	return findings, nil
}

// chat issues the request with timeout and the transport retry budget.
func (j *Judge) chat(ctx context.Context, system, user string) (string, error) {
	// Low temperature: judging wants reproducibility, not creativity.
	temperature := float32(0.1)
	maxTokens := 2000
	req := llm.ChatRequest{
		System: system,
		User:   user,
		Params: llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		},
		ForceJSON: true,
	}

	var lastErr error
	for attempt := 0; attempt <= j.cfg.TransportRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
		content, err := j.client.Chat(callCtx, req)
		cancel()
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("Judge call failed, retrying", "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("judge transport failure: %w", lastErr)
}

// =============================================================================
// Prompts
// =============================================================================

func rulesSystemPrompt(locale string, candidates []datatypes.Rule) string {
	var rules strings.Builder
	for i := range candidates {
		fmt.Fprintf(&rules, "Rule ID: %s\n", candidates[i].RuleID)
		fmt.Fprintf(&rules, "Rule: %s\n", candidates[i].RuleText)
		fmt.Fprintf(&rules, "Examples: %v | %v\n\n", candidates[i].ExamplesPos, candidates[i].ExamplesNeg)
	}

	return fmt.Sprintf(`You are evaluating a %s translation against specific rules. Be EXTREMELY precise and conservative.

EVALUATION PROCESS:
1. Read the rule carefully
2. Check if the TARGET text violates that specific rule
3. ONLY flag if you can PROVE a violation with evidence
4. DO NOT make assumptions or interpretations

COMMON MISTAKES TO AVOID:
- DNT (Do Not Translate) rules: Check if term was CHANGED or KEPT SAME. If it's KEPT (not translated), there's NO violation.
- Punctuation rules: Check EXACT punctuation marks in target
- Terminology rules: Compare actual terms used vs. required terms
- Style rules: Only flag if clearly different from requirement

BE CONSERVATIVE:
- When in doubt, do NOT flag
- Only flag OBVIOUS, PROVABLE violations
- Do not flag something if the rule is vague

Available Rules:
%s
Output valid JSON:
{
  "findings": [
    {
      "rule_id": "exact_rule_id_from_list_above",
      "severity": "Minor or Major or Critical",
      "justification": "Explain what the rule says and what you found in the target that violates it",
      "highlighted_text": "exact text from target",
      "span_start": 0,
      "span_end": 10
    }
  ]
}

span_start and span_end are byte offsets into the target text.
If NO clear violations, return: {"findings": []}`, locale, rules.String())
}

func qualitySystemPrompt(locale string) string {
	return fmt.Sprintf(`You are assessing the fundamental quality of a %s translation, independent of any style guide. Be EXTREMELY precise and conservative.

Check ONLY these dimensions, using the exact issue_type value shown:
- script_mixing: source-language script left untranslated inside the target
- mistranslation: target states something different from the source
- missing_content: information from the source absent in the target
- grammar: grammatical errors in the target language
- register: tone or formality clearly wrong for professional copy
- terminology: brand or product names changed when they must stay fixed

Do NOT report punctuation width, date formats, placeholders, or line
breaks. Those are checked mechanically elsewhere.

BE CONSERVATIVE: only flag OBVIOUS, PROVABLE problems.

Output valid JSON:
{
  "issues": [
    {
      "issue_type": "one of the values above",
      "severity": "Minor or Major or Critical",
      "justification": "what is wrong and why",
      "highlighted_text": "exact text from target"
    }
  ]
}

If the translation is sound, return: {"issues": []}`, locale)
}

func userPrompt(sourceText, targetText string) string {
	return fmt.Sprintf("Source: %s\nTarget: %s\n\nEvaluate the target translation. Identify any clear violations.", sourceText, targetText)
}

func issueTitle(issueType string) string {
	words := strings.Split(issueType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
