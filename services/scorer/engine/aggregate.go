// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"strings"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// aggregate merges validator, rule-judge, and quality-judge findings
// into one collection.
//
// Deduplication: two findings are duplicates when they share segment_id,
// rule_id, and overlapping spans (a finding without a span overlaps
// everything on its rule). The deterministic finding wins; its
// mechanical justification is more reliable than a model's, so the
// LLM-sourced duplicate is dropped.
//
// Findings citing a rule_id absent from the knowledge base are dropped
// too, except synthetic QUALITY_* identifiers which by design have no KB
// rule behind them.
func aggregate(validator, ruleJudge, quality []datatypes.Finding, hasRule func(string) bool) []datatypes.Finding {
	merged := make([]datatypes.Finding, 0, len(validator)+len(ruleJudge)+len(quality))
	merged = append(merged, validator...)

	for _, candidate := range append(ruleJudge, quality...) {
		if isDuplicate(candidate, merged) {
			continue
		}
		merged = append(merged, candidate)
	}

	kept := merged[:0]
	for _, f := range merged {
		if strings.HasPrefix(f.RuleID, "QUALITY_") || hasRule(f.RuleID) {
			kept = append(kept, f)
		}
	}
	return kept
}

func isDuplicate(candidate datatypes.Finding, existing []datatypes.Finding) bool {
	for i := range existing {
		if existing[i].SegmentID != candidate.SegmentID || existing[i].RuleID != candidate.RuleID {
			continue
		}
		if existing[i].Overlaps(&candidate) {
			return true
		}
	}
	return false
}
