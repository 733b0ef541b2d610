// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire and storage types shared by the scorer
// service: rules, findings, score reports, and reviewer feedback events.
//
// Types here carry JSON tags matching the persisted record shapes. They are
// deliberately free of behavior beyond validation helpers so that every
// subsystem (validator bank, retriever, judge, scoring engine, review ledger)
// can exchange them without import cycles.
package datatypes

import (
	"time"
)

// =============================================================================
// Taxonomies
// =============================================================================

// MacroClass is the closed top-level rule taxonomy. The scoring engine's
// grouping and category-cap logic depend on this set being closed, so it is
// an enumerated string type rather than free text.
type MacroClass string

const (
	MacroAccuracy    MacroClass = "Accuracy"
	MacroTerminology MacroClass = "Terminology"
	MacroMechanics   MacroClass = "Mechanics"
	MacroPunctuation MacroClass = "Punctuation"
	MacroStyle       MacroClass = "Style"
	MacroLegal       MacroClass = "Legal"
	MacroStandards   MacroClass = "Standards"
)

// MacroClasses lists every valid macro class in a fixed order.
var MacroClasses = []MacroClass{
	MacroAccuracy,
	MacroTerminology,
	MacroMechanics,
	MacroPunctuation,
	MacroStyle,
	MacroLegal,
	MacroStandards,
}

// Valid reports whether m is a member of the closed taxonomy.
func (m MacroClass) Valid() bool {
	for _, known := range MacroClasses {
		if m == known {
			return true
		}
	}
	return false
}

// Severity grades a rule violation. The set is closed so that the severity
// multiplier table in the rubric can be exhaustively validated.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityMajor    Severity = "Major"
	SeverityCritical Severity = "Critical"
)

// Valid reports whether s is one of Minor, Major, Critical.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// =============================================================================
// Rules
// =============================================================================

// Citation pins a rule back to its position in the source style guide.
// Copied onto findings at evaluation time so that reports stay explainable
// against the KB version that produced them, even after the KB moves on.
type Citation struct {
	SectionPath  []string `json:"section_path"`
	PageNumber   int      `json:"page_number,omitempty"`
	DocumentName string   `json:"document_name,omitempty"`
	Locale       string   `json:"locale,omitempty"`
}

// Rule is one atomic, versioned quality requirement from the knowledge base.
//
// Rules are created by the ingestion subsystem and never mutated here. Each
// rule is scoped to a single kb_version; the same logical rule re-ingested
// under a new version is a distinct Rule value.
//
// Embedding holds the precomputed vector from the embedding capability. The
// retriever treats it as an opaque fixed-length vector; a nil or empty
// embedding simply excludes the rule from the semantic signal.
type Rule struct {
	RuleID          string     `json:"rule_id"`
	MacroClass      MacroClass `json:"macro_class"`
	MicroClass      string     `json:"micro_class"`
	RuleText        string     `json:"rule_text"`
	ExamplesPos     []string   `json:"examples_pos,omitempty"`
	ExamplesNeg     []string   `json:"examples_neg,omitempty"`
	DefaultSeverity Severity   `json:"default_severity"`
	DefaultWeight   float64    `json:"default_weight"`
	Citation        Citation   `json:"citation"`
	RegexReady      bool       `json:"regex_ready"`
	RegexPattern    string     `json:"regex_pattern,omitempty"`
	// Terms holds source-to-target pairs for glossary rules
	// (micro_class "glossary"): the mandated translation of each term.
	Terms     map[string]string `json:"terms,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// RetrievalText returns the text a rule is indexed under: the rule text plus
// its examples, matching what the ingestion pipeline embedded.
func (r *Rule) RetrievalText() string {
	text := r.RuleText
	for _, ex := range r.ExamplesPos {
		text += " " + ex
	}
	for _, ex := range r.ExamplesNeg {
		text += " " + ex
	}
	return text
}

// KnowledgeBase is one immutable, versioned rule set for a single locale.
// It is the self-describing record persisted under its kb_version.
type KnowledgeBase struct {
	KBVersion      string    `json:"kb_version"`
	RubricVersion  string    `json:"rubric_version"`
	Locale         string    `json:"locale"`
	SourceDocument string    `json:"source_document"`
	Rules          []Rule    `json:"rules"`
	RuleCount      int       `json:"rule_count"`
	CreatedAt      time.Time `json:"created_at"`
}
