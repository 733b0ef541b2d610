// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL  string
	apiToken   string
	locale     string
	kbVersion  string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "lexgate",
		Short: "A cli for the LexGate translation scoring service",
		Long: `LexGate evaluates translations against a versioned knowledge base of
style and compliance rules, combining deterministic checks with
LLM-as-judge findings into an auditable score.`,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the scorer service in the foreground",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Evaluation ---
	evaluateCmd = &cobra.Command{
		Use:   "evaluate [source] [target]",
		Short: "Evaluate one translation segment against the knowledge base",
		Args:  cobra.RangeArgs(0, 2),
		Run:   runEvaluate, // Defined in cmd_evaluate.go
	}

	reportCmd = &cobra.Command{
		Use:   "report [job_id]",
		Short: "Fetch a stored evaluation report",
		Args:  cobra.ExactArgs(1),
		Run:   runReport, // Defined in cmd_evaluate.go
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored evaluations, newest first",
		Run:   runList, // Defined in cmd_evaluate.go
	}

	// --- Deterministic checks, no server required ---
	checkCmd = &cobra.Command{
		Use:   "check [source] [target]",
		Short: "Run only the deterministic checks locally against a KB directory",
		Args:  cobra.ExactArgs(2),
		Run:   runCheck, // Defined in cmd_check.go
	}

	// --- Review ---
	overrideCmd = &cobra.Command{
		Use:   "override [job_id]",
		Short: "Append a reviewer correction to a finding",
		Args:  cobra.ExactArgs(1),
		Run:   runOverride, // Defined in cmd_review.go
	}

	eventsCmd = &cobra.Command{
		Use:   "events [job_id]",
		Short: "Show the audit trail of a job",
		Args:  cobra.ExactArgs(1),
		Run:   runEvents, // Defined in cmd_review.go
	}

	// --- Rules / KB ---
	rulesSearchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search rules with the hybrid retriever",
		Args:  cobra.ExactArgs(1),
		Run:   runRulesSearch, // Defined in cmd_rules.go
	}

	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Explore the rule knowledge base",
	}

	kbCmd = &cobra.Command{
		Use:   "kb",
		Short: "List knowledge base snapshots",
		Run:   runKBList, // Defined in cmd_rules.go
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show evaluation statistics",
		Run:   runStats, // Defined in cmd_rules.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Scorer server URL (default $LEXGATE_SERVER_URL or http://localhost:12310)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Bearer token (default $LEXGATE_API_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Force JSON output")

	evaluateCmd.Flags().StringVar(&locale, "locale", "zh-CN", "Target locale (BCP 47)")
	evaluateCmd.Flags().StringVar(&kbVersion, "kb-version", "", "Pin a knowledge base version")
	evaluateCmd.Flags().String("source-file", "", "Read the source text from a file")
	evaluateCmd.Flags().String("target-file", "", "Read the target text from a file")

	checkCmd.Flags().StringVar(&locale, "locale", "zh-CN", "Target locale (BCP 47)")
	checkCmd.Flags().StringVar(&kbVersion, "kb-version", "", "Pin a knowledge base version")
	checkCmd.Flags().String("kb-dir", "./kb", "Knowledge base snapshot directory")
	checkCmd.Flags().String("glossary", "", "YAML file of source term to required target term")

	overrideCmd.Flags().String("segment", "", "Segment id of the finding")
	overrideCmd.Flags().String("rule", "", "Rule id of the finding")
	overrideCmd.Flags().String("action", "", "accept, dismiss, change_severity, or reclassify")
	overrideCmd.Flags().String("severity", "", "New severity for change_severity")
	overrideCmd.Flags().String("macro-class", "", "New macro class for reclassify")
	overrideCmd.Flags().String("reason", "", "Reviewer justification")
	overrideCmd.Flags().String("actor", "", "Reviewer identity (default $USER)")

	rulesSearchCmd.Flags().StringVar(&locale, "locale", "zh-CN", "Target locale (BCP 47)")
	rulesSearchCmd.Flags().StringVar(&kbVersion, "kb-version", "", "Pin a knowledge base version")
	rulesSearchCmd.Flags().Int("top-k", 10, "Number of results")

	serveCmd.Flags().String("port", "", "Listen port (default $SCORER_PORT or 12310)")
	serveCmd.Flags().String("kb-dir", "", "Knowledge base snapshot directory")
	serveCmd.Flags().String("data-dir", "", "Badger storage directory")

	rulesCmd.AddCommand(rulesSearchCmd)
	rootCmd.AddCommand(serveCmd, evaluateCmd, reportCmd, listCmd, checkCmd,
		overrideCmd, eventsCmd, rulesCmd, kbCmd, statsCmd)
}
