// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

func runEvaluate(cmd *cobra.Command, args []string) {
	sourceText, targetText, err := evaluateTexts(cmd, args)
	if err != nil {
		os.Exit(OutputError("read segment texts", err))
	}

	req := datatypes.EvaluationRequest{
		SourceText: sourceText,
		TargetText: targetText,
		Locale:     locale,
		KBVersion:  kbVersion,
	}
	var report datatypes.ScoreReport
	if err := newAPIClient().do(http.MethodPost, "/v1/evaluations", nil, req, &report); err != nil {
		os.Exit(OutputError("evaluation failed", err))
	}

	if prettyOutput() {
		printReport(&report)
	} else if err := OutputJSON(report); err != nil {
		os.Exit(OutputError("write output", err))
	}
	if len(report.Findings) > 0 {
		os.Exit(CLIExitFindings)
	}
}

// evaluateTexts resolves source and target from positional args or the
// file flags. Positional args win when both are given.
func evaluateTexts(cmd *cobra.Command, args []string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	sourceFile, _ := cmd.Flags().GetString("source-file")
	targetFile, _ := cmd.Flags().GetString("target-file")
	if sourceFile == "" || targetFile == "" {
		return "", "", fmt.Errorf("provide [source] [target] arguments or both --source-file and --target-file")
	}
	source, err := os.ReadFile(sourceFile)
	if err != nil {
		return "", "", err
	}
	target, err := os.ReadFile(targetFile)
	if err != nil {
		return "", "", err
	}
	return string(source), string(target), nil
}

func runReport(_ *cobra.Command, args []string) {
	var report datatypes.ScoreReport
	if err := newAPIClient().do(http.MethodGet, "/v1/evaluations/"+args[0], nil, nil, &report); err != nil {
		os.Exit(OutputError("fetch report", err))
	}
	if prettyOutput() {
		printReport(&report)
		return
	}
	if err := OutputJSON(report); err != nil {
		os.Exit(OutputError("write output", err))
	}
}

func runList(_ *cobra.Command, _ []string) {
	var resp struct {
		Evaluations []datatypes.ReportSummary `json:"evaluations"`
		Count       int                       `json:"count"`
	}
	if err := newAPIClient().do(http.MethodGet, "/v1/evaluations", nil, nil, &resp); err != nil {
		os.Exit(OutputError("list evaluations", err))
	}
	if !prettyOutput() {
		if err := OutputJSON(resp); err != nil {
			os.Exit(OutputError("write output", err))
		}
		return
	}
	if resp.Count == 0 {
		fmt.Println("No evaluations stored.")
		return
	}
	fmt.Printf("%-38s %-8s %-16s %6s  %-12s %s\n",
		"JOB", "LOCALE", "KB", "SCORE", "BAND", "FINDINGS")
	for _, summary := range resp.Evaluations {
		fmt.Printf("%-38s %-8s %-16s %6.1f  %-12s %d\n",
			summary.JobID, summary.Locale, summary.KBVersion,
			summary.FinalScore, summary.Band, summary.Findings)
	}
}
