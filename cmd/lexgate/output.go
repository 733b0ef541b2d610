// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings
	CLIExitError    = 2 // Operation failed
)

// prettyOutput reports whether stdout is a terminal and --json was not
// forced. Piped output always gets JSON so scripts can parse it.
func prettyOutput() bool {
	if jsonOutput {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// OutputJSON writes structured data as indented JSON to stdout.
func OutputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputError writes an error message and returns the error exit code.
func OutputError(msg string, err error) int {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	return CLIExitError
}

// printReport renders a ScoreReport for terminal viewing.
func printReport(report *datatypes.ScoreReport) {
	fmt.Printf("\nJob:        %s\n", report.JobID)
	fmt.Printf("Locale:     %s\n", report.Locale)
	fmt.Printf("KB:         %s (rubric %s)\n", report.KBVersion, report.RubricVersion)
	fmt.Printf("Score:      %.1f (%s)\n", report.FinalScore, report.Band)
	if len(report.Warnings) > 0 {
		fmt.Println("Warnings:")
		for _, warning := range report.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
	if len(report.Findings) == 0 {
		fmt.Println("No findings.")
		return
	}
	fmt.Printf("Findings (%d):\n", len(report.Findings))
	for _, finding := range report.Findings {
		origin := "judge"
		if finding.Deterministic {
			origin = "check"
		}
		fmt.Printf("  [%s] %s %s (%s, -%.1f)\n", origin, finding.RuleID,
			finding.Severity, finding.MacroClass, finding.Penalty)
		fmt.Printf("      %s\n", finding.Justification)
		if finding.Highlighted != "" {
			fmt.Printf("      text: %q\n", finding.Highlighted)
		}
	}
}

// printFindings renders bare findings from the local check command.
func printFindings(findings []datatypes.Finding) {
	if len(findings) == 0 {
		fmt.Println("No findings.")
		return
	}
	for _, finding := range findings {
		fmt.Printf("[%s] %s (%s, -%.1f)\n", finding.RuleID, finding.Severity,
			finding.MacroClass, finding.Penalty)
		fmt.Printf("    %s\n", finding.Justification)
	}
}
