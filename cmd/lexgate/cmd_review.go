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

func runOverride(cmd *cobra.Command, args []string) {
	jobID := args[0]
	segmentID, _ := cmd.Flags().GetString("segment")
	ruleID, _ := cmd.Flags().GetString("rule")
	action, _ := cmd.Flags().GetString("action")
	severity, _ := cmd.Flags().GetString("severity")
	macroClass, _ := cmd.Flags().GetString("macro-class")
	reason, _ := cmd.Flags().GetString("reason")
	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		actor = os.Getenv("USER")
	}

	req := datatypes.OverrideRequest{
		SegmentID:     segmentID,
		RuleID:        ruleID,
		Action:        datatypes.FeedbackAction(action),
		NewSeverity:   datatypes.Severity(severity),
		NewMacroClass: datatypes.MacroClass(macroClass),
		Reason:        reason,
		Actor:         actor,
	}
	if err := req.Validate(); err != nil {
		os.Exit(OutputError("invalid override", err))
	}

	var resp datatypes.OverrideResponse
	path := "/v1/evaluations/" + jobID + "/overrides"
	if err := newAPIClient().do(http.MethodPost, path, nil, req, &resp); err != nil {
		os.Exit(OutputError("apply override", err))
	}

	if !prettyOutput() {
		if err := OutputJSON(resp); err != nil {
			os.Exit(OutputError("write output", err))
		}
		return
	}
	fmt.Printf("Recorded %s by %s (event %s)\n", resp.Event.Action, resp.Event.Actor, resp.Event.EventID)
	printReport(&resp.Report)
}

func runEvents(_ *cobra.Command, args []string) {
	var resp struct {
		Events []datatypes.FeedbackEvent `json:"events"`
	}
	if err := newAPIClient().do(http.MethodGet, "/v1/evaluations/"+args[0]+"/events", nil, nil, &resp); err != nil {
		os.Exit(OutputError("fetch events", err))
	}
	if !prettyOutput() {
		if err := OutputJSON(resp); err != nil {
			os.Exit(OutputError("write output", err))
		}
		return
	}
	if len(resp.Events) == 0 {
		fmt.Println("No overrides recorded.")
		return
	}
	for _, event := range resp.Events {
		fmt.Printf("%s  %s  %s/%s  %s", event.CreatedAt.Format("2006-01-02 15:04:05"),
			event.Action, event.SegmentID, event.RuleID, event.Actor)
		if event.NewValue != "" {
			fmt.Printf("  %s -> %s", event.OldValue, event.NewValue)
		}
		fmt.Printf("\n    %s\n", event.Reason)
	}
}
