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
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

func runRulesSearch(cmd *cobra.Command, args []string) {
	topK, _ := cmd.Flags().GetInt("top-k")
	query := url.Values{
		"q":      {args[0]},
		"locale": {locale},
		"top_k":  {strconv.Itoa(topK)},
	}
	if kbVersion != "" {
		query.Set("kb_version", kbVersion)
	}

	var resp struct {
		KBVersion string                       `json:"kb_version"`
		Results   []datatypes.RuleSearchResult `json:"results"`
		Degraded  bool                         `json:"degraded"`
	}
	if err := newAPIClient().do(http.MethodGet, "/v1/rules/search", query, nil, &resp); err != nil {
		os.Exit(OutputError("search rules", err))
	}
	if !prettyOutput() {
		if err := OutputJSON(resp); err != nil {
			os.Exit(OutputError("write output", err))
		}
		return
	}
	fmt.Printf("KB %s", resp.KBVersion)
	if resp.Degraded {
		fmt.Print(" (lexical only, embedding backend unavailable)")
	}
	fmt.Println()
	for _, result := range resp.Results {
		fmt.Printf("%.3f  %-16s %s\n", result.Score, result.RuleID, result.RuleText)
	}
}

func runKBList(_ *cobra.Command, _ []string) {
	var resp struct {
		KnowledgeBases []datatypes.KnowledgeBase `json:"knowledge_bases"`
		Count          int                       `json:"count"`
	}
	if err := newAPIClient().do(http.MethodGet, "/v1/kb", nil, nil, &resp); err != nil {
		os.Exit(OutputError("list knowledge bases", err))
	}
	if !prettyOutput() {
		if err := OutputJSON(resp); err != nil {
			os.Exit(OutputError("write output", err))
		}
		return
	}
	if resp.Count == 0 {
		fmt.Println("No knowledge base snapshots.")
		return
	}
	fmt.Printf("%-16s %-8s %-8s %s\n", "VERSION", "LOCALE", "RULES", "RUBRIC")
	for _, snapshot := range resp.KnowledgeBases {
		fmt.Printf("%-16s %-8s %-8d %s\n", snapshot.KBVersion, snapshot.Locale,
			snapshot.RuleCount, snapshot.RubricVersion)
	}
}

func runStats(_ *cobra.Command, _ []string) {
	var stats datatypes.StatsResponse
	if err := newAPIClient().do(http.MethodGet, "/v1/stats", nil, nil, &stats); err != nil {
		os.Exit(OutputError("fetch stats", err))
	}
	if !prettyOutput() {
		if err := OutputJSON(stats); err != nil {
			os.Exit(OutputError("write output", err))
		}
		return
	}
	fmt.Printf("Evaluations:     %d\n", stats.Evaluations)
	fmt.Printf("Knowledge bases: %d\n", stats.KnowledgeBases)
	fmt.Printf("Mean score:      %.1f\n", stats.MeanScore)
}
