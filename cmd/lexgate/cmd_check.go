// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lexgate/lexgate/services/scorer/checks"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/engine"
	"github.com/lexgate/lexgate/services/scorer/kb"
)

// runCheck executes only the deterministic checks against a local KB
// directory. Useful in CI gates where no server or LLM is available.
func runCheck(cmd *cobra.Command, args []string) {
	sourceText, targetText := args[0], args[1]
	kbDir, _ := cmd.Flags().GetString("kb-dir")

	kbStore, err := kb.NewStore(kbDir)
	if err != nil {
		os.Exit(OutputError("open knowledge base directory", err))
	}
	index, err := kbStore.Resolve(kbVersion, locale)
	if err != nil {
		os.Exit(OutputError("resolve knowledge base", err))
	}

	bank, err := checks.NewBank(checks.DefaultConfig())
	if err != nil {
		os.Exit(OutputError("compile checks", err))
	}

	segmentID := engine.SegmentID(targetText)
	findings := bank.Run(segmentID, sourceText, targetText, locale, index.Rules())

	if glossaryPath, _ := cmd.Flags().GetString("glossary"); glossaryPath != "" {
		glossary, err := loadGlossary(glossaryPath)
		if err != nil {
			os.Exit(OutputError("read glossary", err))
		}
		rule := glossaryRule(index.Rules())
		if rule == nil {
			fmt.Fprintln(os.Stderr, "Warning: no terminology rule in the KB, glossary skipped")
		} else {
			findings = append(findings,
				bank.CheckGlossary(segmentID, sourceText, targetText, glossary, rule)...)
		}
	}

	if prettyOutput() {
		fmt.Printf("KB %s, %d rules\n", index.Version(), len(index.Rules()))
		printFindings(findings)
	} else if err := OutputJSON(findings); err != nil {
		os.Exit(OutputError("write output", err))
	}
	if len(findings) > 0 {
		os.Exit(CLIExitFindings)
	}
}

// loadGlossary parses a YAML map of source term to required target term.
func loadGlossary(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	glossary := map[string]string{}
	if err := yaml.Unmarshal(data, &glossary); err != nil {
		return nil, err
	}
	return glossary, nil
}

// glossaryRule picks the terminology rule glossary findings are filed
// under.
func glossaryRule(rules []datatypes.Rule) *datatypes.Rule {
	for i := range rules {
		text := strings.ToLower(rules[i].RuleText)
		if strings.Contains(text, "glossary") || strings.Contains(text, "terminolog") {
			return &rules[i]
		}
	}
	for i := range rules {
		if rules[i].MacroClass == datatypes.MacroTerminology {
			return &rules[i]
		}
	}
	return nil
}
