// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package kb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

func writeSnapshot(t *testing.T, dir, version, locale string, rules []datatypes.Rule) {
	t.Helper()
	kb := datatypes.KnowledgeBase{
		KBVersion:     version,
		RubricVersion: "2.0.0",
		Locale:        locale,
		Rules:         rules,
		RuleCount:     len(rules),
		CreatedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(kb)
	require.NoError(t, err)
	name := filepath.Join(dir, "kb_"+version+"_"+locale+".json")
	require.NoError(t, os.WriteFile(name, data, 0644))
}

func sampleRules() []datatypes.Rule {
	return []datatypes.Rule{
		{
			RuleID:          "MQM-TERM-001",
			MacroClass:      datatypes.MacroTerminology,
			MicroClass:      "glossary_deviation",
			RuleText:        "Approved glossary terms must be used in the target.",
			DefaultSeverity: datatypes.SeverityMajor,
			DefaultWeight:   4,
		},
		{
			RuleID:          "MQM-PUNC-003",
			MacroClass:      datatypes.MacroPunctuation,
			MicroClass:      "fullwidth_required",
			RuleText:        "CJK text must use fullwidth punctuation.",
			DefaultSeverity: datatypes.SeverityMinor,
			DefaultWeight:   2,
		},
	}
}

func TestStore_ResolveExplicitVersion(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "20250101120000", "zh-CN", sampleRules())

	store, err := NewStore(dir)
	require.NoError(t, err)

	index, err := store.Resolve("20250101120000", "zh-CN")
	require.NoError(t, err)
	assert.Equal(t, "20250101120000", index.Version())
	assert.Equal(t, "2.0.0", index.RubricVersion())
	assert.Equal(t, "zh-CN", index.Locale())
	assert.Len(t, index.Rules(), 2)

	rule, err := index.Rule("MQM-TERM-001")
	require.NoError(t, err)
	assert.Equal(t, datatypes.MacroTerminology, rule.MacroClass)

	_, err = index.Rule("MQM-NOPE-999")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestStore_ResolveNewestWhenVersionEmpty(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "20250101120000", "zh-CN", sampleRules())
	writeSnapshot(t, dir, "20250301090000", "zh-CN", sampleRules()[:1])
	writeSnapshot(t, dir, "20250401090000", "ja-JP", sampleRules())

	store, err := NewStore(dir)
	require.NoError(t, err)

	index, err := store.Resolve("", "zh-CN")
	require.NoError(t, err)
	assert.Equal(t, "20250301090000", index.Version())
	assert.Len(t, index.Rules(), 1)
}

func TestStore_ResolveNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Resolve("", "zh-CN")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Resolve("20990101000000", "zh-CN")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetRuleAcrossLocales(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "20250101120000", "zh-CN", sampleRules())

	store, err := NewStore(dir)
	require.NoError(t, err)

	rule, err := store.GetRule("MQM-PUNC-003", "20250101120000")
	require.NoError(t, err)
	assert.Equal(t, "fullwidth_required", rule.MicroClass)

	_, err = store.GetRule("MQM-PUNC-003", "20990101000000")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestStore_List(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "20250101120000", "zh-CN", sampleRules())
	writeSnapshot(t, dir, "20250301090000", "ja-JP", sampleRules())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	store, err := NewStore(dir)
	require.NoError(t, err)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, kb := range list {
		assert.Equal(t, 2, kb.RuleCount)
		assert.Nil(t, kb.Rules)
	}
}

func TestStore_CacheReusesIndex(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "20250101120000", "zh-CN", sampleRules())

	store, err := NewStore(dir)
	require.NoError(t, err)

	first, err := store.Resolve("20250101120000", "zh-CN")
	require.NoError(t, err)
	second, err := store.Resolve("20250101120000", "zh-CN")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
