// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lexgate/services/scorer/checks"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/judge"
	"github.com/lexgate/lexgate/services/scorer/scoring"
)

func TestPipelineConfigs_RubricMultipliersFlowThrough(t *testing.T) {
	rubric := scoring.DefaultRubric()
	rubric.SeverityMultipliers = map[datatypes.Severity]float64{
		datatypes.SeverityMinor:    0.5,
		datatypes.SeverityMajor:    4,
		datatypes.SeverityCritical: 9,
	}
	require.NoError(t, rubric.Validate())

	checksCfg, judgeCfg := pipelineConfigs(rubric)

	assert.Equal(t, rubric.SeverityMultipliers, checksCfg.SeverityMultipliers)
	assert.Equal(t, rubric.SeverityMultipliers, judgeCfg.SeverityMultipliers)

	// Non-multiplier settings keep their defaults.
	assert.Equal(t, judge.DefaultConfig().Timeout, judgeCfg.Timeout)
	assert.Equal(t, judge.DefaultConfig().TransportRetries, judgeCfg.TransportRetries)

	// The multipliers must survive bank construction so a stored
	// penalty divides back to the rule weight during override
	// recomputation.
	bank, err := checks.NewBank(checksCfg)
	require.NoError(t, err)
	require.NotNil(t, bank)
}

func TestPipelineConfigs_DefaultRubricMatchesDefaults(t *testing.T) {
	checksCfg, judgeCfg := pipelineConfigs(scoring.DefaultRubric())

	assert.Equal(t, checks.DefaultConfig().SeverityMultipliers, checksCfg.SeverityMultipliers)
	assert.Equal(t, judge.DefaultConfig().SeverityMultipliers, judgeCfg.SeverityMultipliers)
}
