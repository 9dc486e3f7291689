// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetGlobalConfig() {
	globalConfig = defaultConfig()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "grove.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o600))
	return tmpFile
}

// governanceMap renders a complete governance section, minus the omitted
// keys
func governanceMap(t *testing.T, mutate func(p *Params), omit ...string) map[string]any {
	t.Helper()
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	out, err := yaml.Marshal(p)
	require.NoError(t, err)
	ret := make(map[string]any)
	require.NoError(t, yaml.Unmarshal(out, &ret))
	for _, key := range omit {
		delete(ret, key)
	}
	return ret
}

func writeYAML(t *testing.T, doc map[string]any) string {
	t.Helper()
	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	return writeConfig(t, string(out))
}

func TestLoad_WithoutConfigFile_RequiresGovernance(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())
	_, err := LoadConfig("")
	require.ErrorIs(t, err, ErrParamMissing)
	assert.Contains(t, err.Error(), "repMultiplierMin")
}

func TestLoad_OverlaysYaml(t *testing.T) {
	resetGlobalConfig()
	cfg, err := LoadConfig(writeYAML(t, map[string]any{
		"databasePath":      "/var/lib/grove",
		"metricsPort":       9100,
		"schedulerInterval": "250ms",
		"governance": governanceMap(t, func(p *Params) {
			p.VouchCap = 30
			p.DecayFactor = decimal.RequireFromString("0.75")
			p.CyclePeriod = 48 * time.Hour
		}),
	}))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/grove", cfg.DatabasePath)
	assert.Equal(t, uint(9100), cfg.MetricsPort)
	assert.Equal(t, 250*time.Millisecond, cfg.SchedulerInterval)
	assert.Equal(t, uint64(30), cfg.Governance.VouchCap)
	assert.True(
		t,
		cfg.Governance.DecayFactor.Equal(decimal.RequireFromString("0.75")),
	)
	assert.Equal(t, 48*time.Hour, cfg.Governance.CyclePeriod)
	assert.Equal(t, uint64(100), cfg.Governance.FlagThreshold)
	assert.Equal(t, "campaign.fund", cfg.Governance.Funds["campaign"].Account)
	assert.Equal(t, DefaultBlobPlugin, cfg.BlobPlugin)
}

func TestLoad_PartialGovernanceFails(t *testing.T) {
	resetGlobalConfig()
	_, err := LoadConfig(writeConfig(t, "governance:\n  vouchCap: 30\n"))
	require.ErrorIs(t, err, ErrParamMissing)
	assert.Contains(t, err.Error(), "repMultiplierMin")

	// Keys that may legitimately be zero must still be present
	for _, key := range []string{"flagVouchPenaltyPct", "decayFloor", "quorumMin", "funds"} {
		resetGlobalConfig()
		_, err := LoadConfig(writeYAML(t, map[string]any{
			"governance": governanceMap(t, nil, key),
		}))
		require.ErrorIs(t, err, ErrParamMissing, key)
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_DatabaseSectionSelectsPlugin(t *testing.T) {
	resetGlobalConfig()
	cfg, err := LoadConfig(writeYAML(t, map[string]any{
		"config": map[string]any{
			"bindAddr":   "127.0.0.1",
			"governance": governanceMap(t, nil),
		},
		"database": map[string]any{
			"metadata": map[string]any{
				"plugin": "postgres",
				"postgres": map[string]any{
					"host":     "db.internal",
					"database": "grove_test",
				},
			},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("GROVE_METRICS_PORT", "9200")
	t.Setenv("GROVE_GOVERNANCE_VOUCH_CAP", "75")
	cfg, err := LoadConfig(writeYAML(t, map[string]any{
		"metricsPort": 9100,
		"governance":  governanceMap(t, nil),
	}))
	require.NoError(t, err)
	assert.Equal(t, uint(9200), cfg.MetricsPort)
	assert.Equal(t, uint64(75), cfg.Governance.VouchCap)
}

func TestLoad_EnvironmentSuppliesMissingKey(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("GROVE_GOVERNANCE_FLAG_VOUCH_PENALTY_PCT", "15")
	t.Setenv("GROVE_GOVERNANCE_REF_CBS_REWARD", "3")
	cfg, err := LoadConfig(writeYAML(t, map[string]any{
		"governance": governanceMap(t, nil, "flagVouchPenaltyPct", "refCbsReward"),
	}))
	require.NoError(t, err)
	assert.Equal(t, uint64(15), cfg.Governance.FlagVouchPenaltyPct)
	assert.Equal(t, uint64(3), cfg.Governance.RefCBSReward)
}

func TestLoad_InvalidGovernanceFailsFast(t *testing.T) {
	resetGlobalConfig()
	_, err := LoadConfig(writeYAML(t, map[string]any{
		"governance": governanceMap(t, func(p *Params) { p.FlagThreshold = 0 }),
	}))
	require.ErrorIs(t, err, ErrParamMissing)
	assert.Contains(t, err.Error(), "flagThreshold")
}

func TestParamEnvName(t *testing.T) {
	assert.Equal(t, "GROVE_GOVERNANCE_VOUCH_CAP", paramEnvName("VouchCap"))
	assert.Equal(t, "GROVE_GOVERNANCE_REF_CBS_REWARD", paramEnvName("RefCBSReward"))
	assert.Equal(t, "GROVE_GOVERNANCE_DECAY_FACTOR", paramEnvName("DecayFactor"))
}

func TestParamsValidate(t *testing.T) {
	testDefs := []struct {
		name    string
		mutate  func(p *Params)
		wantErr error
	}{
		{
			name:   "defaults",
			mutate: func(p *Params) {},
		},
		{
			name:    "missing vouch cap",
			mutate:  func(p *Params) { p.VouchCap = 0 },
			wantErr: ErrParamMissing,
		},
		{
			name: "decay factor above one",
			mutate: func(p *Params) {
				p.DecayFactor = decimal.RequireFromString("1.1")
			},
			wantErr: ErrParamInvalid,
		},
		{
			name:    "no funds",
			mutate:  func(p *Params) { p.Funds = nil },
			wantErr: ErrParamMissing,
		},
		{
			name: "fund without account",
			mutate: func(p *Params) {
				p.Funds["campaign"] = FundParams{StakeCap: 10}
			},
			wantErr: ErrParamMissing,
		},
		{
			name: "inverted multiplier",
			mutate: func(p *Params) {
				p.RepMultiplierMax = decimal.RequireFromString("0.5")
			},
			wantErr: ErrParamInvalid,
		},
		{
			name:    "inverted quorum",
			mutate:  func(p *Params) { p.QuorumMin = 50 },
			wantErr: ErrParamInvalid,
		},
		{
			name:    "inverted rank thresholds",
			mutate:  func(p *Params) { p.ResidentRankMin = 90 },
			wantErr: ErrParamInvalid,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			p := DefaultParams()
			testDef.mutate(&p)
			err := p.Validate()
			if testDef.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, testDef.wantErr)
		})
	}
}

func TestFundNamesSorted(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, []string{"alliance", "campaign"}, p.FundNames())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
