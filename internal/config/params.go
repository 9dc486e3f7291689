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
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrParamMissing = errors.New("governance parameter not set")
	ErrParamInvalid = errors.New("governance parameter invalid")
)

// FundParams configures one proposal fund. The fund name doubles as the voice
// scope that votes on its proposals.
type FundParams struct {
	Account  string `yaml:"account"`
	StakeCap uint64 `yaml:"stakeCap"`
}

// Params holds the governance parameters. They are validated once at start
// and read as plain fields afterwards.
type Params struct {
	RepMultiplierMin  decimal.Decimal       `yaml:"repMultiplierMin"  split_words:"true"`
	RepMultiplierMax  decimal.Decimal       `yaml:"repMultiplierMax"  split_words:"true"`
	FlagMultiplierMin decimal.Decimal       `yaml:"flagMultiplierMin" split_words:"true"`
	FlagMultiplierMax decimal.Decimal       `yaml:"flagMultiplierMax" split_words:"true"`
	RefRewardDecay    decimal.Decimal       `yaml:"refRewardDecay"    split_words:"true"`
	DecayFactor       decimal.Decimal       `yaml:"decayFactor"       split_words:"true"`
	Funds             map[string]FundParams `yaml:"funds"             ignored:"true"`
	TreasuryAccount   string                `yaml:"treasuryAccount"   split_words:"true"`
	DecayPeriod       time.Duration         `yaml:"decayPeriod"       split_words:"true"`
	CyclePeriod       time.Duration         `yaml:"cyclePeriod"       split_words:"true"`

	BatchSize     uint64 `yaml:"batchSize"     split_words:"true"`
	RankChunkSize uint64 `yaml:"rankChunkSize" split_words:"true"`

	VouchCap            uint64 `yaml:"vouchCap"            split_words:"true"`
	VouchResidentPoints uint64 `yaml:"vouchResidentPoints" split_words:"true"`
	VouchCitizenPoints  uint64 `yaml:"vouchCitizenPoints"  split_words:"true"`
	VouchRewardResident uint64 `yaml:"vouchRewardResident" split_words:"true"`
	VouchRewardCitizen  uint64 `yaml:"vouchRewardCitizen"  split_words:"true"`

	FlagThreshold       uint64 `yaml:"flagThreshold"       split_words:"true"`
	FlagResidentPoints  uint64 `yaml:"flagResidentPoints"  split_words:"true"`
	FlagCitizenPoints   uint64 `yaml:"flagCitizenPoints"   split_words:"true"`
	FlagVouchPenaltyPct uint64 `yaml:"flagVouchPenaltyPct" split_words:"true"`
	DelegationMaxDepth  uint64 `yaml:"delegationMaxDepth"  split_words:"true"`

	// Percentile rank thresholds used when re-evaluating status
	ResidentRankMin uint64 `yaml:"residentRankMin" split_words:"true"`
	CitizenRankMin  uint64 `yaml:"citizenRankMin"  split_words:"true"`

	RefRewardMin     uint64 `yaml:"refRewardMin"     split_words:"true"`
	RefRewardMax     uint64 `yaml:"refRewardMax"     split_words:"true"`
	RefRepReward     uint64 `yaml:"refRepReward"     split_words:"true"`
	RefCBSReward     uint64 `yaml:"refCbsReward"     split_words:"true"`
	OrgRefReward     uint64 `yaml:"orgRefReward"     split_words:"true"`
	AmbassadorReward uint64 `yaml:"ambassadorReward" split_words:"true"`

	VoiceCitizen       uint64 `yaml:"voiceCitizen"       split_words:"true"`
	VoiceMax           uint64 `yaml:"voiceMax"           split_words:"true"`
	VoiceParticipation uint64 `yaml:"voiceParticipation" split_words:"true"`
	DecayFloor         uint64 `yaml:"decayFloor"         split_words:"true"`

	StakePct           uint64 `yaml:"stakePct"           split_words:"true"`
	StakeMin           uint64 `yaml:"stakeMin"           split_words:"true"`
	LinearPayoutCycles uint64 `yaml:"linearPayoutCycles" split_words:"true"`
	QuorumBase         uint64 `yaml:"quorumBase"         split_words:"true"`
	QuorumMin          uint64 `yaml:"quorumMin"          split_words:"true"`
	QuorumMax          uint64 `yaml:"quorumMax"          split_words:"true"`
}

// DefaultParams returns a complete parameter set for development and tests.
// Loaded configuration never falls back to it.
func DefaultParams() Params {
	return Params{
		RepMultiplierMin:  decimal.NewFromInt(1),
		RepMultiplierMax:  decimal.NewFromInt(1),
		FlagMultiplierMin: decimal.NewFromInt(1),
		FlagMultiplierMax: decimal.NewFromInt(1),
		RefRewardDecay:    decimal.NewFromInt(10),
		DecayFactor:       decimal.RequireFromString("0.9"),
		Funds: map[string]FundParams{
			"campaign": {Account: "campaign.fund", StakeCap: 100000},
			"alliance": {Account: "alliance.fund", StakeCap: 50000},
		},
		TreasuryAccount:     "treasury",
		DecayPeriod:         7 * 24 * time.Hour,
		CyclePeriod:         28 * 24 * time.Hour,
		BatchSize:           100,
		RankChunkSize:       200,
		VouchCap:            50,
		VouchResidentPoints: 10,
		VouchCitizenPoints:  20,
		VouchRewardResident: 1,
		VouchRewardCitizen:  1,
		FlagThreshold:       100,
		FlagResidentPoints:  10,
		FlagCitizenPoints:   20,
		FlagVouchPenaltyPct: 10,
		DelegationMaxDepth:  5,
		ResidentRankMin:     25,
		CitizenRankMin:      50,
		RefRewardMin:        100,
		RefRewardMax:        1000,
		RefRepReward:        1,
		RefCBSReward:        1,
		OrgRefReward:        100,
		AmbassadorReward:    50,
		VoiceCitizen:        20,
		VoiceMax:            1000,
		VoiceParticipation:  5,
		StakePct:            5,
		StakeMin:            500,
		LinearPayoutCycles:  4,
		QuorumBase:          90,
		QuorumMin:           5,
		QuorumMax:           20,
	}
}

// FundNames returns the configured fund names in sorted order
func (p *Params) FundNames() []string {
	ret := make([]string, 0, len(p.Funds))
	for name := range p.Funds {
		ret = append(ret, name)
	}
	slices.Sort(ret)
	return ret
}

// Validate checks every required parameter and names the first one that is
// missing or out of range
func (p *Params) Validate() error {
	required := []struct {
		key   string
		value uint64
	}{
		{"batchSize", p.BatchSize},
		{"rankChunkSize", p.RankChunkSize},
		{"vouchCap", p.VouchCap},
		{"vouchResidentPoints", p.VouchResidentPoints},
		{"vouchCitizenPoints", p.VouchCitizenPoints},
		{"flagThreshold", p.FlagThreshold},
		{"flagResidentPoints", p.FlagResidentPoints},
		{"flagCitizenPoints", p.FlagCitizenPoints},
		{"delegationMaxDepth", p.DelegationMaxDepth},
		{"citizenRankMin", p.CitizenRankMin},
		{"voiceCitizen", p.VoiceCitizen},
		{"voiceMax", p.VoiceMax},
		{"stakeMin", p.StakeMin},
		{"linearPayoutCycles", p.LinearPayoutCycles},
		{"quorumBase", p.QuorumBase},
		{"quorumMax", p.QuorumMax},
	}
	for _, r := range required {
		if r.value == 0 {
			return fmt.Errorf("%w: %s", ErrParamMissing, r.key)
		}
	}
	if p.TreasuryAccount == "" {
		return fmt.Errorf("%w: treasuryAccount", ErrParamMissing)
	}
	if p.CyclePeriod <= 0 {
		return fmt.Errorf("%w: cyclePeriod", ErrParamMissing)
	}
	if p.DecayPeriod <= 0 {
		return fmt.Errorf("%w: decayPeriod", ErrParamMissing)
	}
	if len(p.Funds) == 0 {
		return fmt.Errorf("%w: funds", ErrParamMissing)
	}
	for _, name := range p.FundNames() {
		if p.Funds[name].Account == "" {
			return fmt.Errorf("%w: funds.%s.account", ErrParamMissing, name)
		}
	}
	if !p.DecayFactor.IsPositive() || p.DecayFactor.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf(
			"%w: decayFactor %s not in (0, 1]",
			ErrParamInvalid,
			p.DecayFactor,
		)
	}
	if err := checkRange("repMultiplier", p.RepMultiplierMin, p.RepMultiplierMax); err != nil {
		return err
	}
	if err := checkRange("flagMultiplier", p.FlagMultiplierMin, p.FlagMultiplierMax); err != nil {
		return err
	}
	if p.RefRewardMax > 0 && !p.RefRewardDecay.IsPositive() {
		return fmt.Errorf("%w: refRewardDecay", ErrParamMissing)
	}
	if p.RefRewardMin > p.RefRewardMax {
		return fmt.Errorf("%w: refRewardMin above refRewardMax", ErrParamInvalid)
	}
	if p.ResidentRankMin > p.CitizenRankMin || p.CitizenRankMin > 100 {
		return fmt.Errorf(
			"%w: rank thresholds %d/%d",
			ErrParamInvalid,
			p.ResidentRankMin,
			p.CitizenRankMin,
		)
	}
	if p.FlagVouchPenaltyPct > 100 || p.StakePct > 100 {
		return fmt.Errorf("%w: percentage above 100", ErrParamInvalid)
	}
	if p.QuorumMin > p.QuorumMax || p.QuorumMax > 100 {
		return fmt.Errorf(
			"%w: quorum bounds %d/%d",
			ErrParamInvalid,
			p.QuorumMin,
			p.QuorumMax,
		)
	}
	return nil
}

func checkRange(key string, lo, hi decimal.Decimal) error {
	if !lo.IsPositive() {
		return fmt.Errorf("%w: %sMin", ErrParamMissing, key)
	}
	if hi.LessThan(lo) {
		return fmt.Errorf("%w: %sMax below %sMin", ErrParamInvalid, key, key)
	}
	return nil
}

// Word splitting used by envconfig for split_words fields
var (
	envWordRegexp    = regexp.MustCompile("([^A-Z]+|[A-Z]+[^A-Z]+|[A-Z]+)")
	envAcronymRegexp = regexp.MustCompile("([A-Z]+)([A-Z][^A-Z]+)")
)

// paramEnvName returns the environment variable a governance field is read
// from
func paramEnvName(field string) string {
	var words []string
	for _, word := range envWordRegexp.FindAllString(field, -1) {
		if m := envAcronymRegexp.FindStringSubmatch(word); len(m) == 3 {
			words = append(words, m[1], m[2])
			continue
		}
		words = append(words, word)
	}
	return "GROVE_GOVERNANCE_" + strings.ToUpper(strings.Join(words, "_"))
}

// checkParamKeys names the first governance parameter that is set neither in
// the config file nor in the environment
func checkParamKeys(fileKeys map[string]yaml.Node) error {
	t := reflect.TypeFor[Params]()
	for i := range t.NumField() {
		field := t.Field(i)
		key, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if _, ok := fileKeys[key]; ok {
			continue
		}
		if field.Tag.Get("ignored") != "true" {
			if _, ok := os.LookupEnv(paramEnvName(field.Name)); ok {
				continue
			}
		}
		return fmt.Errorf("%w: %s", ErrParamMissing, key)
	}
	return nil
}
