package agent

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ledger "solarshare/internal/ledger/domain"
)

// ParticipantConfig binds one community member to its meter.
type ParticipantConfig struct {
	Identity string `yaml:"identity"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
	MeterID  string `yaml:"meter_id"`
}

// FleetConfig configures the full set of agents for one community.
type FleetConfig struct {
	PeriodSeconds int                 `yaml:"period_seconds"`
	RetrySeconds  int                 `yaml:"retry_seconds"`
	MeterAddr     string              `yaml:"meter_addr"`
	Participants  []ParticipantConfig `yaml:"participants"`
}

// Period returns the reporting period as a duration.
func (c FleetConfig) Period() time.Duration {
	return time.Duration(c.PeriodSeconds) * time.Second
}

// Retry returns the retry interval as a duration.
func (c FleetConfig) Retry() time.Duration {
	return time.Duration(c.RetrySeconds) * time.Second
}

// LoadFleetConfig reads and validates a fleet config file.
func LoadFleetConfig(path string) (FleetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FleetConfig{}, err
	}
	var cfg FleetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FleetConfig{}, err
	}
	if cfg.RetrySeconds <= 0 {
		cfg.RetrySeconds = 5
	}
	if err := cfg.Validate(); err != nil {
		return FleetConfig{}, err
	}
	return cfg, nil
}

// Validate checks the invariants main relies on: one producer, registered
// first, unique identities and meter ids.
func (c FleetConfig) Validate() error {
	if c.PeriodSeconds <= 0 {
		return errors.New("agent: period_seconds must be positive")
	}
	if c.MeterAddr == "" {
		return errors.New("agent: meter_addr required")
	}
	if len(c.Participants) < 2 {
		return errors.New("agent: at least one producer and one consumer required")
	}

	identities := make(map[string]bool, len(c.Participants))
	meters := make(map[string]bool, len(c.Participants))
	producers := 0
	for i, p := range c.Participants {
		if p.Identity == "" {
			return fmt.Errorf("agent: participant %d has empty identity", i)
		}
		if p.MeterID == "" {
			return fmt.Errorf("agent: participant %s has empty meter_id", p.Identity)
		}
		role, ok := ledger.NormalizeRole(p.Role)
		if !ok {
			return fmt.Errorf("agent: participant %s has invalid role %q", p.Identity, p.Role)
		}
		if identities[p.Identity] {
			return fmt.Errorf("agent: duplicate identity %s", p.Identity)
		}
		if meters[p.MeterID] {
			return fmt.Errorf("agent: duplicate meter_id %s", p.MeterID)
		}
		identities[p.Identity] = true
		meters[p.MeterID] = true
		if role == ledger.RoleProducer {
			producers++
			if i != 0 {
				return errors.New("agent: the producer must be listed first")
			}
		}
	}
	if producers != 1 {
		return fmt.Errorf("agent: exactly one producer required, got %d", producers)
	}
	return nil
}
