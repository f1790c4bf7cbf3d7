package infra

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"vidgen/internal/domain"
)

// Policy holds the commercial knobs read at submission time.
type Policy struct {
	GenerationCost int64         `yaml:"generation_cost"`
	Window         time.Duration `yaml:"window"`
	Limits         TierLimits    `yaml:"limits"`
}

// TierLimits is the number of submissions admitted per window for each tier.
type TierLimits struct {
	Free     int `yaml:"free"`
	Elevated int `yaml:"elevated"`
}

// LimitFor returns the per-window admission limit for tier.
func (p Policy) LimitFor(tier domain.Tier) int {
	if tier == domain.TierElevated {
		return p.Limits.Elevated
	}
	return p.Limits.Free
}

// Validate rejects policies that would admit nothing or charge nothing.
func (p Policy) Validate() error {
	if p.GenerationCost <= 0 {
		return fmt.Errorf("generation_cost must be positive")
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if p.Limits.Free <= 0 || p.Limits.Elevated <= 0 {
		return fmt.Errorf("tier limits must be positive")
	}
	return nil
}

// PolicyFromConfig builds the policy implied by environment configuration.
func PolicyFromConfig(cfg *Config) Policy {
	return Policy{
		GenerationCost: cfg.GenerationCost,
		Window:         cfg.RateLimitWindow,
		Limits: TierLimits{
			Free:     cfg.RateLimitFreePerMin,
			Elevated: cfg.RateLimitElevatedPerMin,
		},
	}
}

// ParsePolicy overlays the YAML document on base. Fields absent from the
// document keep their base values.
func ParsePolicy(raw []byte, base Policy) (Policy, error) {
	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return out, nil
}

// PolicySource serves the current policy. When backed by a file, the file is
// re-read whenever its modification time changes so cost edits apply to the
// next submission without a restart.
type PolicySource struct {
	path   string
	base   Policy
	logger zerolog.Logger

	mu      sync.Mutex
	current Policy
	modTime time.Time
}

// NewPolicySource loads the policy file at path, if any, over base.
func NewPolicySource(path string, base Policy, logger zerolog.Logger) (*PolicySource, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	s := &PolicySource{path: path, base: base, logger: logger, current: base}
	if path == "" {
		return s, nil
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// StaticPolicy returns a source that always serves p.
func StaticPolicy(p Policy) *PolicySource {
	return &PolicySource{base: p, current: p, logger: zerolog.Nop()}
}

// Current returns the policy in force now.
func (s *PolicySource) Current() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return s.current
	}
	info, err := os.Stat(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("policy file unavailable, keeping last policy")
		return s.current
	}
	if info.ModTime().Equal(s.modTime) {
		return s.current
	}
	if err := s.reloadLocked(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("policy reload failed, keeping last policy")
	}
	return s.current
}

func (s *PolicySource) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}

func (s *PolicySource) reloadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat policy: %w", err)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	p, err := ParsePolicy(raw, s.base)
	if err != nil {
		return err
	}
	s.current = p
	s.modTime = info.ModTime()
	s.logger.Info().
		Int64("generation_cost", p.GenerationCost).
		Int("limit_free", p.Limits.Free).
		Int("limit_elevated", p.Limits.Elevated).
		Msg("policy loaded")
	return nil
}
