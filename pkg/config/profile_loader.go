package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JurisdictionProfile carries per-jurisdiction evidence policy: which tiers
// a deployment accepts, retention spans, and intake throttling.
type JurisdictionProfile struct {
	Name          string          `yaml:"name" json:"name"`
	Code          string          `yaml:"code" json:"code"`
	AcceptedTiers []string        `yaml:"accepted_tiers" json:"accepted_tiers"`
	Intake        IntakeConfig    `yaml:"intake" json:"intake"`
	Retention     RetentionConfig `yaml:"retention" json:"retention"`
	// AdmissionRules are CEL expressions evaluated against every submission.
	AdmissionRules []string `yaml:"admission_rules,omitempty" json:"admission_rules,omitempty"`
}

// IntakeConfig throttles submissions per submitter.
type IntakeConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
	Burst         int     `yaml:"burst" json:"burst"`
}

// RetentionConfig defines how long records are kept. Evidence itself is
// never deleted; retention governs audit exports and blob archival.
type RetentionConfig struct {
	AuditLogDays int `yaml:"audit_log_days" json:"audit_log_days"`
	BlobArchival int `yaml:"blob_archival_days,omitempty" json:"blob_archival_days,omitempty"`
}

// AcceptsTier reports whether the jurisdiction admits the given tier. An
// empty list accepts everything.
func (p *JurisdictionProfile) AcceptsTier(tier string) bool {
	if len(p.AcceptedTiers) == 0 {
		return true
	}
	for _, t := range p.AcceptedTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// LoadProfile loads profile_<code>.yaml from the profiles directory.
func LoadProfile(profilesDir, code string) (*JurisdictionProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile JurisdictionProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the directory, keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*JurisdictionProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*JurisdictionProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var profile JurisdictionProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Code] = &profile
	}
	return profiles, nil
}
