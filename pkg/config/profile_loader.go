package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RetentionProfile is a jurisdiction-specific overlay controlling how long
// entries stay exportable and which classifications may leave the region.
// Entries themselves are never deleted; retention governs export behavior.
type RetentionProfile struct {
	Name          string   `yaml:"name" json:"name"`
	Code          string   `yaml:"code" json:"code"`
	DataResidency string   `yaml:"data_residency" json:"data_residency"`
	Compliance    []string `yaml:"compliance" json:"compliance"`

	// AuditLogDays is how long entries remain in the exportable window.
	AuditLogDays int `yaml:"audit_log_days" json:"audit_log_days"`

	// ExportableClassifications lists the data classifications that may be
	// included in evidence packs for this jurisdiction.
	ExportableClassifications []string `yaml:"exportable_classifications" json:"exportable_classifications"`
}

// LoadProfile loads a retention profile YAML by jurisdiction code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*RetentionProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile RetentionProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*RetentionProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*RetentionProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile RetentionProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_us.yaml -> us
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// MayExport reports whether entries with the classification may be included
// in evidence packs for this jurisdiction. An empty list allows everything.
func (p *RetentionProfile) MayExport(classification string) bool {
	if len(p.ExportableClassifications) == 0 {
		return true
	}
	for _, c := range p.ExportableClassifications {
		if c == classification {
			return true
		}
	}
	return false
}
