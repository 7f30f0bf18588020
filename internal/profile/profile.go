package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

const (
	RolePlaceholder     = "{role}"
	LocationPlaceholder = "{location}"
)

// Profile holds the static search configuration for a run: which roles and
// locations to query, how query strings are built, and the keyword lists the
// classifier matches against.
type Profile struct {
	Roles                []string `yaml:"roles"`
	Locations            []string `yaml:"locations"`
	Templates            []string `yaml:"templates"`
	ExperienceKeywords   []string `yaml:"experience_keywords"`
	OfficialSitePatterns []string `yaml:"official_site_patterns"`
}

// Default returns the embedded default profile.
func Default() Profile {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("profile: embedded default is invalid: %v", err))
	}
	return p
}

// Parse decodes a YAML profile. It does not apply defaults.
func Parse(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: parse: %w", err)
	}
	return p.normalize(), nil
}

// Load reads a YAML profile from path. Lists missing from the file are taken
// from the default profile. An empty path returns the default profile.
func Load(path string) (Profile, error) {
	def := Default()
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Profile{}, err
	}

	if len(p.Roles) == 0 {
		p.Roles = def.Roles
	}
	if len(p.Locations) == 0 {
		p.Locations = def.Locations
	}
	if len(p.Templates) == 0 {
		p.Templates = def.Templates
	}
	if len(p.ExperienceKeywords) == 0 {
		p.ExperienceKeywords = def.ExperienceKeywords
	}
	if len(p.OfficialSitePatterns) == 0 {
		p.OfficialSitePatterns = def.OfficialSitePatterns
	}

	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile: %s: %w", path, err)
	}
	return p, nil
}

// Validate reports every structural problem with the profile at once.
func (p Profile) Validate() error {
	var errs []error
	if len(p.Roles) == 0 {
		errs = append(errs, errors.New("roles must not be empty"))
	}
	if len(p.Locations) == 0 {
		errs = append(errs, errors.New("locations must not be empty"))
	}
	if len(p.Templates) == 0 {
		errs = append(errs, errors.New("templates must not be empty"))
	}
	for _, t := range p.Templates {
		if !strings.Contains(t, RolePlaceholder) || !strings.Contains(t, LocationPlaceholder) {
			errs = append(errs, fmt.Errorf("template %q must contain %s and %s", t, RolePlaceholder, LocationPlaceholder))
		}
	}
	return errors.Join(errs...)
}

func (p Profile) normalize() Profile {
	p.Roles = trimList(p.Roles)
	p.Locations = trimList(p.Locations)
	p.Templates = trimList(p.Templates)
	p.ExperienceKeywords = trimList(p.ExperienceKeywords)
	p.OfficialSitePatterns = trimList(p.OfficialSitePatterns)
	return p
}

// trimList drops blank entries and case-insensitive duplicates, keeping the
// first spelling and the original order.
func trimList(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		key := strings.ToLower(x)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, x)
	}
	return out
}
