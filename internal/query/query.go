package query

import (
	"strings"

	"github.com/FranksOps/jobdigest/internal/profile"
)

// Query is one search to run: the role and location it was derived from and
// the final query string sent to the search provider.
type Query struct {
	Role     string `json:"role"`
	Location string `json:"location"`
	Text     string `json:"text"`
}

// Build expands every (role, location) pair through each template. Order is
// role-major, then location, then template, so the output is deterministic and
// has len(roles)*len(locations)*len(templates) entries.
func Build(roles, locations, templates []string) []Query {
	out := make([]Query, 0, len(roles)*len(locations)*len(templates))
	for _, role := range roles {
		for _, loc := range locations {
			r := strings.NewReplacer(profile.RolePlaceholder, role, profile.LocationPlaceholder, loc)
			for _, tmpl := range templates {
				out = append(out, Query{
					Role:     role,
					Location: loc,
					Text:     r.Replace(tmpl),
				})
			}
		}
	}
	return out
}

// FromProfile builds the query plan for a profile.
func FromProfile(p profile.Profile) []Query {
	return Build(p.Roles, p.Locations, p.Templates)
}
