package record

import "sort"

// JobRecord is one retained listing. It is created once per distinct Link in
// a run and never modified afterwards.
type JobRecord struct {
	Role            string `json:"role"`
	Location        string `json:"location"`
	Title           string `json:"title"`
	Link            string `json:"link"`
	Source          string `json:"source"`
	OfficialSite    bool   `json:"official_site"`
	ExperienceMatch bool   `json:"experience_match"`
	Snippet         string `json:"snippet"`
}

// SortOfficialFirst returns a copy of records with official-site records
// ahead of the rest. The sort is stable, so discovery order is kept within
// each group.
func SortOfficialFirst(records []JobRecord) []JobRecord {
	out := make([]JobRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OfficialSite && !out[j].OfficialSite
	})
	return out
}

// Counts tallies the flag totals of a record set.
func Counts(records []JobRecord) (official, experience int) {
	for _, r := range records {
		if r.OfficialSite {
			official++
		}
		if r.ExperienceMatch {
			experience++
		}
	}
	return official, experience
}
