package serp

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// noResultsMarker is how SerpApi reports an empty result page in its error field.
const noResultsMarker = "hasn't returned any results"

var strict = bluemonday.StrictPolicy()

type payload struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
	JobsResults    []jobResult     `json:"jobs_results"`
}

type organicResult struct {
	Title         string `json:"title"`
	Link          string `json:"link"`
	Snippet       string `json:"snippet"`
	DisplayedLink string `json:"displayed_link"`
	Source        string `json:"source"`
}

type jobResult struct {
	Title       string `json:"title"`
	ShareLink   string `json:"share_link"`
	Link        string `json:"link"`
	Description string `json:"description"`
	CompanyName string `json:"company_name"`
}

// APIError is a failure reported inside an otherwise successful payload.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "serp: api error: " + e.Message
}

// Normalize decodes a SerpApi payload into RawResults. Up to limit organic
// results are taken; when includeJobs is set, up to limit entries of the jobs
// section come first. Titles, snippets and sources are stripped of markup,
// unescaped and whitespace-collapsed. A limit <= 0 means no cap.
func Normalize(data []byte, limit int, includeJobs bool) ([]RawResult, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("serp: decode payload: %w", err)
	}

	if p.Error != "" {
		if strings.Contains(p.Error, noResultsMarker) {
			return []RawResult{}, nil
		}
		return nil, &APIError{Message: p.Error}
	}

	out := make([]RawResult, 0, capped(len(p.OrganicResults), limit)+capped(len(p.JobsResults), limit))

	if includeJobs {
		for _, j := range p.JobsResults[:capped(len(p.JobsResults), limit)] {
			out = append(out, RawResult{
				Title:   cleanText(j.Title),
				Link:    strings.TrimSpace(firstNonEmpty(j.ShareLink, j.Link)),
				Snippet: cleanText(j.Description),
				Source:  cleanText(j.CompanyName),
			})
		}
	}

	for _, o := range p.OrganicResults[:capped(len(p.OrganicResults), limit)] {
		out = append(out, RawResult{
			Title:   cleanText(o.Title),
			Link:    strings.TrimSpace(o.Link),
			Snippet: cleanText(o.Snippet),
			Source:  cleanText(firstNonEmpty(o.DisplayedLink, o.Source)),
		})
	}

	return out, nil
}

func capped(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// cleanText drops any markup, decodes entities and collapses runs of whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
