// Package serp talks to the search API and turns its JSON payloads into
// flat RawResult values.
package serp

import "context"

// RawResult is one search hit before classification. Missing fields are "".
// Link is the identity used for deduplication downstream.
type RawResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Request is a single search invocation.
type Request struct {
	Query    string
	Location string
	// Limit caps the results taken from each result section. Zero means no cap.
	Limit int
}

// Searcher abstracts a search provider. Implementations return an error for
// transport, HTTP and payload failures and an empty slice when the provider
// simply found nothing.
type Searcher interface {
	Search(ctx context.Context, req Request) ([]RawResult, error)
}
