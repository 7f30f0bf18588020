package query

import (
	"testing"

	"github.com/FranksOps/jobdigest/internal/profile"
)

func TestBuild_ThreePerPair(t *testing.T) {
	p := profile.Default()
	qs := Build(p.Roles, p.Locations, p.Templates)

	want := 3 * len(p.Roles) * len(p.Locations)
	if len(qs) != want {
		t.Fatalf("expected %d queries, got %d", want, len(qs))
	}

	perPair := map[[2]string]int{}
	for _, q := range qs {
		perPair[[2]string{q.Role, q.Location}]++
	}
	for pair, n := range perPair {
		if n != 3 {
			t.Errorf("pair %v: expected 3 queries, got %d", pair, n)
		}
	}
}

func TestBuild_Order(t *testing.T) {
	qs := Build(
		[]string{"go developer", "qa engineer"},
		[]string{"Chennai", "India"},
		[]string{"{role} {location} fresher", "{role} {location} junior", "{role} {location} 0-3 years"},
	)

	want := []string{
		"go developer Chennai fresher",
		"go developer Chennai junior",
		"go developer Chennai 0-3 years",
		"go developer India fresher",
		"go developer India junior",
		"go developer India 0-3 years",
		"qa engineer Chennai fresher",
		"qa engineer Chennai junior",
		"qa engineer Chennai 0-3 years",
		"qa engineer India fresher",
		"qa engineer India junior",
		"qa engineer India 0-3 years",
	}
	if len(qs) != len(want) {
		t.Fatalf("expected %d queries, got %d", len(want), len(qs))
	}
	for i, q := range qs {
		if q.Text != want[i] {
			t.Errorf("query %d: expected %q, got %q", i, want[i], q.Text)
		}
	}
	if qs[3].Role != "go developer" || qs[3].Location != "India" {
		t.Errorf("unexpected role/location on query 3: %+v", qs[3])
	}
}

func TestBuild_Empty(t *testing.T) {
	if qs := Build(nil, []string{"India"}, []string{"{role} {location}"}); len(qs) != 0 {
		t.Errorf("expected no queries without roles, got %d", len(qs))
	}
}

func TestFromProfile(t *testing.T) {
	p := profile.Default()
	if got := FromProfile(p); len(got) != 24 {
		t.Errorf("expected 24 queries for the default profile, got %d", len(got))
	}
}
