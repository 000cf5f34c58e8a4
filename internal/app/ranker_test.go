package app

import (
	"reflect"
	"testing"

	"missionchat/internal/model"
)

func TestRankSourcesDedupesByMissionID(t *testing.T) {
	sources := []model.SourceCitation{
		{Title: "ERS-1", MissionID: "ers-1", Score: 0.4},
		{Title: "Sentinel-2", MissionID: "sentinel-2", Score: 0.6},
		{Title: "ERS-1 (duplicate)", MissionID: "ers-1", Score: 0.9},
	}

	ranked := RankSources(sources, 20)
	if len(ranked) != 2 {
		t.Fatalf("len = %d, want 2", len(ranked))
	}
	if ranked[0].MissionID != "ers-1" || ranked[0].Score != 0.9 {
		t.Fatalf("top source = %+v, want ers-1 with score 0.9", ranked[0])
	}
	if ranked[1].MissionID != "sentinel-2" {
		t.Fatalf("second source = %+v, want sentinel-2", ranked[1])
	}
}

func TestRankSourcesKeepsSourcesWithoutMissionID(t *testing.T) {
	sources := []model.SourceCitation{
		{Title: "Overview", Score: 0.5},
		{Title: "Overview", Score: 0.5},
	}

	ranked := RankSources(sources, 20)
	if len(ranked) != 2 {
		t.Fatalf("len = %d, want 2 (no merging without mission id)", len(ranked))
	}
}

func TestRankSourcesStableOnTies(t *testing.T) {
	sources := []model.SourceCitation{
		{Title: "A", MissionID: "a", Score: 0.5},
		{Title: "B", MissionID: "b", Score: 0.5},
		{Title: "C", MissionID: "c", Score: 0.5},
	}

	ranked := RankSources(sources, 20)
	got := []string{ranked[0].MissionID, ranked[1].MissionID, ranked[2].MissionID}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tie order = %v, want %v", got, want)
	}
}

func TestRankSourcesTruncates(t *testing.T) {
	sources := []model.SourceCitation{
		{Title: "A", MissionID: "a", Score: 0.9},
		{Title: "B", MissionID: "b", Score: 0.8},
		{Title: "C", MissionID: "c", Score: 0.7},
		{Title: "D", MissionID: "d", Score: 0.6},
	}

	ranked := RankSources(sources, 3)
	if len(ranked) != 3 {
		t.Fatalf("len = %d, want 3", len(ranked))
	}
	if ranked[2].MissionID != "c" {
		t.Fatalf("last kept source = %s, want c", ranked[2].MissionID)
	}
}

func TestRankSourcesIdempotent(t *testing.T) {
	sources := []model.SourceCitation{
		{Title: "ERS-1 - eoPortal", URL: "www.eoportal.org/satellite-missions/ers-1", MissionID: "ers-1", Score: 0.4},
		{Title: "ERS-1", URL: "https://www.eoportal.org/satellite-missions/ers-1", MissionID: "ers-1", Score: 0.9},
		{Title: "Landsat - eoPortal - eoPortal", MissionID: "landsat", Score: 0.9},
		{Title: "Unscored", Score: 0.1},
	}

	once := RankSources(sources, 20)
	twice := RankSources(once, 20)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("ranking is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestFormatSourceTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ERS-1 - eoPortal", "ERS-1"},
		{"  Sentinel-2 - eoPortal  ", "Sentinel-2"},
		{"ERS-1 - eoPortal - eoPortal", "ERS-1"},
		{"TerraSAR-X", "TerraSAR-X"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FormatSourceTitle(tc.in); got != tc.want {
			t.Errorf("FormatSourceTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeSourceURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"www.eoportal.org/ers-1", "https://www.eoportal.org/ers-1"},
		{"https://www.eoportal.org/ers-1", "https://www.eoportal.org/ers-1"},
		{"http://example.com", "http://example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeSourceURL(tc.in); got != tc.want {
			t.Errorf("NormalizeSourceURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
