package model

import (
	"strings"
	"testing"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/extractor"
	"github.com/mapcraft/leaflet-retrofit/internal/resolver"
)

func fixtureFacts() extractor.DocFacts {
	return extractor.DocFacts{
		Path:  "folium_map.html",
		MapID: "map_d2a376f3",
		TileLayers: []extractor.Declaration{
			{Identifier: "osm", Role: extractor.RoleBase, Span: extractor.Span{Start: 100, End: 200}, OptionsInsert: 150, Line: 10},
			{Identifier: "topo", Role: extractor.RoleBase, Span: extractor.Span{Start: 210, End: 300}, OptionsInsert: 260, Line: 14},
			{Identifier: "light", Role: extractor.RoleBase, Span: extractor.Span{Start: 310, End: 400}, OptionsInsert: 360, Line: 18},
			{Identifier: "sat", Role: extractor.RoleBase, Span: extractor.Span{Start: 410, End: 500}, OptionsInsert: 460, Line: 22},
		},
		GeoJSONLayers: []extractor.Declaration{
			{Identifier: "alunite_hi", Role: extractor.RoleOverlay, Span: extractor.Span{Start: 510, End: 600}, OptionsInsert: 560, Line: 26},
			{Identifier: "quartz_hi", Role: extractor.RoleOverlay, Span: extractor.Span{Start: 610, End: 700}, OptionsInsert: 660, Line: 30},
		},
		LayerNames: map[string]string{
			"osm":        "OpenStreetMap",
			"alunite_hi": "Alunite >0.5",
		},
	}
}

func TestBuildOrderAndTotality(t *testing.T) {
	facts := fixtureFacts()
	resolutions := map[string]resolver.Resolution{
		"alunite_hi": {Identifier: "alunite_hi", FillColor: "#FF00FF", ColorResolved: true, FillOpacity: 0.6, OpacityResolved: true},
	}
	gaps := []resolver.Gap{{Identifier: "quartz_hi", Reason: "no styler function found; using defaults"}}

	m, err := Build(facts, resolutions, gaps, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{"osm", "topo", "light", "sat", "alunite_hi", "quartz_hi"}
	if len(m.Layers) != len(want) {
		t.Fatalf("got %d records, want %d", len(m.Layers), len(want))
	}
	for i, id := range want {
		if m.Layers[i].Identifier != id {
			t.Errorf("layers[%d] = %q, want %q", i, m.Layers[i].Identifier, id)
		}
	}
	if m.MapID != "map_d2a376f3" {
		t.Errorf("map id = %q", m.MapID)
	}
	if len(m.Gaps) != 1 {
		t.Errorf("got %d gaps, want 1", len(m.Gaps))
	}
}

func TestBuildResolvedOverlay(t *testing.T) {
	facts := fixtureFacts()
	resolutions := map[string]resolver.Resolution{
		"alunite_hi": {Identifier: "alunite_hi", FillColor: "#FF00FF", ColorResolved: true, FillOpacity: 0.6, OpacityResolved: true},
	}

	m, err := Build(facts, resolutions, nil, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	overlays := m.Overlays()
	if len(overlays) != 2 {
		t.Fatalf("got %d overlays, want 2", len(overlays))
	}

	alunite := overlays[0]
	if alunite.Color != "#FF00FF" || !alunite.ColorResolved {
		t.Errorf("alunite color = %q (resolved=%v)", alunite.Color, alunite.ColorResolved)
	}
	if alunite.Opacity != 0.6 || !alunite.OpacityResolved {
		t.Errorf("alunite opacity = %v (resolved=%v)", alunite.Opacity, alunite.OpacityResolved)
	}
	if alunite.DisplayName != "Alunite >0.5" {
		t.Errorf("alunite display name = %q", alunite.DisplayName)
	}
}

func TestBuildDefaultedOverlay(t *testing.T) {
	m, err := Build(fixtureFacts(), nil, nil, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	quartz := m.Overlays()[1]
	if quartz.Color != "#000000" || quartz.ColorResolved {
		t.Errorf("quartz color = %q (resolved=%v), want defaulted #000000", quartz.Color, quartz.ColorResolved)
	}
	if quartz.Opacity != 1.0 || quartz.OpacityResolved {
		t.Errorf("quartz opacity = %v (resolved=%v), want defaulted 1.0", quartz.Opacity, quartz.OpacityResolved)
	}
	// No old-control name for quartz_hi: derived from the identifier
	if quartz.DisplayName != "Quartz Hi" {
		t.Errorf("quartz display name = %q, want Quartz Hi", quartz.DisplayName)
	}
}

func TestBuildUneditableOverlay(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UneditableOverlays = []string{"quartz_hi"}

	m, err := Build(fixtureFacts(), nil, nil, cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := m.UneditableOverlays(); len(got) != 1 || got[0].Identifier != "quartz_hi" {
		t.Errorf("uneditable overlays = %v", got)
	}
	if got := m.Overlays(); len(got) != 1 || got[0].Identifier != "alunite_hi" {
		t.Errorf("editable overlays = %v", got)
	}
}

func TestBuildDuplicateIdentifierFatal(t *testing.T) {
	facts := fixtureFacts()
	facts.TileLayers = append(facts.TileLayers, extractor.Declaration{
		Identifier: "osm", Role: extractor.RoleBase,
		Span: extractor.Span{Start: 900, End: 950}, OptionsInsert: 920, Line: 40,
	})

	_, err := Build(facts, nil, nil, config.DefaultConfig())
	if err == nil {
		t.Fatal("duplicate base identifier accepted")
	}
	if !strings.Contains(err.Error(), "duplicate") || !strings.Contains(err.Error(), "osm") {
		t.Errorf("error = %v", err)
	}
}

func TestBuildSameIdentifierAcrossRoles(t *testing.T) {
	facts := fixtureFacts()
	facts.GeoJSONLayers = append(facts.GeoJSONLayers, extractor.Declaration{
		Identifier: "osm", Role: extractor.RoleOverlay,
		Span: extractor.Span{Start: 900, End: 950}, OptionsInsert: 920, Line: 40,
	})

	// Uniqueness is per role; the same name in another role is allowed
	if _, err := Build(facts, nil, nil, config.DefaultConfig()); err != nil {
		t.Fatalf("Build rejected cross-role reuse: %v", err)
	}
}

func TestBuildEmptyDocument(t *testing.T) {
	m, err := Build(extractor.DocFacts{LayerNames: map[string]string{}}, nil, nil, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Layers == nil {
		t.Error("Layers is nil, want an empty slice for stable serialization")
	}
	if len(m.Layers) != 0 {
		t.Errorf("got %d layers, want 0", len(m.Layers))
	}
}
