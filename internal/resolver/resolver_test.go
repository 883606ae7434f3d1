package resolver

import (
	"strings"
	"testing"
)

func TestResolveLiterals(t *testing.T) {
	content := []byte(`
    function alunite_hi_styler(feature) {
        return {"color": "#FF00FF", "fillColor": "#FF00FF", "fillOpacity": 0.6, "weight": 1};
    }
`)

	resolutions, gaps := Resolve(content, []string{"alunite_hi"})
	if len(gaps) != 0 {
		t.Fatalf("unexpected gaps: %v", gaps)
	}

	res, ok := resolutions["alunite_hi"]
	if !ok {
		t.Fatal("no resolution for alunite_hi")
	}
	if !res.ColorResolved || res.FillColor != "#FF00FF" {
		t.Errorf("fillColor = %q (resolved=%v), want #FF00FF", res.FillColor, res.ColorResolved)
	}
	if !res.OpacityResolved || res.FillOpacity != 0.6 {
		t.Errorf("fillOpacity = %v (resolved=%v), want 0.6", res.FillOpacity, res.OpacityResolved)
	}
}

func TestResolveMissingStyler(t *testing.T) {
	content := []byte(`var quartz_hi = L.geoJson(null, {});`)

	resolutions, gaps := Resolve(content, []string{"quartz_hi"})
	if _, ok := resolutions["quartz_hi"]; ok {
		t.Error("resolution returned for an identifier with no styler")
	}
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1", len(gaps))
	}
	if gaps[0].Identifier != "quartz_hi" || !strings.Contains(gaps[0].Reason, "no styler") {
		t.Errorf("gap = %+v", gaps[0])
	}
}

func TestResolveComputedExpressions(t *testing.T) {
	content := []byte(`
    function quartz_hi_styler(feature) {
        return {"fillColor": feature.properties.fill, "fillOpacity": feature.properties.alpha};
    }
`)

	resolutions, gaps := Resolve(content, []string{"quartz_hi"})
	res, ok := resolutions["quartz_hi"]
	if !ok {
		t.Fatal("styler found but no resolution entry returned")
	}
	if res.ColorResolved || res.OpacityResolved {
		t.Errorf("computed expressions resolved: %+v", res)
	}
	if len(gaps) != 2 {
		t.Fatalf("got %d gaps, want 2 (color and opacity): %v", len(gaps), gaps)
	}
}

func TestResolveAmbiguousStylers(t *testing.T) {
	content := []byte(`
    function alunite_hi_styler(feature) {
        return {"fillColor": "#111111", "fillOpacity": 0.1};
    }
    function alunite_hi_styler(feature) {
        return {"fillColor": "#222222", "fillOpacity": 0.2};
    }
`)

	resolutions, gaps := Resolve(content, []string{"alunite_hi"})
	res := resolutions["alunite_hi"]
	if res.FillColor != "#111111" {
		t.Errorf("fillColor = %q, want the first occurrence #111111", res.FillColor)
	}
	found := false
	for _, g := range gaps {
		if strings.Contains(g.Reason, "multiple styler") {
			found = true
		}
	}
	if !found {
		t.Errorf("ambiguity not surfaced in gaps: %v", gaps)
	}
}

func TestResolveOpacityOutOfRange(t *testing.T) {
	content := []byte(`
    function layer_styler(feature) {
        return {"fillColor": "#333333", "fillOpacity": 1.5};
    }
`)

	resolutions, gaps := Resolve(content, []string{"layer"})
	res := resolutions["layer"]
	if res.OpacityResolved {
		t.Error("out-of-range opacity resolved")
	}
	if !res.ColorResolved {
		t.Error("color should still resolve when opacity is out of range")
	}
	found := false
	for _, g := range gaps {
		if strings.Contains(g.Reason, "out of range") {
			found = true
		}
	}
	if !found {
		t.Errorf("out-of-range opacity not surfaced in gaps: %v", gaps)
	}
}

func TestResolveGapOrder(t *testing.T) {
	content := []byte(`
    function b_styler(f) { return {"fillColor": "#000001", "fillOpacity": 0.5}; }
`)

	_, gaps := Resolve(content, []string{"a", "b", "c"})
	if len(gaps) != 2 {
		t.Fatalf("got %d gaps, want 2: %v", len(gaps), gaps)
	}
	if gaps[0].Identifier != "a" || gaps[1].Identifier != "c" {
		t.Errorf("gaps out of input order: %v", gaps)
	}
}
