// Package model merges extraction and style resolution into the normalized,
// ordered layer sequence the synthesizer consumes.
//
// The builder should NOT work around extraction gaps: a missing display name
// or style literal gets a documented default, but a document whose shape
// violates the invariants (duplicate identifiers within a role) is rejected
// outright. Silent continuation there risks corrupting the rewrite.
package model

import (
	"fmt"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/extractor"
	"github.com/mapcraft/leaflet-retrofit/internal/resolver"
)

// LayerRecord is the unit of work: one declared layer with the metadata the
// appearance control requires
type LayerRecord struct {
	// Identifier is the source variable; unique within its role
	Identifier string `json:"identifier"`

	Role extractor.Role `json:"role"`

	// DisplayName is never empty: the old control's name for the layer, or a
	// title-cased derivation of the identifier
	DisplayName string `json:"display_name"`

	// Color is a color string in the exact form it was extracted, or the
	// configured default when ColorResolved is false
	Color         string `json:"color"`
	ColorResolved bool   `json:"color_resolved"`

	// Opacity is in [0,1]; the configured default when OpacityResolved is false
	Opacity         float64 `json:"opacity"`
	OpacityResolved bool    `json:"opacity_resolved"`

	// Span covers the layer's declaration statement in the original document
	Span extractor.Span `json:"span"`

	// OptionsInsert is where metadata entries are injected; -1 when the
	// declaration has no options object
	OptionsInsert int `json:"options_insert"`

	Line int `json:"line"`
}

// Model is the normalized view of one document's layers
type Model struct {
	// Layers holds base layers first, then overlays, each group in source
	// declaration order
	Layers []LayerRecord `json:"layers"`

	// MapID is the map variable the new control attaches to
	MapID string `json:"map_id"`

	// Gaps are the non-fatal resolution warnings accumulated on the way here
	Gaps []resolver.Gap `json:"gaps,omitempty"`
}

// Base returns the base-layer records in declaration order
func (m *Model) Base() []LayerRecord {
	return m.byRole(extractor.RoleBase)
}

// Overlays returns the editable overlay records in declaration order
func (m *Model) Overlays() []LayerRecord {
	return m.byRole(extractor.RoleOverlay)
}

// UneditableOverlays returns the uneditable overlay records in declaration order
func (m *Model) UneditableOverlays() []LayerRecord {
	return m.byRole(extractor.RoleUneditableOverlay)
}

func (m *Model) byRole(role extractor.Role) []LayerRecord {
	var records []LayerRecord
	for _, r := range m.Layers {
		if r.Role == role {
			records = append(records, r)
		}
	}
	return records
}

// Build merges extractor and resolver output into the final record sequence.
// Deterministic: identical input text yields byte-for-byte identical models.
// A duplicate identifier within a role is a fatal shape violation.
func Build(facts extractor.DocFacts, resolutions map[string]resolver.Resolution, gaps []resolver.Gap, cfg *config.Config) (*Model, error) {
	m := &Model{
		// Initialized so an empty model serializes as [], which is what the
		// schema and the policy input expect
		Layers: []LayerRecord{},
		MapID:  facts.MapID,
		Gaps:   gaps,
	}

	seen := make(map[extractor.Role]map[string]bool)
	add := func(r LayerRecord) error {
		if seen[r.Role] == nil {
			seen[r.Role] = make(map[string]bool)
		}
		if seen[r.Role][r.Identifier] {
			return fmt.Errorf("duplicate %s layer identifier %q", r.Role, r.Identifier)
		}
		seen[r.Role][r.Identifier] = true
		m.Layers = append(m.Layers, r)
		return nil
	}

	for _, decl := range facts.TileLayers {
		if err := add(LayerRecord{
			Identifier:    decl.Identifier,
			Role:          extractor.RoleBase,
			DisplayName:   displayName(facts, decl.Identifier),
			Span:          decl.Span,
			OptionsInsert: decl.OptionsInsert,
			Line:          decl.Line,
		}); err != nil {
			return nil, err
		}
	}

	for _, decl := range facts.GeoJSONLayers {
		record := LayerRecord{
			Identifier:    decl.Identifier,
			Role:          extractor.RoleOverlay,
			DisplayName:   displayName(facts, decl.Identifier),
			Color:         cfg.Defaults.FillColor,
			Opacity:       *cfg.Defaults.FillOpacity,
			Span:          decl.Span,
			OptionsInsert: decl.OptionsInsert,
			Line:          decl.Line,
		}
		if cfg.IsUneditable(decl.Identifier) {
			record.Role = extractor.RoleUneditableOverlay
		}
		if res, ok := resolutions[decl.Identifier]; ok {
			if res.ColorResolved {
				record.Color = res.FillColor
				record.ColorResolved = true
			}
			if res.OpacityResolved {
				record.Opacity = res.FillOpacity
				record.OpacityResolved = true
			}
		}
		if err := add(record); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// displayName prefers the old control's mapping, then the title-cased
// identifier; it never returns an empty string
func displayName(facts extractor.DocFacts, identifier string) string {
	if name, ok := facts.LayerNames[identifier]; ok && name != "" {
		return name
	}
	return extractor.FallbackDisplayName(identifier)
}
