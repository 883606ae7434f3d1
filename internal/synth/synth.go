// Package synth turns a validated layer model into the textual edits that
// retrofit the document: plugin references, per-layer metadata options,
// grouping arrays and the appearance-control construction.
//
// Every edit is expressed against the original snapshot's offsets; nothing
// here touches the document. The rewrite engine applies the edits.
package synth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/extractor"
	"github.com/mapcraft/leaflet-retrofit/internal/model"
)

// Edit replaces the text at Span with Text; a pure insertion has
// Span.Start == Span.End
type Edit struct {
	Span extractor.Span
	Text string
}

// Plan is the full set of edits for one run plus the change-log lines
// describing them
type Plan struct {
	Edits []Edit
	Notes []string
}

func (p *Plan) edit(span extractor.Span, text string) {
	p.Edits = append(p.Edits, Edit{Span: span, Text: text})
}

func (p *Plan) note(format string, args ...interface{}) {
	p.Notes = append(p.Notes, fmt.Sprintf(format, args...))
}

// Synthesizer emits replacement source fragments for one document
type Synthesizer struct {
	cfg *config.Config
}

// New creates a Synthesizer with the given configuration
func New(cfg *config.Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// Synthesize computes all edits for the document snapshot. Idempotent by
// construction: fragments already present in content are skipped and the
// skip is noted.
func (s *Synthesizer) Synthesize(content []byte, facts extractor.DocFacts, m *model.Model) *Plan {
	plan := &Plan{}

	s.planPluginReferences(content, facts, plan)
	s.planLayerOptions(content, m, plan)
	s.planControl(facts, m, plan)
	s.planAddToRemoval(content, facts, m, plan)

	return plan
}

// planPluginReferences injects the plugin script and stylesheet right after
// the core Leaflet includes. The plugin URL doubles as the marker token that
// makes re-runs detectable.
func (s *Synthesizer) planPluginReferences(content []byte, facts extractor.DocFacts, plan *Plan) {
	text := string(content)

	if strings.Contains(text, s.cfg.Plugin.ScriptURL) {
		plan.note("Plugin script reference already present, skipped")
	} else if facts.ScriptInsert < 0 {
		plan.note("Leaflet script include not found; plugin script not injected")
	} else {
		plan.edit(extractor.Span{Start: facts.ScriptInsert, End: facts.ScriptInsert},
			"\n    <script src=\""+s.cfg.Plugin.ScriptURL+"\"></script>")
		plan.note("Added Leaflet.Control.Appearance plugin script reference")
	}

	if strings.Contains(text, s.cfg.Plugin.StylesheetURL) {
		plan.note("Plugin stylesheet reference already present, skipped")
	} else if facts.StylesheetInsert < 0 {
		plan.note("Leaflet stylesheet include not found; plugin stylesheet not injected")
	} else {
		plan.edit(extractor.Span{Start: facts.StylesheetInsert, End: facts.StylesheetInsert},
			"\n    <link rel=\"stylesheet\" href=\""+s.cfg.Plugin.StylesheetURL+"\"/>")
		plan.note("Added Leaflet.Control.Appearance plugin stylesheet reference")
	}
}

// planLayerOptions injects name/color/opacity entries into each layer's
// options object. Base layers only need a name; the control reads color and
// opacity from overlays alone.
func (s *Synthesizer) planLayerOptions(content []byte, m *model.Model, plan *Plan) {
	augmentedBase := 0
	augmentedOverlay := 0

	for _, record := range m.Layers {
		if record.OptionsInsert < 0 {
			plan.note("No options object on %s; metadata not injected", record.Identifier)
			continue
		}
		if alreadyAugmented(content, record.OptionsInsert) {
			plan.note("Options on %s already augmented, skipped", record.Identifier)
			continue
		}

		var fragment string
		if record.Role == extractor.RoleBase {
			fragment = fmt.Sprintf("\n  \"name\": %s,", jsString(record.DisplayName))
			augmentedBase++
		} else {
			fragment = fmt.Sprintf("\n  \"name\": %s,\n  \"color\": %s,\n  \"opacity\": %s,",
				jsString(record.DisplayName), jsString(record.Color), jsNumber(record.Opacity))
			augmentedOverlay++
		}
		plan.edit(extractor.Span{Start: record.OptionsInsert, End: record.OptionsInsert}, fragment)
	}

	if augmentedBase > 0 {
		plan.note("Added name option to %d base layers", augmentedBase)
	}
	if augmentedOverlay > 0 {
		plan.note("Added appearance options to %d overlay layers", augmentedOverlay)
	}
}

// planControl replaces the old L.control.layers configuration with the
// grouping arrays and the L.control.appearance construction
func (s *Synthesizer) planControl(facts extractor.DocFacts, m *model.Model, plan *Plan) {
	if facts.HasAppearance {
		plan.note("Appearance control already present, control replacement skipped")
		return
	}
	if !facts.HasControl {
		plan.note("Old layer control not found; control statement not replaced")
		return
	}

	plan.edit(facts.ControlSpan, s.controlFragment(m))
	plan.note("Replaced L.control.layers() with L.control.appearance()")
}

// controlFragment renders the three grouping arrays and the control
// construction statement in declaration order
func (s *Synthesizer) controlFragment(m *model.Model) string {
	var b strings.Builder

	writeArray := func(name string, records []model.LayerRecord) {
		if len(records) == 0 {
			fmt.Fprintf(&b, "var %s = [];\n\n        ", name)
			return
		}
		fmt.Fprintf(&b, "var %s = [\n", name)
		for _, r := range records {
			fmt.Fprintf(&b, "            %s,\n", r.Identifier)
		}
		b.WriteString("        ];\n\n        ")
	}

	writeArray("baseLayers", m.Base())
	writeArray("uneditableOverlays", m.UneditableOverlays())
	writeArray("overlays", m.Overlays())

	ctl := s.cfg.Control
	fmt.Fprintf(&b, `var appearanceControl = L.control.appearance(
            baseLayers,
            uneditableOverlays,
            overlays,
            {
                position: '%s',
                radioCheckbox: %t,
                layerName: %t,
                opacity: %t,
                color: %t,
                remove: %t
            }
        ).addTo(%s);`,
		ctl.Position, *ctl.RadioCheckbox, *ctl.LayerName, *ctl.Opacity, *ctl.Color, *ctl.Remove, m.MapID)

	return b.String()
}

// planAddToRemoval comments out the automatic addTo registrations so the new
// control exclusively governs visibility. The first base layer keeps its
// addTo call: that is the default surface shown before any user interaction.
func (s *Synthesizer) planAddToRemoval(content []byte, facts extractor.DocFacts, m *model.Model, plan *Plan) {
	roles := make(map[string]extractor.Role, len(m.Layers))
	for _, r := range m.Layers {
		roles[r.Identifier] = r.Role
	}

	keptBase := false
	commented := 0
	for _, call := range facts.AddToCalls {
		role, isLayer := roles[call.Identifier]
		if !isLayer {
			continue
		}
		if role == extractor.RoleBase && !keptBase {
			keptBase = true
			continue
		}
		if isCommentedOut(content, call.Span.Start) {
			continue
		}
		original := string(content[call.Span.Start:call.Span.End])
		plan.edit(call.Span, "// "+original+" // Commented out - managed by appearance control")
		commented++
	}

	if commented > 0 {
		plan.note("Commented out %d redundant addTo() calls", commented)
	}
}

// alreadyAugmented reports whether the options object at insert already
// starts with an injected "name" entry
func alreadyAugmented(content []byte, insert int) bool {
	rest := content[insert:]
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\n' || rest[i] == '\r') {
		i++
	}
	return strings.HasPrefix(string(rest[i:]), `"name"`)
}

// isCommentedOut reports whether the statement at offset sits behind a line
// comment marker
func isCommentedOut(content []byte, offset int) bool {
	i := offset
	for i > 0 && content[i-1] != '\n' {
		i--
	}
	return strings.Contains(string(content[i:offset]), "//")
}

// jsString renders a display name or color as a JavaScript string literal,
// preserving the extracted text exactly
func jsString(s string) string {
	return strconv.Quote(s)
}

// jsNumber renders an opacity without format drift (0.6 stays 0.6, 1 stays 1)
func jsNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
