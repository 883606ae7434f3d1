package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Extractor uses Tree-sitter to parse the inline scripts of a map document
// and extract layer declarations
type Extractor struct {
	parser *sitter.Parser
	lang   *sitter.Language
}

// Role classifies a layer declaration
type Role string

const (
	RoleBase              Role = "base"
	RoleOverlay           Role = "overlay"
	RoleUneditableOverlay Role = "uneditable-overlay"
)

// Span is a half-open byte offset range [Start, End) into the original document
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Declaration is a single tile-layer or vector-layer construction statement
type Declaration struct {
	// Identifier is the variable the layer is bound to
	Identifier string `json:"identifier"`

	// Role is base for L.tileLayer declarations, overlay for L.geoJson
	Role Role `json:"role"`

	// Span covers the whole declaration statement
	Span Span `json:"span"`

	// OptionsInsert is the offset just after the opening brace of the
	// declaration's options object, or -1 when the call has no options object
	OptionsInsert int `json:"options_insert"`

	Line int `json:"line"`
}

// AddToCall is a standalone `<layer>.addTo(<map>);` statement
type AddToCall struct {
	Identifier string `json:"identifier"`
	MapID      string `json:"map_id"`
	Span       Span   `json:"span"`
}

// DocFacts contains everything extracted from a single map document
type DocFacts struct {
	Path string `json:"path"`

	// TileLayers and GeoJSONLayers preserve source declaration order
	TileLayers    []Declaration `json:"tile_layers"`
	GeoJSONLayers []Declaration `json:"geojson_layers"`

	// LayerNames maps a layer identifier to the display name the old layer
	// control used for it
	LayerNames map[string]string `json:"layer_names"`

	// MapID is the variable bound to L.map(...)
	MapID string `json:"map_id"`

	// ControlSpan covers the old control configuration: from the start of the
	// layers object declaration through `.addTo(<map>);` of L.control.layers.
	// Only meaningful when HasControl is true.
	ControlSpan Span `json:"control_span"`
	HasControl  bool `json:"has_control"`

	// HasAppearance reports that an L.control.appearance call is already
	// present, i.e. the document was transformed by an earlier run
	HasAppearance bool `json:"has_appearance"`

	// AddToCalls are the automatic layer registrations in statement order
	AddToCalls []AddToCall `json:"add_to_calls"`

	// ScriptInsert / StylesheetInsert are the offsets right after the core
	// Leaflet includes, where plugin references belong; -1 when not found
	ScriptInsert     int `json:"script_insert"`
	StylesheetInsert int `json:"stylesheet_insert"`

	// Skipped lists layer-like declarations that did not match a known
	// construction shape; reported, never fatal
	Skipped []string `json:"skipped,omitempty"`

	// walk-time bookkeeping for the control span
	controlNamesStart int
	controlStmtEnd    int
	hasControlNames   bool
}

// New creates a new Extractor with the JavaScript grammar loaded
func New() *Extractor {
	parser := sitter.NewParser()
	lang := javascript.GetLanguage()
	parser.SetLanguage(lang)
	return &Extractor{
		parser: parser,
		lang:   lang,
	}
}

// SetLanguage overrides the Tree-sitter language; nil selects the
// regex-based fallback extraction path
func (e *Extractor) SetLanguage(lang *sitter.Language) {
	e.lang = lang
	if lang != nil {
		e.parser.SetLanguage(lang)
	}
}

// Extract reads a document and extracts layer facts from it
func (e *Extractor) Extract(path string) (DocFacts, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return DocFacts{Path: path}, fmt.Errorf("reading document: %w", err)
	}
	return e.ExtractSource(path, content)
}

// ExtractSource extracts layer facts from an in-memory document snapshot.
// All spans are offsets into content.
func (e *Extractor) ExtractSource(path string, content []byte) (DocFacts, error) {
	facts := DocFacts{
		Path:             path,
		LayerNames:       make(map[string]string),
		ScriptInsert:     -1,
		StylesheetInsert: -1,
	}

	facts.HasAppearance = strings.Contains(string(content), "L.control.appearance(")
	facts.ScriptInsert = findIncludeInsert(content, leafletScriptPattern)
	facts.StylesheetInsert = findIncludeInsert(content, leafletCSSPattern)

	if e.lang == nil {
		return e.extractSimple(facts, content)
	}

	for _, region := range scriptRegions(content) {
		script := content[region.Start:region.End]
		tree, err := e.parser.ParseCtx(context.Background(), nil, script)
		if err != nil {
			return facts, fmt.Errorf("parsing script at offset %d: %w", region.Start, err)
		}
		e.walkScript(tree.RootNode(), script, region.Start, &facts)
		tree.Close()
	}

	// A document whose scripts yield nothing recognizable is more likely an
	// unparsable shape than an empty map; retry with the pattern fallback.
	if len(facts.TileLayers) == 0 && len(facts.GeoJSONLayers) == 0 {
		return e.extractSimple(facts, content)
	}

	facts.finishControlSpan()
	facts.fixLines(content)
	return facts, nil
}

// fixLines recomputes declaration line numbers against the whole document;
// the walk only knows script-region-relative rows
func (f *DocFacts) fixLines(content []byte) {
	for i := range f.TileLayers {
		f.TileLayers[i].Line = lineAt(content, f.TileLayers[i].Span.Start)
	}
	for i := range f.GeoJSONLayers {
		f.GeoJSONLayers[i].Line = lineAt(content, f.GeoJSONLayers[i].Span.Start)
	}
}

// walkScript traverses the syntax tree of one script region and collects facts.
// base is the region's offset in the whole document.
func (e *Extractor) walkScript(node *sitter.Node, source []byte, base int, facts *DocFacts) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "variable_declaration", "lexical_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			decl := node.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			e.extractDeclarator(node, decl, source, base, facts)
		}

	case "expression_statement":
		e.extractAddTo(node, source, base, facts)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.walkScript(node.NamedChild(i), source, base, facts)
	}
}

// extractDeclarator handles one `var <name> = <value>` binding. stmt is the
// enclosing declaration statement, which defines the recorded span.
func (e *Extractor) extractDeclarator(stmt, decl *sitter.Node, source []byte, base int, facts *DocFacts) {
	nameNode := decl.ChildByFieldName("name")
	valueNode := decl.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return
	}
	name := nameNode.Content(source)
	span := Span{Start: base + int(stmt.StartByte()), End: base + int(stmt.EndByte())}

	switch valueNode.Type() {
	case "call_expression":
		callee := calleeName(valueNode, source)
		switch callee {
		case "L.tileLayer":
			facts.TileLayers = append(facts.TileLayers, Declaration{
				Identifier:    name,
				Role:          RoleBase,
				Span:          span,
				OptionsInsert: optionsInsert(valueNode, source, base),
			})
		case "L.geoJson", "L.geoJSON":
			facts.GeoJSONLayers = append(facts.GeoJSONLayers, Declaration{
				Identifier:    name,
				Role:          RoleOverlay,
				Span:          span,
				OptionsInsert: optionsInsert(valueNode, source, base),
			})
		case "L.map":
			if facts.MapID == "" {
				facts.MapID = name
			}
		default:
			// L.control.layers(...).addTo(map) parses as a call whose callee
			// is the member expression `<control call>.addTo`
			if isOldControlCall(valueNode, source) {
				facts.controlStmtEnd = span.End
				if id := addToArgument(valueNode, source); id != "" && facts.MapID == "" {
					facts.MapID = id
				}
				return
			}
			if looksLikeLayerBinding(name) {
				facts.Skipped = append(facts.Skipped, name)
			}
		}

	case "object":
		if collectLayerNames(valueNode, source, facts.LayerNames) {
			facts.controlNamesStart = span.Start
			facts.hasControlNames = true
		}
	}
}

// extractAddTo records `<identifier>.addTo(<map>);` statements
func (e *Extractor) extractAddTo(stmt *sitter.Node, source []byte, base int, facts *DocFacts) {
	call := stmt.NamedChild(0)
	if call == nil || call.Type() != "call_expression" {
		return
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return
	}
	prop := fn.ChildByFieldName("property")
	obj := fn.ChildByFieldName("object")
	if prop == nil || obj == nil || prop.Content(source) != "addTo" || obj.Type() != "identifier" {
		return
	}
	facts.AddToCalls = append(facts.AddToCalls, AddToCall{
		Identifier: obj.Content(source),
		MapID:      addToArgument(call, source),
		Span:       Span{Start: base + int(stmt.StartByte()), End: base + int(stmt.EndByte())},
	})
}

// calleeName returns the textual callee of a call expression ("L.tileLayer")
func calleeName(call *sitter.Node, source []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return fn.Content(source)
}

// optionsInsert finds the offset just after the opening brace of the first
// object argument of a construction call, or -1
func optionsInsert(call *sitter.Node, source []byte, base int) int {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return -1
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "object" {
			return base + int(arg.StartByte()) + 1
		}
	}
	return -1
}

// isOldControlCall reports whether a call expression is
// `L.control.layers(...).addTo(...)`
func isOldControlCall(call *sitter.Node, source []byte) bool {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return false
	}
	prop := fn.ChildByFieldName("property")
	obj := fn.ChildByFieldName("object")
	if prop == nil || obj == nil || prop.Content(source) != "addTo" {
		return false
	}
	return strings.HasPrefix(obj.Content(source), "L.control.layers")
}

// addToArgument returns the first identifier argument of an addTo call
func addToArgument(call *sitter.Node, source []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	arg := args.NamedChild(0)
	if arg.Type() != "identifier" {
		return ""
	}
	return arg.Content(source)
}

// collectLayerNames scans an object literal for base_layers / overlays
// sub-objects mapping display names to layer identifiers. Returns true when
// the object has the old layer-control shape.
func collectLayerNames(obj *sitter.Node, source []byte, names map[string]string) bool {
	found := false
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil || value.Type() != "object" {
			continue
		}
		keyText := propertyName(key, source)
		if keyText != "base_layers" && keyText != "overlays" {
			continue
		}
		found = true
		for j := 0; j < int(value.NamedChildCount()); j++ {
			entry := value.NamedChild(j)
			if entry.Type() != "pair" {
				continue
			}
			ek := entry.ChildByFieldName("key")
			ev := entry.ChildByFieldName("value")
			if ek == nil || ev == nil || ev.Type() != "identifier" {
				continue
			}
			names[ev.Content(source)] = DecodeDisplayName(propertyName(ek, source))
		}
	}
	return found
}

// propertyName returns an object key with surrounding quotes stripped
func propertyName(key *sitter.Node, source []byte) string {
	text := key.Content(source)
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') {
		return text[1 : len(text)-1]
	}
	return text
}

// finishControlSpan combines the layers-object declaration and the old
// control statement into one replaceable span. Both must be present; a names
// object without a control statement (or vice versa) is not the known shape.
func (f *DocFacts) finishControlSpan() {
	if f.hasControlNames && f.controlStmtEnd > f.controlNamesStart {
		f.ControlSpan = Span{Start: f.controlNamesStart, End: f.controlStmtEnd}
		f.HasControl = true
	}
}
