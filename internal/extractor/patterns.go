package extractor

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Pattern: opening tag of any script element
	scriptOpenPattern = regexp.MustCompile(`(?i)<script[^>]*>`)

	// Pattern: the core Leaflet script include
	leafletScriptPattern = regexp.MustCompile(`<script src="https://cdn\.jsdelivr\.net/npm/leaflet@[^"]*"></script>`)

	// Pattern: the core Leaflet stylesheet include
	leafletCSSPattern = regexp.MustCompile(`<link rel="stylesheet" href="https://cdn\.jsdelivr\.net/npm/leaflet@[^"]*"/>`)

	// Pattern: var <id> = L.tileLayer(
	tileDeclPattern = regexp.MustCompile(`\bvar\s+(\w+)\s*=\s*L\.tileLayer\s*\(`)

	// Pattern: var <id> = L.geoJson( / L.geoJSON(
	geoDeclPattern = regexp.MustCompile(`\bvar\s+(\w+)\s*=\s*L\.geoJson\s*\(|\bvar\s+(\w+)\s*=\s*L\.geoJSON\s*\(`)

	// Pattern: var <id> = L.map(
	mapDeclPattern = regexp.MustCompile(`\bvar\s+(\w+)\s*=\s*L\.map\s*\(`)

	// Pattern: <id>.addTo(<map>);
	addToPattern = regexp.MustCompile(`\b(\w+)\.addTo\((\w+)\);`)

	// Pattern: the old control's layers object declaration
	controlNamesPattern = regexp.MustCompile(`\bvar\s+(\w+)\s*=\s*\{`)

	// Pattern: base_layers / overlays sub-object openers
	baseLayersPattern = regexp.MustCompile(`base_layers\s*:\s*\{`)
	overlaysPattern   = regexp.MustCompile(`\boverlays\s*:\s*\{`)

	// Pattern: "Display Name" : identifier
	nameEntryPattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*:\s*(\w+)`)

	// Pattern: start of the old control construction
	controlCallPattern = regexp.MustCompile(`L\.control\.layers\s*\(`)

	// Pattern: .addTo(<map>); terminating the old control construction
	controlAddToPattern = regexp.MustCompile(`\)\s*\.addTo\(\s*(\w+)\s*\)\s*;`)
)

// scriptRegions returns the spans of inline script bodies. Script elements
// with a src attribute have no body worth parsing and are skipped.
func scriptRegions(content []byte) []Span {
	var regions []Span
	text := string(content)
	for _, loc := range scriptOpenPattern.FindAllStringIndex(text, -1) {
		tag := text[loc[0]:loc[1]]
		end := strings.Index(text[loc[1]:], "</script>")
		if end < 0 {
			continue
		}
		if strings.Contains(tag, "src=") {
			continue
		}
		regions = append(regions, Span{Start: loc[1], End: loc[1] + end})
	}
	return regions
}

// findIncludeInsert returns the offset just past the first match of an
// include pattern, or -1 when the include is absent
func findIncludeInsert(content []byte, pattern *regexp.Regexp) int {
	loc := pattern.FindIndex(content)
	if loc == nil {
		return -1
	}
	return loc[1]
}

// lineAt returns the 1-based line number of a byte offset
func lineAt(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

// scanBalanced returns the offset just past the delimiter matching the one at
// open ('(' '{' or '['), skipping string literals and comments. Returns -1
// when the source ends before the match.
func scanBalanced(src []byte, open int) int {
	openCh := src[open]
	var closeCh byte
	switch openCh {
	case '(':
		closeCh = ')'
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return -1
	}

	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i + 1
			}
		case '"', '\'', '`':
			i = skipString(src, i)
			if i < 0 {
				return -1
			}
		case '/':
			if i+1 < len(src) {
				switch src[i+1] {
				case '/':
					j := bytes.IndexByte(src[i:], '\n')
					if j < 0 {
						return -1
					}
					i += j
				case '*':
					j := bytes.Index(src[i+2:], []byte("*/"))
					if j < 0 {
						return -1
					}
					i += 2 + j + 1
				}
			}
		}
	}
	return -1
}

// skipString returns the index of the closing quote for the string starting
// at i, honoring backslash escapes; -1 when unterminated
func skipString(src []byte, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j
		}
	}
	return -1
}

// firstObjectInCall finds the offset just after the opening brace of the
// first top-level object argument of a call whose argument list starts at
// open (the '(' offset); -1 when the call has no object argument
func firstObjectInCall(src []byte, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				return -1
			}
		case '{':
			if depth == 1 {
				return i + 1
			}
			// nested object inside a non-object argument; step over it
			end := scanBalanced(src, i)
			if end < 0 {
				return -1
			}
			i = end - 1
		case '"', '\'', '`':
			i = skipString(src, i)
			if i < 0 {
				return -1
			}
		}
	}
	return -1
}

// looksLikeLayerBinding flags variable names that follow the exporter's
// layer naming but whose declaration did not match a known construction call
func looksLikeLayerBinding(name string) bool {
	return strings.Contains(name, "tile_layer") || strings.Contains(name, "geo_json")
}

// DecodeDisplayName resolves backslash escapes (> and friends) that the
// exporter writes into display names
func DecodeDisplayName(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	if decoded, err := strconv.Unquote(`"` + strings.ReplaceAll(raw, `"`, `\"`) + `"`); err == nil {
		return decoded
	}
	return raw
}

// FallbackDisplayName derives a human-readable name from a layer identifier
// when the old control never named it. Never returns an empty string.
func FallbackDisplayName(identifier string) string {
	parts := strings.FieldsFunc(identifier, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return identifier
	}
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// extractSimple is the pattern-based fallback used when no Tree-sitter
// language is set or the parse recognizes nothing
func (e *Extractor) extractSimple(facts DocFacts, content []byte) (DocFacts, error) {
	// The fallback rebuilds everything the walk would have produced
	facts.TileLayers = nil
	facts.GeoJSONLayers = nil
	facts.AddToCalls = nil
	facts.MapID = ""
	facts.ControlSpan = Span{}
	facts.HasControl = false

	facts.TileLayers = matchDeclarations(content, tileDeclPattern, RoleBase)
	facts.GeoJSONLayers = matchDeclarations(content, geoDeclPattern, RoleOverlay)

	if m := mapDeclPattern.FindSubmatchIndex(content); m != nil {
		facts.MapID = string(content[m[2]:m[3]])
	}

	for _, m := range addToPattern.FindAllSubmatchIndex(content, -1) {
		facts.AddToCalls = append(facts.AddToCalls, AddToCall{
			Identifier: string(content[m[2]:m[3]]),
			MapID:      string(content[m[4]:m[5]]),
			Span:       Span{Start: m[0], End: m[1]},
		})
	}

	extractControlSimple(content, &facts)
	facts.fixLines(content)
	return facts, nil
}

// matchDeclarations finds layer construction statements with one pattern.
// The capture group is the identifier; the statement span runs from the
// `var` keyword through the semicolon after the balanced argument list.
func matchDeclarations(content []byte, pattern *regexp.Regexp, role Role) []Declaration {
	var decls []Declaration
	for _, m := range pattern.FindAllSubmatchIndex(content, -1) {
		identifier := captured(content, m)
		open := m[1] - 1 // the '(' consumed by the pattern
		end := scanBalanced(content, open)
		if end < 0 {
			continue
		}
		if end < len(content) && content[end] == ';' {
			end++
		}
		decls = append(decls, Declaration{
			Identifier:    identifier,
			Role:          role,
			Span:          Span{Start: m[0], End: end},
			OptionsInsert: firstObjectInCall(content, open),
		})
	}
	return decls
}

// captured returns the first non-empty capture group of a submatch index set
func captured(content []byte, m []int) string {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 {
			return string(content[m[i]:m[i+1]])
		}
	}
	return ""
}

// extractControlSimple locates the old layer-control configuration: the
// layers object declaration with base_layers/overlays name maps, and the
// L.control.layers(...).addTo(...); statement that consumes it
func extractControlSimple(content []byte, facts *DocFacts) {
	namesStart := -1
	namesEnd := -1
	for _, m := range controlNamesPattern.FindAllSubmatchIndex(content, -1) {
		objOpen := m[1] - 1
		objEnd := scanBalanced(content, objOpen)
		if objEnd < 0 {
			continue
		}
		inner := content[objOpen:objEnd]
		if baseLayersPattern.Match(inner) || overlaysPattern.Match(inner) {
			collectNamesSimple(inner, facts.LayerNames)
			namesStart = m[0]
			namesEnd = objEnd
			break
		}
	}

	searchFrom := 0
	if namesEnd > 0 {
		searchFrom = namesEnd
	}
	callLoc := controlCallPattern.FindIndex(content[searchFrom:])
	if callLoc == nil {
		return
	}
	callStart := searchFrom + callLoc[0]
	addToLoc := controlAddToPattern.FindSubmatchIndex(content[callStart:])
	if addToLoc == nil {
		return
	}
	if facts.MapID == "" {
		facts.MapID = string(content[callStart+addToLoc[2] : callStart+addToLoc[3]])
	}
	controlEnd := callStart + addToLoc[1]

	start := namesStart
	if start < 0 {
		// No names object; replace the control statement alone, covering a
		// `let x = ` / `var x = ` prefix when the call is bound
		start = statementStart(content, callStart)
	}

	facts.ControlSpan = Span{Start: start, End: controlEnd}
	facts.HasControl = true
}

// statementStart walks back from a call offset to the start of the enclosing
// statement (covering `let x = ` / `var x = ` prefixes on the same line)
func statementStart(content []byte, callStart int) int {
	lineStart := callStart
	for lineStart > 0 && content[lineStart-1] != '\n' {
		lineStart--
	}
	trimmed := strings.TrimLeft(string(content[lineStart:callStart]), " \t")
	if strings.HasPrefix(trimmed, "let ") || strings.HasPrefix(trimmed, "var ") || strings.HasPrefix(trimmed, "const ") || trimmed == "" {
		return lineStart + (callStart - lineStart - len(trimmed))
	}
	return callStart
}

// collectNamesSimple reads "Display Name": identifier entries out of the
// base_layers and overlays sub-objects
func collectNamesSimple(inner []byte, names map[string]string) {
	for _, sub := range []*regexp.Regexp{baseLayersPattern, overlaysPattern} {
		loc := sub.FindIndex(inner)
		if loc == nil {
			continue
		}
		open := loc[1] - 1
		end := scanBalanced(inner, open)
		if end < 0 {
			continue
		}
		for _, m := range nameEntryPattern.FindAllSubmatch(inner[open:end], -1) {
			names[string(m[2])] = DecodeDisplayName(string(m[1]))
		}
	}
}
