// Package resolver locates the styling callback associated with each overlay
// layer and extracts the fill literals the appearance control needs.
//
// Resolution is read-only and best-effort: only directly written literals are
// extracted. Computed expressions, missing stylers and ambiguous matches all
// degrade to defaults further down the pipeline, never to an abort.
package resolver

import (
	"fmt"
	"regexp"
	"strconv"
)

// Resolution holds the styling literals found for one overlay
type Resolution struct {
	Identifier string `json:"identifier"`

	// FillColor is the literal fillColor string; only meaningful when
	// ColorResolved is set
	FillColor     string `json:"fill_color"`
	ColorResolved bool   `json:"color_resolved"`

	// FillOpacity is the literal fillOpacity value; only meaningful when
	// OpacityResolved is set
	FillOpacity     float64 `json:"fill_opacity"`
	OpacityResolved bool    `json:"opacity_resolved"`
}

// Gap records a styling literal that could not be extracted; non-fatal
type Gap struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

func (g Gap) String() string {
	return fmt.Sprintf("resolution gap for %s: %s", g.Identifier, g.Reason)
}

var (
	// Pattern: "fillColor": "<literal>"
	fillColorPattern = regexp.MustCompile(`"fillColor"\s*:\s*"([^"]+)"`)

	// Pattern: "fillOpacity": <number>
	fillOpacityPattern = regexp.MustCompile(`"fillOpacity"\s*:\s*([\d.]+)`)
)

// stylerPattern matches the styler function for one layer through its first
// returned style object. The exporter names stylers <identifier>_styler and
// returns flat option objects, so a non-greedy scan to the first closing
// brace is the whole recognized shape.
func stylerPattern(identifier string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)function ` + regexp.QuoteMeta(identifier) + `_styler\s*\(\w*\)\s*\{.*?return\s*\{([^}]*)\}`)
}

// Resolve extracts fill literals for each overlay identifier. The returned
// map only has entries for identifiers whose styler was found; every partial
// or failed resolution is described in the returned gaps, in input order.
func Resolve(content []byte, identifiers []string) (map[string]Resolution, []Gap) {
	resolutions := make(map[string]Resolution, len(identifiers))
	var gaps []Gap

	for _, id := range identifiers {
		matches := stylerPattern(id).FindAllSubmatch(content, 2)
		if matches == nil {
			gaps = append(gaps, Gap{Identifier: id, Reason: "no styler function found; using defaults"})
			continue
		}
		if len(matches) > 1 {
			// Nearest-textual-association heuristic: first occurrence wins,
			// but the ambiguity is worth surfacing
			gaps = append(gaps, Gap{Identifier: id, Reason: "multiple styler functions found; using the first"})
		}

		res := Resolution{Identifier: id}
		style := matches[0][1]

		if m := fillColorPattern.FindSubmatch(style); m != nil {
			res.FillColor = string(m[1])
			res.ColorResolved = true
		} else {
			gaps = append(gaps, Gap{Identifier: id, Reason: "fillColor is not a string literal; using default color"})
		}

		if m := fillOpacityPattern.FindSubmatch(style); m != nil {
			opacity, err := strconv.ParseFloat(string(m[1]), 64)
			if err == nil && opacity >= 0 && opacity <= 1 {
				res.FillOpacity = opacity
				res.OpacityResolved = true
			} else {
				gaps = append(gaps, Gap{Identifier: id, Reason: fmt.Sprintf("fillOpacity %q out of range; using default opacity", m[1])})
			}
		} else {
			gaps = append(gaps, Gap{Identifier: id, Reason: "fillOpacity is not a numeric literal; using default opacity"})
		}

		resolutions[id] = res
	}

	return resolutions, gaps
}
