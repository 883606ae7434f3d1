// layer-facts prints the normalized layer model extracted from a map
// document as JSON, without mutating anything. Useful for inspecting what
// leaflet-retrofit would work from.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/extractor"
	"github.com/mapcraft/leaflet-retrofit/internal/model"
	"github.com/mapcraft/leaflet-retrofit/internal/resolver"
)

func main() {
	output := flag.String("output", "", "write model JSON to file (default: stdout)")
	flag.StringVar(output, "o", "", "write model JSON to file (shorthand)")
	rawFacts := flag.Bool("raw", false, "print raw extraction facts instead of the built model")
	flag.Parse()

	args := flag.Args()
	path := config.DefaultInput
	if len(args) > 0 {
		path = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	facts, err := extractor.New().ExtractSource(path, content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting layers: %v\n", err)
		os.Exit(1)
	}

	var payload interface{}
	if *rawFacts {
		payload = facts
	} else {
		overlayIDs := make([]string, 0, len(facts.GeoJSONLayers))
		for _, decl := range facts.GeoJSONLayers {
			overlayIDs = append(overlayIDs, decl.Identifier)
		}
		resolutions, gaps := resolver.Resolve(content, overlayIDs)

		m, err := model.Build(facts, resolutions, gaps, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building model: %v\n", err)
			os.Exit(1)
		}
		payload = m
	}

	if *output != "" {
		if err := writeJSON(*output, payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing model: %v\n", err)
			os.Exit(1)
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding model: %v\n", err)
			os.Exit(1)
		}
	}
}

func writeJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
