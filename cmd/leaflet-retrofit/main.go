// =============================================================================
// leaflet-retrofit - Main Entry Point
// =============================================================================
//
// This tool rewrites a Folium-exported Leaflet map document to use the
// Leaflet.Control.Appearance plugin, synthesizing the per-layer metadata
// (name, color, opacity) the plugin requires.
//
// THE PIPELINE:
//   1. Extractor locates tile-layer / geoJson declarations (Tree-sitter,
//      regex fallback) and the old layer-control configuration
//   2. Resolver pulls fillColor/fillOpacity literals out of styler callbacks
//   3. Model builder normalizes everything into ordered layer records
//   4. CUE validator enforces the model contract (crash on schema mismatch)
//   5. OPA evaluates the structural shape rules; mismatches abort pre-mutation
//   6. Synthesizer plans span edits; the rewrite engine applies them with
//      backup and change-log artifacts
//
// WHEN A DOCUMENT IS REJECTED:
//   Start at the beginning of the pipeline, not the end - extraction first,
//   policy last.
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/rewrite"
)

func main() {
	var (
		verbose    bool
		dryRun     bool
		configPath string
	)

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "init":
			runInit()
			return
		case "-h", "--help", "help":
			printUsage()
			return
		case "-v", "--verbose":
			verbose = true
		case "-n", "--dry-run":
			dryRun = true
		case "-c", "--config":
			if i+1 >= len(args) {
				printUsage()
				os.Exit(1)
			}
			i++
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "Unknown argument: %s\n\n", args[i])
			printUsage()
			os.Exit(1)
		}
	}

	runTransform(configPath, verbose, dryRun)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: leaflet-retrofit [command] [options]

Run from the directory containing the map document (index.html by default).

Commands:
  init              Create a leaflet_retrofit.json configuration file

Options:
  -n, --dry-run     Plan and report every edit without writing anything
  -v, --verbose     Enable verbose output
  -c, --config      Specify config file: leaflet-retrofit -c config.json
  -h, --help        Show this help message

Configuration:
  leaflet-retrofit looks for configuration in:
    1. ./leaflet_retrofit.json
    2. ./.leaflet_retrofit.json
    3. ~/.config/leaflet_retrofit/config.json

  Run 'leaflet-retrofit init' to create a default configuration file.`)
}

func runInit() {
	configPath := "leaflet_retrofit.json"

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - The input document name")
	fmt.Println("  - Plugin asset URLs")
	fmt.Println("  - Control position and feature flags")
}

func runTransform(configPath string, verbose, dryRun bool) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", configPath, err)
			os.Exit(1)
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			fmt.Printf("Warning: Could not load config: %v (using defaults)\n", err)
			cfg = config.DefaultConfig()
		}
	}

	fmt.Println("Starting Leaflet.Control.Appearance integration...")
	fmt.Println()

	engine := rewrite.New(cfg)
	engine.Verbose = verbose
	engine.DryRun = dryRun

	result, err := engine.Run(cfg.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var wf *rewrite.WriteFailure
		if errors.As(err, &wf) && wf.Stage != "backup" {
			fmt.Fprintf(os.Stderr, "Recovery: the pre-transform snapshot is safe; restore it over %s if needed.\n", cfg.Input)
		}
		os.Exit(1)
	}

	if dryRun {
		return
	}

	fmt.Println()
	fmt.Println("==================================================")
	fmt.Println("Modification complete!")
	fmt.Printf("Original file backed up to: %s\n", result.BackupPath)
	fmt.Printf("Modified file: %s\n", result.Path)
	fmt.Println("==================================================")
}
