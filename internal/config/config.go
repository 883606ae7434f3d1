package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for leaflet-retrofit
type Config struct {
	// Input is the HTML document to transform, relative to the working directory
	Input string `json:"input,omitempty"`

	// Plugin contains the Leaflet.Control.Appearance asset references
	Plugin PluginConfig `json:"plugin,omitempty"`

	// Control contains the options passed to L.control.appearance()
	Control ControlConfig `json:"control,omitempty"`

	// Defaults contains fallback values used when a styler cannot be resolved
	Defaults DefaultsConfig `json:"defaults,omitempty"`

	// UneditableOverlays lists overlay identifiers that should be grouped into
	// the uneditableOverlays array instead of the editable overlays array
	UneditableOverlays []string `json:"uneditableOverlays,omitempty"`
}

// PluginConfig holds the script and stylesheet URLs for the control plugin
type PluginConfig struct {
	// ScriptURL is the plugin JavaScript asset, injected after the Leaflet script
	ScriptURL string `json:"scriptUrl,omitempty"`

	// StylesheetURL is the plugin CSS asset, injected after the Leaflet stylesheet
	StylesheetURL string `json:"stylesheetUrl,omitempty"`
}

// ControlConfig mirrors the recognized L.control.appearance option set
type ControlConfig struct {
	// Position is one of: "topright", "topleft", "bottomright", "bottomleft"
	Position string `json:"position,omitempty"`

	// RadioCheckbox shows radio buttons for base layers and checkboxes for overlays
	RadioCheckbox *bool `json:"radioCheckbox,omitempty"`

	// LayerName shows each layer's display name
	LayerName *bool `json:"layerName,omitempty"`

	// Opacity shows the per-overlay opacity slider
	Opacity *bool `json:"opacity,omitempty"`

	// Color shows the per-overlay color picker
	Color *bool `json:"color,omitempty"`

	// Remove shows the per-overlay remove button
	Remove *bool `json:"remove,omitempty"`
}

// DefaultsConfig holds substitutes for unresolvable styling literals
type DefaultsConfig struct {
	// FillColor is used when an overlay has no resolvable fillColor literal
	FillColor string `json:"fillColor,omitempty"`

	// FillOpacity is used when an overlay has no styler at all
	FillOpacity *float64 `json:"fillOpacity,omitempty"`
}

const (
	// DefaultInput is the document transformed when no config overrides it
	DefaultInput = "index.html"

	defaultScriptURL     = "https://cdn.jsdelivr.net/gh/Kanahiro/Leaflet.Control.Appearance@master/dist/L.Control.Appearance.js"
	defaultStylesheetURL = "https://cdn.jsdelivr.net/gh/Kanahiro/Leaflet.Control.Appearance@master/dist/L.Control.Appearance.css"
	defaultPosition      = "topright"
	defaultFillColor     = "#000000"
	defaultFillOpacity   = 1.0
)

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Input: DefaultInput,
		Plugin: PluginConfig{
			ScriptURL:     defaultScriptURL,
			StylesheetURL: defaultStylesheetURL,
		},
		Control: ControlConfig{
			Position:      defaultPosition,
			RadioCheckbox: boolPtr(true),
			LayerName:     boolPtr(true),
			Opacity:       boolPtr(true),
			Color:         boolPtr(true),
			Remove:        boolPtr(true),
		},
		Defaults: DefaultsConfig{
			FillColor:   defaultFillColor,
			FillOpacity: floatPtr(defaultFillOpacity),
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./leaflet_retrofit.json (current working directory)
//  2. ./.leaflet_retrofit.json (current working directory)
//  3. ~/.config/leaflet_retrofit/config.json
//
// Returns DefaultConfig if no config file is found
func Load() (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "leaflet_retrofit.json"),
		filepath.Join(cwd, ".leaflet_retrofit.json"),
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "leaflet_retrofit", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	// No config found, return defaults
	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if c.Input == "" {
		c.Input = DefaultInput
	}
	if c.Plugin.ScriptURL == "" {
		c.Plugin.ScriptURL = defaultScriptURL
	}
	if c.Plugin.StylesheetURL == "" {
		c.Plugin.StylesheetURL = defaultStylesheetURL
	}
	if c.Control.Position == "" {
		c.Control.Position = defaultPosition
	}
	if c.Control.RadioCheckbox == nil {
		c.Control.RadioCheckbox = boolPtr(true)
	}
	if c.Control.LayerName == nil {
		c.Control.LayerName = boolPtr(true)
	}
	if c.Control.Opacity == nil {
		c.Control.Opacity = boolPtr(true)
	}
	if c.Control.Color == nil {
		c.Control.Color = boolPtr(true)
	}
	if c.Control.Remove == nil {
		c.Control.Remove = boolPtr(true)
	}
	if c.Defaults.FillColor == "" {
		c.Defaults.FillColor = defaultFillColor
	}
	if c.Defaults.FillOpacity == nil {
		c.Defaults.FillOpacity = floatPtr(defaultFillOpacity)
	}
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// validPositions enumerates the corner anchors the control accepts
var validPositions = map[string]bool{
	"topright":    true,
	"topleft":     true,
	"bottomright": true,
	"bottomleft":  true,
}

// Validate reports configuration values the control would reject
func (c *Config) Validate() error {
	if !validPositions[c.Control.Position] {
		return fmt.Errorf("invalid control position %q (want topright, topleft, bottomright or bottomleft)", c.Control.Position)
	}
	if o := c.Defaults.FillOpacity; o != nil && (*o < 0 || *o > 1) {
		return fmt.Errorf("default fillOpacity %v out of range [0,1]", *o)
	}
	return nil
}

// IsUneditable reports whether an overlay identifier is configured as uneditable
func (c *Config) IsUneditable(identifier string) bool {
	for _, id := range c.UneditableOverlays {
		if id == identifier {
			return true
		}
	}
	return false
}
