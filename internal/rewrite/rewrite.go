package rewrite

// =============================================================================
// REWRITE PHILOSOPHY: DECIDE EVERYTHING, THEN TOUCH THE DISK ONCE
// =============================================================================
//
// The engine runs the whole pipeline against a single immutable snapshot of
// the document: extract, resolve, build, validate, gate, synthesize. Only
// when every edit is known does it write anything - backup first, then the
// rewritten document, then the change log.
//
// Edits are captured as spans against the snapshot and applied in descending
// offset order, so earlier offsets stay valid without any re-parsing.
//
// Every fatal condition up to and including the policy gate leaves the
// filesystem byte-for-byte untouched. A no-op on an unrecognized document is
// safer than a partial rewrite.
// =============================================================================

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/extractor"
	"github.com/mapcraft/leaflet-retrofit/internal/model"
	"github.com/mapcraft/leaflet-retrofit/internal/policy"
	"github.com/mapcraft/leaflet-retrofit/internal/resolver"
	"github.com/mapcraft/leaflet-retrofit/internal/synth"
	"github.com/mapcraft/leaflet-retrofit/internal/validator"
)

// Engine orchestrates extraction through synthesis and applies the result
type Engine struct {
	Config *config.Config

	// DryRun plans and reports every edit but mutates nothing
	DryRun bool

	// Verbose adds per-layer detail to the progress output
	Verbose bool

	// Out receives progress lines; defaults to os.Stdout
	Out io.Writer

	// Optional extractor override (for tests)
	extractorFactory func() *extractor.Extractor
}

// TransformResult is the output of a full run
type TransformResult struct {
	Path       string         `json:"path"`
	BackupPath string         `json:"backup_path,omitempty"`
	LogPath    string         `json:"log_path,omitempty"`
	Changes    []string       `json:"changes"`
	Gaps       []resolver.Gap `json:"gaps,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`

	// Model is the layer model the run was synthesized from
	Model *model.Model `json:"model"`
}

// New creates an Engine with the given configuration
func New(cfg *config.Config) *Engine {
	return &Engine{
		Config: cfg,
		Out:    os.Stdout,
	}
}

func (en *Engine) newExtractor() *extractor.Extractor {
	if en.extractorFactory != nil {
		return en.extractorFactory()
	}
	return extractor.New()
}

func (en *Engine) printf(format string, args ...interface{}) {
	fmt.Fprintf(en.Out, format+"\n", args...)
}

// Run executes the full pipeline against the document at path
func (en *Engine) Run(path string) (*TransformResult, error) {
	if err := en.Config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingInputError{Path: path}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	en.printf("Loaded %s (%d characters)", path, len(content))

	result := &TransformResult{
		Path:      path,
		Timestamp: time.Now(),
	}

	// Extraction and resolution, all against the one snapshot
	facts, err := en.newExtractor().ExtractSource(path, content)
	if err != nil {
		return nil, fmt.Errorf("extracting layers: %w", err)
	}
	en.printf("Found %d tile layers and %d GeoJSON layers", len(facts.TileLayers), len(facts.GeoJSONLayers))
	for _, skipped := range facts.Skipped {
		en.printf("Skipped unrecognized layer declaration: %s", skipped)
	}

	overlayIDs := make([]string, 0, len(facts.GeoJSONLayers))
	for _, decl := range facts.GeoJSONLayers {
		overlayIDs = append(overlayIDs, decl.Identifier)
	}
	resolutions, gaps := resolver.Resolve(content, overlayIDs)
	result.Gaps = gaps

	m, err := model.Build(facts, resolutions, gaps, en.Config)
	if err != nil {
		return nil, &StructureMismatchError{Violations: []policy.Violation{{
			Rule:     "duplicate-identifier",
			Severity: "error",
			Message:  err.Error(),
		}}}
	}
	result.Model = m

	// Contract guard: a model the schema rejects is a pipeline bug, not a
	// document problem
	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("loading model schema: %w", err)
	}
	if err := v.Validate(m); err != nil {
		return nil, fmt.Errorf("layer model failed contract validation: %w", err)
	}

	// Structural gate: refuse documents outside the known shape before
	// anything is mutated
	engine, err := policy.New()
	if err != nil {
		return nil, fmt.Errorf("loading structure policy: %w", err)
	}
	policyResult, err := engine.Evaluate(m)
	if err != nil {
		return nil, fmt.Errorf("evaluating structure policy: %w", err)
	}
	if errs := policyResult.Errors(); len(errs) > 0 {
		return nil, &StructureMismatchError{Violations: errs}
	}
	if en.Verbose {
		for _, violation := range policyResult.Violations {
			en.printf("%s", violation)
		}
	}

	plan := synth.New(en.Config).Synthesize(content, facts, m)
	result.Changes = append(result.Changes, plan.Notes...)
	for _, gap := range gaps {
		result.Changes = append(result.Changes, gap.String())
	}

	rewritten, err := applyEdits(content, plan.Edits)
	if err != nil {
		return nil, fmt.Errorf("applying edits: %w", err)
	}

	if en.DryRun {
		en.printf("Dry run: %d edits planned, nothing written", len(plan.Edits))
		for _, note := range plan.Notes {
			en.printf("  %s", note)
		}
		return result, nil
	}

	if err := en.writeArtifacts(path, content, rewritten, result); err != nil {
		return result, err
	}

	for _, note := range plan.Notes {
		en.printf("%s", note)
	}
	return result, nil
}

// writeArtifacts writes backup, output and change log, in that order. The
// backup lands on disk before the original is overwritten.
func (en *Engine) writeArtifacts(path string, original, rewritten []byte, result *TransformResult) error {
	stamp := result.Timestamp.Format("20060102_150405")
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	backupPath := filepath.Join(dir, fmt.Sprintf("%s.backup_%s%s", stem, stamp, ext))
	if err := os.WriteFile(backupPath, original, mode); err != nil {
		return &WriteFailure{
			Stage: "backup", Path: backupPath, Err: err,
			State: "nothing written; original document untouched",
		}
	}
	result.BackupPath = backupPath
	result.Changes = append([]string{fmt.Sprintf("Created backup: %s", backupPath)}, result.Changes...)
	en.printf("Created backup: %s", backupPath)

	if err := writeFileAtomic(path, rewritten, mode); err != nil {
		return &WriteFailure{
			Stage: "output", Path: path, Err: err,
			State: "backup written, output not written; original document intact",
		}
	}
	en.printf("Saved modified content to %s", path)

	logPath := filepath.Join(dir, fmt.Sprintf("modification_log_%s.txt", stamp))
	if err := writeChangeLog(logPath, result); err != nil {
		return &WriteFailure{
			Stage: "log", Path: logPath, Err: err,
			State: "backup and output written, log not written",
		}
	}
	result.LogPath = logPath
	en.printf("Log saved to: %s", logPath)

	return nil
}

// applyEdits applies span substitutions in descending offset order against
// one snapshot, so every span keeps its meaning while the text shifts
func applyEdits(content []byte, edits []synth.Edit) ([]byte, error) {
	sorted := make([]synth.Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Span.Start > sorted[j].Span.Start
	})

	// Overlapping spans would mean two edits fighting over the same text;
	// that is always a synthesis bug
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Span.End > sorted[i-1].Span.Start {
			return nil, fmt.Errorf("overlapping edits at offsets %d and %d", sorted[i].Span.Start, sorted[i-1].Span.Start)
		}
	}

	out := make([]byte, len(content))
	copy(out, content)
	for _, e := range sorted {
		if e.Span.Start < 0 || e.Span.End > len(content) || e.Span.Start > e.Span.End {
			return nil, fmt.Errorf("edit span [%d,%d) out of bounds", e.Span.Start, e.Span.End)
		}
		var next []byte
		next = append(next, out[:e.Span.Start]...)
		next = append(next, e.Text...)
		next = append(next, out[e.Span.End:]...)
		out = next
	}
	return out, nil
}

// writeFileAtomic writes via a temp file and rename so a failed write never
// leaves a half-rewritten document at path
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".retrofit-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// writeChangeLog writes the run's change descriptions, one line per logical
// change, under a timestamped header
func writeChangeLog(path string, result *TransformResult) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	fmt.Fprintln(f, "Leaflet.Control.Appearance Modification Log")
	fmt.Fprintln(f, strings.Repeat("=", 50))
	fmt.Fprintf(f, "Run at: %s\n\n", result.Timestamp.Format(time.RFC3339))
	for _, change := range result.Changes {
		fmt.Fprintln(f, change)
	}
	return f.Sync()
}
