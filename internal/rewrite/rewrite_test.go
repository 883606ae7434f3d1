package rewrite

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mapcraft/leaflet-retrofit/internal/config"
	"github.com/mapcraft/leaflet-retrofit/internal/extractor"
	"github.com/mapcraft/leaflet-retrofit/internal/synth"
)

func fixtureDir(t *testing.T) (string, []byte) {
	t.Helper()
	original, err := os.ReadFile(filepath.Join("testdata", "folium_map.html"))
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), original, 0644); err != nil {
		t.Fatal(err)
	}
	return dir, original
}

func quietEngine(cfg *config.Config) *Engine {
	engine := New(cfg)
	engine.Out = io.Discard
	return engine
}

func listArtifacts(t *testing.T, dir string) (backups, logs []string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".backup_") {
			backups = append(backups, e.Name())
		}
		if strings.HasPrefix(e.Name(), "modification_log_") {
			logs = append(logs, e.Name())
		}
	}
	return backups, logs
}

func TestRunTransformsFixture(t *testing.T) {
	dir, original := fixtureDir(t)
	path := filepath.Join(dir, "index.html")

	result, err := quietEngine(config.DefaultConfig()).Run(path)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)

	for _, want := range []string{
		"L.Control.Appearance.js",
		"L.Control.Appearance.css",
		`"name": "OpenStreetMap",`,
		`"name": "Alunite >0.5",`,
		`"color": "#FF00FF",`,
		`"opacity": 0.6,`,
		`"name": "Quartz >0.5",`,
		"var appearanceControl = L.control.appearance(",
		"// topo.addTo(map_d2a376f3); // Commented out - managed by appearance control",
		"// alunite_hi.addTo(map_d2a376f3); // Commented out - managed by appearance control",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(text, "L.control.layers(") {
		t.Error("old control still present in output")
	}
	if !strings.Contains(text, "\n    osm.addTo(map_d2a376f3);") {
		t.Error("first base layer registration did not survive")
	}

	// Quartz's styler uses computed expressions; the defaults take over
	quartz := between(text, "var quartz_hi = L.geoJson(", ");")
	if !strings.Contains(quartz, `"color": "#000000",`) || !strings.Contains(quartz, `"opacity": 1,`) {
		t.Errorf("quartz options not defaulted: %q", quartz)
	}

	// Backup is byte-identical to the pre-transform document
	backup, err := os.ReadFile(result.BackupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backup) != string(original) {
		t.Error("backup differs from the original document")
	}

	logContent, err := os.ReadFile(result.LogPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.HasPrefix(string(logContent), "Leaflet.Control.Appearance Modification Log\n"+strings.Repeat("=", 50)) {
		t.Error("log header malformed")
	}
	if !strings.Contains(string(logContent), "Created backup:") {
		t.Error("log does not record the backup")
	}
	if len(result.Gaps) == 0 {
		t.Error("quartz resolution gap not reported")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	dir, _ := fixtureDir(t)
	path := filepath.Join(dir, "index.html")
	cfg := config.DefaultConfig()

	if _, err := quietEngine(cfg).Run(path); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := quietEngine(cfg).Run(path); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("second run changed an already-transformed document")
	}
}

func TestRunDryRun(t *testing.T) {
	dir, original := fixtureDir(t)
	path := filepath.Join(dir, "index.html")

	engine := quietEngine(config.DefaultConfig())
	engine.DryRun = true
	result, err := engine.Run(path)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if len(result.Changes) == 0 {
		t.Error("dry run reported no planned changes")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(original) {
		t.Error("dry run modified the document")
	}
	backups, logs := listArtifacts(t, dir)
	if len(backups) != 0 || len(logs) != 0 {
		t.Errorf("dry run wrote artifacts: backups=%v logs=%v", backups, logs)
	}
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := quietEngine(config.DefaultConfig()).Run(filepath.Join(dir, "index.html"))

	var missing *MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want MissingInputError", err)
	}
}

func TestRunRejectsUnrecognizedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	doc := []byte("<html><body><p>Not a map at all.</p></body></html>")
	if err := os.WriteFile(path, doc, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := quietEngine(config.DefaultConfig()).Run(path)
	var mismatch *StructureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want StructureMismatchError", err)
	}

	// Abort happens before any mutation
	after, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if string(after) != string(doc) {
		t.Error("rejected document was modified")
	}
	backups, logs := listArtifacts(t, dir)
	if len(backups) != 0 || len(logs) != 0 {
		t.Errorf("rejected run wrote artifacts: backups=%v logs=%v", backups, logs)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Control.Position = "middle"

	_, err := quietEngine(cfg).Run("index.html")
	if err == nil || !strings.Contains(err.Error(), "configuration") {
		t.Fatalf("error = %v, want a configuration error", err)
	}
}

func TestApplyEditsDescending(t *testing.T) {
	content := []byte("0123456789")
	edits := []synth.Edit{
		{Span: extractor.Span{Start: 2, End: 4}, Text: "AB"},
		{Span: extractor.Span{Start: 7, End: 7}, Text: "X"},
	}
	out, err := applyEdits(content, edits)
	if err != nil {
		t.Fatalf("applyEdits failed: %v", err)
	}
	if string(out) != "01AB456X789" {
		t.Errorf("applyEdits = %q", out)
	}
}

func TestApplyEditsOverlap(t *testing.T) {
	content := []byte("0123456789")
	edits := []synth.Edit{
		{Span: extractor.Span{Start: 2, End: 6}, Text: "A"},
		{Span: extractor.Span{Start: 4, End: 8}, Text: "B"},
	}
	if _, err := applyEdits(content, edits); err == nil {
		t.Fatal("overlapping edits accepted")
	}
}

func TestApplyEditsOutOfBounds(t *testing.T) {
	content := []byte("short")
	edits := []synth.Edit{{Span: extractor.Span{Start: 3, End: 99}, Text: "x"}}
	if _, err := applyEdits(content, edits); err == nil {
		t.Fatal("out-of-bounds edit accepted")
	}
}

func TestWriteFailureMessage(t *testing.T) {
	inner := errors.New("disk full")
	err := &WriteFailure{Stage: "output", Path: "index.html", State: "backup written, output not written; original document intact", Err: inner}
	if !strings.Contains(err.Error(), "disk full") || !strings.Contains(err.Error(), "original document intact") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("WriteFailure does not unwrap to the underlying error")
	}
}

func between(s, after, before string) string {
	i := strings.Index(s, after)
	if i < 0 {
		return ""
	}
	rest := s[i+len(after):]
	j := strings.Index(rest, before)
	if j < 0 {
		return rest
	}
	return rest[:j]
}
