package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/ironsheep/cardscan/internal/pipeline"
	"github.com/urfave/cli/v2"
)

// writeTable saves a frame with one white card on a dark table.
func writeTable(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			v := uint8(40)
			if x >= 100 && x < 300 && y >= 100 && y < 250 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	path := filepath.Join(dir, "table.png")
	if err := imaging.SaveImage(img, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

// writeGlobalConfig writes a config that finds the synthetic card exactly.
func writeGlobalConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "cardscan.json")
	data := `{"threshold_mode": "global", "global_threshold": 128, "morph_op": "none"}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"cardscan", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestDetectCommand(t *testing.T) {
	dir := t.TempDir()
	img := writeTable(t, dir)
	cfg := writeGlobalConfig(t, dir)

	out, err := run(t, "--config", cfg, "detect", "--include-rejected", img)
	if err != nil {
		t.Fatalf("detect failed: %v\n%s", err, out)
	}
	var report pipeline.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("bad report: %v\n%s", err, out)
	}
	if len(report.Cards) != 1 || report.Cards[0].Area != 199*149 {
		t.Errorf("report cards = %+v", report.Cards)
	}
	if report.Source != img || len(report.Evaluated) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestDetectCommand_MissingImage(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "detect", filepath.Join(dir, "nope.png"))
	if err == nil {
		t.Fatal("missing image should fail")
	}
	var report pipeline.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("bad report: %v\n%s", err, out)
	}
	if report.Error == "" {
		t.Error("failed report should carry the error")
	}
}

func TestRenderCommands(t *testing.T) {
	dir := t.TempDir()
	img := writeTable(t, dir)
	cfg := writeGlobalConfig(t, dir)

	for _, cmd := range []string{"annotate", "mask", "binarize"} {
		t.Run(cmd, func(t *testing.T) {
			dst := filepath.Join(dir, cmd+".png")
			if out, err := run(t, "--config", cfg, cmd, "--out", dst, img); err != nil {
				t.Fatalf("%s failed: %v\n%s", cmd, err, out)
			}
			frame, err := imaging.LoadFrame(dst, 0)
			if err != nil {
				t.Fatalf("output unreadable: %v", err)
			}
			if frame.Bounds().Size() != image.Pt(640, 480) {
				t.Errorf("output size = %v", frame.Bounds().Size())
			}
		})
	}
}

func TestBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown preset", []string{"--preset", "hexagons", "detect", "x.png"}},
		{"unknown backend", []string{"--backend", "gpu", "detect", "x.png"}},
		{"bad log level", []string{"--log-level", "loud", "detect", "x.png"}},
		{"no images", []string{"detect"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardscan.log")
	log, err := newLogger("info", path)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	log.Infow("hello", "k", 1)
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "hello" {
		t.Errorf("entry = %v", entry)
	}
}
