package server

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/ironsheep/cardscan/internal/imaging"
)

// createCardFile writes a 640x480 PNG with a white card spanning
// (100,100)-(299,249) on a dark table and returns its path.
func createCardFile(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	card := image.Rect(100, 100, 300, 250)
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			if image.Pt(x, y).In(card) {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{40, 40, 40, 255})
			}
		}
	}

	path := filepath.Join(t.TempDir(), "table.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) *MCPResponse {
	t.Helper()
	params, _ := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil || out == nil {
		return resp
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("could not decode %s result: %v\n%s", name, err, text)
	}
	return resp
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var info imaging.FrameInfo
	resp := callTool(t, s, "image_load", map[string]interface{}{"path": path, "max_dimension": 320}, &info)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if info.SourceWidth != 640 || info.Width != 320 || !info.Scaled {
		t.Errorf("info = %+v", info)
	}
}

func TestHandleToolsCall_CardDetect(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var got struct {
		ID        string                    `json:"id"`
		Source    string                    `json:"source"`
		Cards     []detection.CardCandidate `json:"cards"`
		Evaluated []detection.CardCandidate `json:"evaluated"`
	}
	resp := callTool(t, s, "card_detect", map[string]interface{}{"path": path, "include_rejected": true}, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if got.ID == "" || got.Source != path {
		t.Errorf("report header = %q %q", got.ID, got.Source)
	}
	if len(got.Cards) != 1 {
		t.Fatalf("got %d cards, want 1", len(got.Cards))
	}
	if got.Cards[0].Area != 199*149 {
		t.Errorf("area = %f, want %d", got.Cards[0].Area, 199*149)
	}
	if got.Cards[0].Quad.Bounds() != image.Rect(100, 100, 300, 250) {
		t.Errorf("quad bounds = %v", got.Cards[0].Quad.Bounds())
	}
	if len(got.Evaluated) != 1 {
		t.Errorf("evaluated %d contours, want 1", len(got.Evaluated))
	}
}

func TestHandleToolsCall_ConfigOverride(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var got struct {
		Cards    []detection.CardCandidate `json:"cards"`
		Rejected map[string]int            `json:"rejected"`
	}
	args := map[string]interface{}{
		"path":   path,
		"config": map[string]interface{}{"min_area": 50000},
	}
	if resp := callTool(t, s, "card_detect", args, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if len(got.Cards) != 0 || got.Rejected["area_below_min"] != 1 {
		t.Errorf("override not applied: cards %d, rejected %v", len(got.Cards), got.Rejected)
	}

	// The override does not stick.
	got.Cards = nil
	if resp := callTool(t, s, "card_detect", map[string]interface{}{"path": path}, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if len(got.Cards) != 1 {
		t.Errorf("got %d cards after override call, want 1", len(got.Cards))
	}

	bad := map[string]interface{}{"path": path, "config": map[string]interface{}{"blur_kernel_size": 4}}
	if resp := callTool(t, s, "card_detect", bad, nil); resp.Error == nil {
		t.Error("invalid override should fail")
	}
	unknown := map[string]interface{}{"path": path, "config": map[string]interface{}{"canny": true}}
	if resp := callTool(t, s, "card_detect", unknown, nil); resp.Error == nil {
		t.Error("unknown override key should fail")
	}
}

func TestHandleToolsCall_CardContours(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var got struct {
		Width     int                     `json:"width"`
		Contours  []detection.Contour     `json:"contours"`
		Hierarchy []detection.ContourNode `json:"hierarchy"`
	}
	if resp := callTool(t, s, "card_contours", map[string]interface{}{"path": path}, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if got.Width != 640 || len(got.Contours) != 1 || len(got.Hierarchy) != 1 {
		t.Errorf("got width %d, %d contours, %d nodes", got.Width, len(got.Contours), len(got.Hierarchy))
	}
	if got.Hierarchy[0].Parent != detection.None {
		t.Errorf("root parent = %d, want None", got.Hierarchy[0].Parent)
	}
}

func TestHandleToolsCall_RenderedImages(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	for _, tool := range []string{"card_annotate", "card_mask", "card_binarize"} {
		t.Run(tool, func(t *testing.T) {
			var got ImageResult
			if resp := callTool(t, s, tool, map[string]interface{}{"path": path}, &got); resp.Error != nil {
				t.Fatalf("Unexpected error: %v", resp.Error)
			}
			if got.Width != 640 || got.Height != 480 {
				t.Errorf("size = %dx%d", got.Width, got.Height)
			}
			if got.ImageBase64 == "" || got.MimeType != "image/png" {
				t.Error("expected an inline PNG")
			}
		})
	}
}

func TestHandleToolsCall_OutputPath(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)
	outPath := filepath.Join(t.TempDir(), "mask.png")

	var got ImageResult
	args := map[string]interface{}{"path": path, "output_path": outPath}
	if resp := callTool(t, s, "card_mask", args, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if got.OutputPath != outPath || got.ImageBase64 != "" {
		t.Errorf("result = %+v", got)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if r, _, _, _ := img.At(200, 175).RGBA(); r>>8 != 255 {
		t.Errorf("card pixel masked out")
	}
	if r, _, _, _ := img.At(20, 20).RGBA(); r != 0 {
		t.Errorf("table pixel not masked")
	}
}

func TestHandleToolsCall_CardCrop(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var got imaging.CropResult
	if resp := callTool(t, s, "card_crop", map[string]interface{}{"path": path}, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if got.X != 100 || got.Y != 100 || got.Width != 200 || got.Height != 150 {
		t.Errorf("crop = %d,%d %dx%d, want 100,100 200x150", got.X, got.Y, got.Width, got.Height)
	}

	resp := callTool(t, s, "card_crop", map[string]interface{}{"path": path, "card": 2}, nil)
	if resp.Error == nil {
		t.Fatal("card 2 should be out of range")
	}
	if !strings.Contains(resp.Error.Data.(string), "out of range") {
		t.Errorf("error data = %v", resp.Error.Data)
	}
}

func TestHandleToolsCall_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
	}{
		{"missing file", "card_detect", map[string]interface{}{"path": "/nonexistent/table.png"}},
		{"missing path", "card_annotate", map[string]interface{}{}},
		{"unknown tool", "card_identify", map[string]interface{}{"path": "/x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, tt.tool, tt.args, nil)
			if resp.Error == nil {
				t.Fatal("expected an error")
			}
			if resp.Error.Code != -32000 {
				t.Errorf("code = %d, want -32000", resp.Error.Code)
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: json.RawMessage(`"nope"`)})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want invalid params", resp.Error)
	}
}

func TestHandleToolsCall_Reload(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var got struct {
		Cards []detection.CardCandidate `json:"cards"`
	}
	if resp := callTool(t, s, "card_detect", map[string]interface{}{"path": path}, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	blank := image.NewGray(image.Rect(0, 0, 640, 480))
	if err := imaging.SaveImage(blank, path); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got.Cards = nil
	if resp := callTool(t, s, "card_detect", map[string]interface{}{"path": path}, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if len(got.Cards) != 1 {
		t.Errorf("cached frame: got %d cards, want 1", len(got.Cards))
	}

	got.Cards = nil
	if resp := callTool(t, s, "card_detect", map[string]interface{}{"path": path, "reload": true}, &got); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if len(got.Cards) != 0 {
		t.Errorf("reloaded frame: got %d cards, want 0", len(got.Cards))
	}
}

func TestHandleToolsCall_MaskFill(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)
	outPath := filepath.Join(t.TempDir(), "mask.png")

	args := map[string]interface{}{"path": path, "output_path": outPath, "fill": "#00C800"}
	if resp := callTool(t, s, "card_mask", args, nil); resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	frame, err := imaging.LoadFrame(outPath, 0)
	if err != nil {
		t.Fatalf("output unreadable: %v", err)
	}
	if r, g, b, _ := frame.Color.At(20, 20).RGBA(); r != 0 || g>>8 != 200 || b != 0 {
		t.Errorf("table pixel = %d,%d,%d, want fill", r>>8, g>>8, b>>8)
	}

	bad := map[string]interface{}{"path": path, "fill": "chartreuse"}
	if resp := callTool(t, s, "card_mask", bad, nil); resp.Error == nil {
		t.Error("bad fill colour should fail")
	}
}
