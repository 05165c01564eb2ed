package server

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/ironsheep/cardscan/internal/pipeline"
	"github.com/pkg/errors"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "card_detect", "card_annotate").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Infow("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each detection tool:
//  1. Unmarshals arguments from JSON
//  2. Overlays the optional "config" object on the server's config
//  3. Loads the frame from cache
//  4. Runs the pipeline and shapes the result
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_load":
		return s.handleImageLoad(args)
	case "card_detect":
		return s.handleCardDetect(args)
	case "card_contours":
		return s.handleCardContours(args)
	case "card_annotate":
		return s.handleCardAnnotate(args)
	case "card_mask":
		return s.handleCardMask(args)
	case "card_binarize":
		return s.handleCardBinarize(args)
	case "card_crop":
		return s.handleCardCrop(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return errors.New("missing arguments")
	}
	return json.Unmarshal(args, v)
}

// === Frame Information ===

type imageLoadArgs struct {
	Path         string `json:"path"`
	MaxDimension *int   `json:"max_dimension"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	maxDim := s.cfg.MaxDimension
	if a.MaxDimension != nil {
		maxDim = *a.MaxDimension
	}
	return imaging.LoadFrameInfo(s.cache, a.Path, maxDim)
}

// === Detection ===

type detectArgs struct {
	Path   string          `json:"path"`
	Config json.RawMessage `json:"config"`
	Reload bool            `json:"reload"`
}

// pipelineFor returns the server pipeline, or a new one when the call
// carries config overrides.
func (s *Server) pipelineFor(raw json.RawMessage) (*pipeline.Pipeline, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return s.base, nil
	}
	cfg, err := s.cfg.Overlay(raw)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, s.log)
}

// load returns the cached frame for a.Path, decoding it again first when
// the caller asked for a reload.
func (s *Server) load(a detectArgs, p *pipeline.Pipeline) (*imaging.Frame, error) {
	if a.Reload {
		s.cache.Evict(a.Path)
	}
	return s.cache.Load(a.Path, p.Config().MaxDimension)
}

func (s *Server) detect(a detectArgs) (*pipeline.Pipeline, *imaging.Frame, *pipeline.Result, error) {
	if a.Path == "" {
		return nil, nil, nil, errors.New("path is required")
	}
	p, err := s.pipelineFor(a.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	frame, err := s.load(a, p)
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := p.Detect(s.scratch, frame.Gray)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, frame, res, nil
}

type cardDetectArgs struct {
	detectArgs
	IncludeRejected bool `json:"include_rejected"`
}

func (s *Server) handleCardDetect(args json.RawMessage) (interface{}, error) {
	var a cardDetectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	p, _, res, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}
	report := p.NewReport(a.Path, res)
	if a.IncludeRejected {
		report.IncludeEvaluated(res)
	}
	return report, nil
}

func (s *Server) handleCardContours(args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, _, res, err := s.detect(a)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// === Rendered Output ===

type renderArgs struct {
	detectArgs
	OutputPath string `json:"output_path"`
}

// ImageResult describes a rendered image. Exactly one of OutputPath and
// ImageBase64 is set.
type ImageResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Cards       int    `json:"cards"`
	OutputPath  string `json:"output_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

func emitImage(img image.Image, outputPath string, cards int) (*ImageResult, error) {
	out := &ImageResult{
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Cards:  cards,
	}
	if outputPath != "" {
		if err := imaging.SaveImage(img, outputPath); err != nil {
			return nil, err
		}
		out.OutputPath = outputPath
		return out, nil
	}
	encoded, err := imaging.EncodePNGBase64(img)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	out.ImageBase64 = encoded
	out.MimeType = "image/png"
	return out, nil
}

func (s *Server) handleCardAnnotate(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, frame, res, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}
	img, err := pipeline.Annotate(frame.Color, res)
	if err != nil {
		return nil, err
	}
	return emitImage(img, a.OutputPath, len(res.Cards))
}

type cardMaskArgs struct {
	renderArgs
	Fill string `json:"fill"`
}

func (s *Server) handleCardMask(args json.RawMessage) (interface{}, error) {
	var a cardMaskArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Fill == "" {
		a.Fill = "#000000"
	}
	fill, err := imaging.ParseHexColor(a.Fill)
	if err != nil {
		return nil, err
	}
	_, frame, res, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}
	img, err := pipeline.MaskWith(frame.Color, res, fill)
	if err != nil {
		return nil, err
	}
	return emitImage(img, a.OutputPath, len(res.Cards))
}

func (s *Server) handleCardBinarize(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	p, err := s.pipelineFor(a.Config)
	if err != nil {
		return nil, err
	}
	frame, err := s.load(a.detectArgs, p)
	if err != nil {
		return nil, err
	}
	bin, err := p.Binarize(s.scratch, frame.Gray)
	if err != nil {
		return nil, err
	}
	return emitImage(bin, a.OutputPath, 0)
}

type cardCropArgs struct {
	detectArgs
	Card  int     `json:"card"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleCardCrop(args json.RawMessage) (interface{}, error) {
	var a cardCropArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Card == 0 {
		a.Card = 1
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	_, frame, res, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}
	if a.Card < 1 || a.Card > len(res.Cards) {
		return nil, errors.Errorf("card %d out of range: %d cards detected", a.Card, len(res.Cards))
	}
	return imaging.Crop(frame.Color, res.Cards[a.Card-1].Quad.Bounds(), a.Scale)
}
