package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

// configProperty documents the per-call overrides. Keys match the JSON
// config file; absent keys keep the server's value.
func configProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Optional overrides of the detection config for this call",
		"properties": map[string]interface{}{
			"blur_kernel_size": map[string]interface{}{
				"type":        "integer",
				"description": "Gaussian kernel side, odd and >= 3. Default 5",
			},
			"threshold_mode": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"adaptive", "global"},
				"description": "Binarization method. Default adaptive",
			},
			"adaptive_block_size": map[string]interface{}{
				"type":        "integer",
				"description": "Adaptive neighbourhood side, odd and >= 3. Default 15",
			},
			"adaptive_constant": map[string]interface{}{
				"type":        "integer",
				"description": "Subtracted from the neighbourhood mean. Default 8",
			},
			"global_threshold": map[string]interface{}{
				"type":        "integer",
				"description": "Fixed cutoff for global mode, 0-255. Default 200",
			},
			"morph_op": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"none", "open", "close"},
				"description": "Morphological filter. Default open",
			},
			"structuring_element_size": map[string]interface{}{
				"type":        "integer",
				"description": "Side of the square structuring element. Default 5",
			},
			"min_area": map[string]interface{}{
				"type":        "number",
				"description": "Smallest accepted contour area in square pixels. Default 25000",
			},
			"max_area": map[string]interface{}{
				"type":        []string{"number", "string"},
				"description": "Largest accepted contour area, or \"unbounded\". Default 120000",
			},
			"approx_tolerance": map[string]interface{}{
				"type":        "number",
				"description": "Polygon simplification tolerance as a fraction of the perimeter. Default 0.01",
			},
			"require_quad": map[string]interface{}{
				"type":        "boolean",
				"description": "Accept only contours that simplify to 4 vertices",
			},
			"require_no_parent_card": map[string]interface{}{
				"type":        "boolean",
				"description": "Reject contours directly inside an accepted card",
			},
			"min_children": map[string]interface{}{
				"type":        "integer",
				"description": "Minimum number of direct child contours",
			},
			"require_leaf": map[string]interface{}{
				"type":        "boolean",
				"description": "Accept only contours without children",
			},
			"max_dimension": map[string]interface{}{
				"type":        "integer",
				"description": "Downscale frames to fit this box before detection. 0 keeps full size",
			},
			"backend": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"native", "opencv"},
				"description": "Contour extractor. opencv needs a withcv build",
			},
		},
	}
}

func reloadProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "Decode the file again instead of using the cached frame (default: false)",
	}
}

func outputPathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Optional file to write instead of returning base64 PNG. The extension picks the format",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_load",
			Description: "Load an image file and return its size and format, both as stored and as the detector sees it after downscaling.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"max_dimension": map[string]interface{}{
						"type":        "integer",
						"description": "Override the configured downscale limit",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "card_detect",
			Description: "Find playing cards in a photo. Returns each accepted card's corner quad, area and vertex count, in ascending area order, plus counts of rejected contours by reason.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty(),
					"config": configProperty(),
					"reload": reloadProperty(),
					"include_rejected": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return the verdict for every contour",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "card_contours",
			Description: "Return every traced contour with its containment hierarchy and classification. Large output; use it to debug why a card was missed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty(),
					"config": configProperty(),
					"reload": reloadProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "card_annotate",
			Description: "Draw all contours, and each detected card's outline, corner quad and bounds with a #n label, over the photo.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":        pathProperty(),
					"config":      configProperty(),
					"reload":      reloadProperty(),
					"output_path": outputPathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "card_mask",
			Description: "Black out everything outside the detected card quads.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":        pathProperty(),
					"config":      configProperty(),
					"reload":      reloadProperty(),
					"output_path": outputPathProperty(),
					"fill": map[string]interface{}{
						"type":        "string",
						"description": "Hex colour for everything outside the cards, e.g. \"#00FF00\" (default: black)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "card_binarize",
			Description: "Return the binary image the contour stage sees, after blur, threshold and morphology. Use it to tune the threshold settings.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":        pathProperty(),
					"config":      configProperty(),
					"reload":      reloadProperty(),
					"output_path": outputPathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "card_crop",
			Description: "Crop the bounding box of one detected card and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty(),
					"config": configProperty(),
					"reload": reloadProperty(),
					"card": map[string]interface{}{
						"type":        "integer",
						"description": "1-based card number, matching the #n labels of card_annotate. Default 1",
						"default":     1,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
