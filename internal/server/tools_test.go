package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"image_load",
		"card_detect",
		"card_contours",
		"card_annotate",
		"card_mask",
		"card_binarize",
		"card_crop",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("tool %s defined twice", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("got %d tools, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties should be a map")
			}
			if _, ok := props["path"]; !ok {
				t.Error("every tool takes a path")
			}

			required, ok := tool.InputSchema["required"].([]string)
			if !ok || len(required) != 1 || required[0] != "path" {
				t.Errorf("required = %v, want [path]", tool.InputSchema["required"])
			}
		})
	}
}

func TestToolDefinitions_ConfigKeysMatchConfig(t *testing.T) {
	// Every documented override must be a key Overlay accepts.
	props := configProperty()["properties"].(map[string]interface{})
	s := newTestServer(t)
	for key := range props {
		raw := []byte(`{"` + key + `": null}`)
		if _, err := s.cfg.Overlay(raw); err != nil {
			t.Errorf("config key %s rejected: %v", key, err)
		}
	}
}
