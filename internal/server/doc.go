// Package server implements the MCP (Model Context Protocol) server for the
// card detector.
//
// This package provides a JSON-RPC 2.0 server that exposes card detection
// through the MCP protocol, so an assistant can look at a table photo and
// ask where the cards are.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - image_load: Load image and get metadata
//   - card_detect: Accepted cards with corner quads
//   - card_contours: Every contour, its hierarchy and verdict
//   - card_annotate: Overlay of contours and cards
//   - card_mask: Photo with everything but the cards blacked out
//   - card_binarize: The binary image fed to the contour stage
//   - card_crop: One card's bounding box as PNG
//
// Every detection tool takes an optional "config" object whose keys
// override the server's configuration for that call only.
//
// # Image Caching
//
// Decoded frames are cached by path and downscale limit for the lifetime
// of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
package server
