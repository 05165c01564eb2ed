// Package pipeline wires the card detector stages together.
//
// A Pipeline is built from a validated Config and runs, for each frame:
//
//	gray -> Preprocess (blur + threshold) -> Morph -> FindContours -> Evaluate
//
// The raster stages write into a caller-owned Scratch so a long-running
// worker allocates its buffers once. Pipeline itself holds no mutable state.
//
// # Backends
//
// Contours come from the pure-Go tracer in package detection unless the
// config selects the "opencv" backend, which needs a build with the withcv
// tag and a system OpenCV.
//
// # Output
//
// Result holds every contour, the containment forest and a verdict for each
// contour. Annotate and Mask render a Result over the colour frame; Report
// is the compact JSON summary.
package pipeline
