// Package opencv traces contours with OpenCV through gocv.
//
// It exists as a cross-check for the pure-Go tracer in package detection and
// as an alternative backend on machines that have OpenCV installed. Builds
// without the withcv tag get a stub whose FindContours returns
// ErrUnavailable, so the rest of the module never needs cgo.
package opencv
