// Package imaging provides the raster stages of the card detector together
// with frame loading and output encoding.
//
// The detection stages work on *image.Gray rasters:
//
//   - Preprocess blurs a luminance raster and binarizes it (adaptive mean or
//     global threshold) into a 0/255 raster.
//   - Morph applies a rectangular opening or closing to a binary raster.
//
// Both take a *Buffers holding their scratch storage. A nil *Buffers is
// accepted and allocates per call; long-running callers keep one Buffers per
// goroutine and pass it every time.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive and Max is exclusive, as in image.Rectangle
//
// Rasters with a non-zero origin are accepted; stage outputs are addressed
// relative to their own bounds.
//
// # Frames
//
// A Frame pairs the decoded colour image with its gray working copy.
// LoadFrame honours EXIF orientation and can shrink large camera images
// before detection. ImageCache memoises frames by path and downscale limit
// and is safe for concurrent use.
//
// # Error Handling
//
// Nil or zero-sized rasters yield errors wrapping ErrEmptyRaster; rasters that
// must share dimensions but do not yield errors wrapping ErrSizeMismatch.
// Uniform inputs (all black, all white) are valid and never fail.
package imaging
