package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Frame is one decoded camera image together with its single-channel working
// copy. Color and Gray always have the same dimensions, both anchored at the
// origin.
type Frame struct {
	// Color is the source frame as decoded (after orientation and downscale).
	Color image.Image

	// Gray is the luminance raster fed to the detection stages.
	Gray *image.Gray
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return f.Gray.Bounds()
}

// NewFrame builds a Frame from an already decoded image. Gray inputs are
// copied as is; colour inputs are converted with bild's luminance weights.
func NewFrame(img image.Image) (*Frame, error) {
	if err := CheckImage(img); err != nil {
		return nil, err
	}
	if img.Bounds().Min != (image.Point{}) {
		img = imaging.Clone(img)
	}

	var gray *image.Gray
	switch src := img.(type) {
	case *image.Gray:
		gray = CloneGray(src)
	default:
		gray = grayFromRGBA(effect.Grayscale(img))
	}
	return &Frame{Color: img, Gray: gray}, nil
}

// grayFromRGBA keeps one channel of an image whose channels are already
// equal, as effect.Grayscale produces.
func grayFromRGBA(rgba *image.RGBA) *image.Gray {
	b := rgba.Bounds()
	gray := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+4*b.Dx()]
		dst := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[4*x]
		}
	}
	return gray
}

// ImageCache provides thread-safe caching of decoded frames to avoid redundant
// disk reads and conversions.
//
// Entries are keyed by path and downscale limit, so the same file loaded with
// two different limits is cached twice.
//
// # Memory Management
//
// Cached frames remain in memory until explicitly removed via Evict() or
// Clear(). A frame holds the colour image and its gray copy, roughly five
// bytes per pixel for typical camera JPEGs.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	frame, err := cache.Load("/path/to/table.jpg", 1280)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Use frame.Gray...
//	cache.Evict("/path/to/table.jpg") // Optional: free memory
type ImageCache struct {
	mu     sync.RWMutex
	frames map[cacheKey]*Frame
}

type cacheKey struct {
	path   string
	maxDim int
}

// NewImageCache creates and initializes a new empty frame cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		frames: make(map[cacheKey]*Frame),
	}
}

// Load retrieves a frame from the cache or decodes it from disk.
//
// Parameters:
//   - path: File path to the image. Supported formats are PNG, JPEG and GIF.
//   - maxDim: When positive, frames whose width or height exceeds it are
//     scaled down to fit inside a maxDim x maxDim box, preserving aspect.
//
// The returned frame is shared between callers and must not be modified.
func (c *ImageCache) Load(path string, maxDim int) (*Frame, error) {
	key := cacheKey{path: path, maxDim: maxDim}

	c.mu.RLock()
	if f, ok := c.frames[key]; ok {
		c.mu.RUnlock()
		return f, nil
	}
	c.mu.RUnlock()

	f, err := LoadFrame(path, maxDim)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.frames[key] = f
	c.mu.Unlock()

	return f, nil
}

// Clear removes all frames from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[cacheKey]*Frame)
	c.mu.Unlock()
}

// Evict removes every cached frame for path, whatever downscale limit it
// was loaded with.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	for k := range c.frames {
		if k.path == path {
			delete(c.frames, k)
		}
	}
	c.mu.Unlock()
}

// Len reports the number of cached frames.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// LoadFrame decodes the image at path, applies its EXIF orientation and, when
// maxDim is positive, shrinks it to fit within maxDim x maxDim.
func LoadFrame(path string, maxDim int) (*Frame, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", path)
	}
	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	return NewFrame(img)
}

// FrameInfo contains metadata about an image file and the frame the detector
// will actually see.
type FrameInfo struct {
	// Width is the working frame width in pixels (after orientation and
	// downscale).
	Width int `json:"width"`

	// Height is the working frame height in pixels.
	Height int `json:"height"`

	// SourceWidth and SourceHeight are the decoded file dimensions before
	// orientation correction and downscale.
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`

	// Format is the detected image format: "png", "jpeg", "gif", or "unknown".
	// Detection is based on file extension, not file contents.
	Format string `json:"format"`

	// Scaled is true when the frame was downscaled to honour max_dimension.
	Scaled bool `json:"scaled"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadFrameInfo loads the frame through cache and describes it.
func LoadFrameInfo(cache *ImageCache, path string, maxDim int) (*FrameInfo, error) {
	frame, err := cache.Load(path, maxDim)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	srcW, srcH, err := decodeSize(path)
	if err != nil {
		return nil, err
	}

	b := frame.Bounds()
	long := srcW
	if srcH > long {
		long = srcH
	}
	return &FrameInfo{
		Width:         b.Dx(),
		Height:        b.Dy(),
		SourceWidth:   srcW,
		SourceHeight:  srcH,
		Format:        FormatFromExt(path),
		Scaled:        maxDim > 0 && long > maxDim,
		FileSizeBytes: stat.Size(),
	}, nil
}

func decodeSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// FormatFromExt maps a file extension to "png", "jpeg", "gif" or "unknown".
func FormatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	}
	return "unknown"
}

// IsImagePath reports whether path has an extension LoadFrame can decode.
func IsImagePath(path string) bool {
	return FormatFromExt(path) != "unknown"
}
