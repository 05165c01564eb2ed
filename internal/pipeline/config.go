package pipeline

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Backend selects the contour extractor.
type Backend string

const (
	// BackendNative uses the pure-Go Suzuki-Abe tracer.
	BackendNative Backend = "native"

	// BackendOpenCV uses cv::findContours; requires a withcv build.
	BackendOpenCV Backend = "opencv"
)

// AreaBound is an upper area limit that may be unbounded. It encodes in
// JSON as a number or the string "unbounded".
type AreaBound float64

// Unbounded is an AreaBound with no limit.
var Unbounded = AreaBound(math.Inf(1))

// IsUnbounded reports whether a is +Inf.
func (a AreaBound) IsUnbounded() bool {
	return math.IsInf(float64(a), 1)
}

// MarshalJSON implements json.Marshaler.
func (a AreaBound) MarshalJSON() ([]byte, error) {
	if a.IsUnbounded() {
		return []byte(`"unbounded"`), nil
	}
	return json.Marshal(float64(a))
}

// UnmarshalJSON accepts a number, "unbounded" or null.
func (a *AreaBound) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*a = Unbounded
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.EqualFold(s, "unbounded") {
			*a = Unbounded
			return nil
		}
		return errors.Errorf("max_area: want a number or \"unbounded\", got %q", s)
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.Wrap(err, "max_area")
	}
	*a = AreaBound(f)
	return nil
}

// Config fields. Names match the JSON keys.
const (
	KeyBlurKernelSize         = "blur_kernel_size"
	KeyThresholdMode          = "threshold_mode"
	KeyAdaptiveBlockSize      = "adaptive_block_size"
	KeyAdaptiveConstant       = "adaptive_constant"
	KeyGlobalThreshold        = "global_threshold"
	KeyMorphOp                = "morph_op"
	KeyStructuringElementSize = "structuring_element_size"
	KeyMinArea                = "min_area"
	KeyMaxArea                = "max_area"
	KeyApproxTolerance        = "approx_tolerance"
	KeyMinChildren            = "min_children"
	KeyMaxDimension           = "max_dimension"
	KeyBackend                = "backend"
)

// Default values.
const (
	defaultBlurKernelSize         = 5
	defaultAdaptiveBlockSize      = 15
	defaultAdaptiveConstant       = 8
	defaultGlobalThreshold        = 200
	defaultStructuringElementSize = 5
	defaultMinArea                = 25000
	defaultMaxArea                = 120000
	defaultApproxTolerance        = 0.01
	defaultBackend                = BackendNative
)

// Config holds every tunable of the detection pipeline.
type Config struct {
	BlurKernelSize    int                   `json:"blur_kernel_size"`
	ThresholdMode     imaging.ThresholdMode `json:"threshold_mode"`
	AdaptiveBlockSize int                   `json:"adaptive_block_size"`
	AdaptiveConstant  int                   `json:"adaptive_constant"`
	GlobalThreshold   int                   `json:"global_threshold"`

	MorphOp                imaging.MorphOp `json:"morph_op"`
	StructuringElementSize int             `json:"structuring_element_size"`

	MinArea             float64   `json:"min_area"`
	MaxArea             AreaBound `json:"max_area"`
	ApproxTolerance     float64   `json:"approx_tolerance"`
	RequireQuad         bool      `json:"require_quad"`
	RequireNoParentCard bool      `json:"require_no_parent_card"`
	MinChildren         int       `json:"min_children"`
	RequireLeaf         bool      `json:"require_leaf"`

	// MaxDimension, when positive, shrinks loaded frames to fit a
	// MaxDimension x MaxDimension box before detection.
	MaxDimension int `json:"max_dimension"`

	Backend Backend `json:"backend"`
}

// DefaultConfig is the still-image card finder: adaptive threshold, 5x5
// opening, card-sized quadrilaterals that are not nested in another card.
func DefaultConfig() Config {
	return Config{
		BlurKernelSize:         defaultBlurKernelSize,
		ThresholdMode:          imaging.ThresholdAdaptive,
		AdaptiveBlockSize:      defaultAdaptiveBlockSize,
		AdaptiveConstant:       defaultAdaptiveConstant,
		GlobalThreshold:        defaultGlobalThreshold,
		MorphOp:                imaging.MorphOpen,
		StructuringElementSize: defaultStructuringElementSize,
		MinArea:                defaultMinArea,
		MaxArea:                defaultMaxArea,
		ApproxTolerance:        defaultApproxTolerance,
		RequireQuad:            true,
		RequireNoParentCard:    true,
		Backend:                defaultBackend,
	}
}

// LeafConfig is the live-preview variant: every innermost contour of at
// least 100 square pixels, whatever its shape.
func LeafConfig() Config {
	c := DefaultConfig()
	c.MinArea = 100
	c.MaxArea = Unbounded
	c.RequireQuad = false
	c.RequireNoParentCard = false
	c.RequireLeaf = true
	return c
}

// Preset returns the named configuration: "cards" (DefaultConfig) or
// "leaves" (LeafConfig).
func Preset(name string) (Config, error) {
	switch strings.ToLower(name) {
	case "", "cards":
		return DefaultConfig(), nil
	case "leaves":
		return LeafConfig(), nil
	}
	return Config{}, errors.Errorf("unknown preset %q (want cards or leaves)", name)
}

// Overlay decodes a JSON object onto a copy of c. Keys absent from data keep
// their value from c; unknown keys are an error.
func (c Config) Overlay(data []byte) (Config, error) {
	out := c
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return c, errors.Wrap(err, "could not decode config")
	}
	return out, nil
}

// LoadConfig reads a JSON config file and overlays it on base.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "could not read config %s", path)
	}
	c, err := base.Overlay(data)
	if err != nil {
		return base, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// Validate fills unset fields with defaults, logging each one, and returns
// every remaining invalid field as a combined error.
func (c *Config) Validate(log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	defaulted := func(name string, def interface{}) {
		log.Infow(name+" bad or unset, defaulting", name, def)
	}

	if c.BlurKernelSize == 0 {
		defaulted(KeyBlurKernelSize, defaultBlurKernelSize)
		c.BlurKernelSize = defaultBlurKernelSize
	}
	if c.AdaptiveBlockSize == 0 {
		defaulted(KeyAdaptiveBlockSize, defaultAdaptiveBlockSize)
		c.AdaptiveBlockSize = defaultAdaptiveBlockSize
	}
	if c.StructuringElementSize == 0 {
		defaulted(KeyStructuringElementSize, defaultStructuringElementSize)
		c.StructuringElementSize = defaultStructuringElementSize
	}
	if c.MaxArea == 0 {
		defaulted(KeyMaxArea, defaultMaxArea)
		c.MaxArea = defaultMaxArea
	}
	if c.ApproxTolerance == 0 {
		defaulted(KeyApproxTolerance, defaultApproxTolerance)
		c.ApproxTolerance = defaultApproxTolerance
	}
	if c.Backend == "" {
		defaulted(KeyBackend, defaultBackend)
		c.Backend = defaultBackend
	}

	var err error
	invalid := func(name string, format string, args ...interface{}) {
		err = multierr.Append(err, errors.Errorf(name+": "+format, args...))
	}

	if c.BlurKernelSize < 3 || c.BlurKernelSize%2 == 0 {
		invalid(KeyBlurKernelSize, "must be odd and >= 3, got %d", c.BlurKernelSize)
	}
	if c.ThresholdMode != imaging.ThresholdAdaptive && c.ThresholdMode != imaging.ThresholdGlobal {
		invalid(KeyThresholdMode, "unknown mode %d", int(c.ThresholdMode))
	}
	if c.AdaptiveBlockSize < 3 || c.AdaptiveBlockSize%2 == 0 {
		invalid(KeyAdaptiveBlockSize, "must be odd and >= 3, got %d", c.AdaptiveBlockSize)
	}
	if c.AdaptiveConstant < -255 || c.AdaptiveConstant > 255 {
		invalid(KeyAdaptiveConstant, "must be within [-255, 255], got %d", c.AdaptiveConstant)
	}
	if c.GlobalThreshold < 0 || c.GlobalThreshold > 255 {
		invalid(KeyGlobalThreshold, "must be within [0, 255], got %d", c.GlobalThreshold)
	}
	if c.MorphOp < imaging.MorphNone || c.MorphOp > imaging.MorphClose {
		invalid(KeyMorphOp, "unknown operation %d", int(c.MorphOp))
	}
	if c.StructuringElementSize < 1 {
		invalid(KeyStructuringElementSize, "must be positive, got %d", c.StructuringElementSize)
	}
	if c.MinArea < 0 || math.IsNaN(c.MinArea) {
		invalid(KeyMinArea, "must be non-negative, got %v", c.MinArea)
	}
	if math.IsNaN(float64(c.MaxArea)) || float64(c.MaxArea) < c.MinArea {
		invalid(KeyMaxArea, "must be >= min_area (%v), got %v", c.MinArea, float64(c.MaxArea))
	}
	if c.ApproxTolerance < 0 || c.ApproxTolerance >= 1 {
		invalid(KeyApproxTolerance, "must be within (0, 1), got %v", c.ApproxTolerance)
	}
	if c.MinChildren < 0 {
		invalid(KeyMinChildren, "must be non-negative, got %d", c.MinChildren)
	}
	if c.MaxDimension < 0 {
		invalid(KeyMaxDimension, "must be non-negative, got %d", c.MaxDimension)
	}
	if c.Backend != BackendNative && c.Backend != BackendOpenCV {
		invalid(KeyBackend, "unknown backend %q", c.Backend)
	}
	return err
}

// PreprocessOptions returns the options for imaging.Preprocess.
func (c Config) PreprocessOptions() imaging.PreprocessOptions {
	return imaging.PreprocessOptions{
		BlurKernelSize: c.BlurKernelSize,
		Mode:           c.ThresholdMode,
		BlockSize:      c.AdaptiveBlockSize,
		Constant:       c.AdaptiveConstant,
		Threshold:      uint8(c.GlobalThreshold),
	}
}

// Rules returns the classifier rules.
func (c Config) Rules() detection.Rules {
	return detection.Rules{
		MinArea:             c.MinArea,
		MaxArea:             float64(c.MaxArea),
		ApproxTolerance:     c.ApproxTolerance,
		RequireQuad:         c.RequireQuad,
		RequireNoParentCard: c.RequireNoParentCard,
		MinChildren:         c.MinChildren,
		RequireLeaf:         c.RequireLeaf,
	}
}
