package integrator

import "fmt"

// DefaultMaxBounces is the path length used when Options.MaxBounces is zero.
const DefaultMaxBounces = 5

// ToneMap selects the operator applied by ResolveRadiance.
type ToneMap uint8

const (
	// ToneMapRaw writes the averaged radiance unchanged.
	ToneMapRaw ToneMap = iota

	// ToneMapReinhard applies c / (1 + c) per channel.
	ToneMapReinhard
)

// String returns the operator name.
func (t ToneMap) String() string {
	switch t {
	case ToneMapRaw:
		return "raw"
	case ToneMapReinhard:
		return "reinhard"
	default:
		return fmt.Sprintf("ToneMap(%d)", uint8(t))
	}
}

// ParseToneMap converts a name accepted by String back to a ToneMap.
func ParseToneMap(s string) (ToneMap, error) {
	switch s {
	case "", "raw":
		return ToneMapRaw, nil
	case "reinhard":
		return ToneMapReinhard, nil
	}
	return 0, fmt.Errorf("integrator: unknown tone map %q", s)
}

// AOV selects an auxiliary output. Only AOVNone is implemented.
type AOV uint8

const (
	AOVNone AOV = iota
	AOVAlbedo
	AOVNormal
	AOVDepth
)

// Options are the runtime toggles applied with Configure.
type Options struct {
	// MaxBounces is the number of intersect/shade rounds per sample.
	MaxBounces int

	// WhiteFurnace rebuilds the kernels with a constant unit environment,
	// unit albedo and no emission. Used to check energy conservation.
	WhiteFurnace bool

	// EnableDenoiser keeps the sample counter across Reset. The denoiser
	// itself is not available; see Capabilities.
	EnableDenoiser bool

	ToneMap ToneMap

	// Exposure scales radiance before tone mapping. Zero means 1.
	Exposure float32

	AOV AOV
}

// DefaultOptions returns the options a new Integrator starts with.
func DefaultOptions() Options {
	return Options{MaxBounces: DefaultMaxBounces, Exposure: 1}
}

func (o Options) normalize() (Options, error) {
	if o.MaxBounces == 0 {
		o.MaxBounces = DefaultMaxBounces
	}
	if o.MaxBounces < 0 {
		return o, fmt.Errorf("integrator: invalid max bounces %d", o.MaxBounces)
	}
	if o.Exposure == 0 {
		o.Exposure = 1
	}
	if o.Exposure < 0 {
		return o, fmt.Errorf("integrator: invalid exposure %v", o.Exposure)
	}
	if o.ToneMap > ToneMapReinhard {
		return o, fmt.Errorf("integrator: invalid tone map %d", o.ToneMap)
	}
	if o.AOV != AOVNone {
		return o, fmt.Errorf("%w: AOV output %d", ErrUnsupported, o.AOV)
	}
	return o, nil
}

// Capabilities reports the optional features of the integrator.
type Capabilities struct {
	Denoiser   bool
	AOV        bool
	ShadowRays bool
}
