package capability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Loader brings a backend's heavy state into memory. It is called at most once.
type Loader interface {
	Load(ctx context.Context) error
}

// Registry records which backends initialized successfully. It is built once at
// startup and never changes afterward, so reads need no locking.
type Registry struct {
	vision    bool
	text      bool
	loadErr   error
	loadedFor time.Duration
}

// Options configures Init.
type Options struct {
	VisionEnabled bool
	Vision        Loader
	LoadTimeout   time.Duration
}

// Init loads the vision backend when enabled and returns the frozen registry.
// A load failure is logged once and leaves vision unavailable for the process lifetime.
func Init(ctx context.Context, opts Options) *Registry {
	r := &Registry{text: true}
	if !opts.VisionEnabled {
		log.Info().Msg("vision backend disabled by configuration")
		return r
	}
	if opts.Vision == nil {
		log.Error().Msg("vision backend enabled but no loader configured")
		return r
	}

	lctx := ctx
	cancel := func() {}
	if opts.LoadTimeout > 0 {
		lctx, cancel = context.WithTimeout(ctx, opts.LoadTimeout)
	}
	defer cancel()

	start := time.Now()
	err := opts.Vision.Load(lctx)
	r.loadedFor = time.Since(start)
	if err != nil {
		r.loadErr = err
		log.Error().Err(err).Dur("duration", r.loadedFor).Msg("vision backend failed to load; image requests will use the text path")
		return r
	}
	r.vision = true
	log.Info().Dur("duration", r.loadedFor).Msg("vision backend loaded")
	return r
}

// Static builds a registry with fixed flags, for tests and tools.
func Static(vision bool) *Registry {
	return &Registry{vision: vision, text: true}
}

func (r *Registry) IsVisionAvailable() bool { return r != nil && r.vision }

// IsTextAvailable is always true: the text process is started lazily per call.
func (r *Registry) IsTextAvailable() bool { return r != nil && r.text }

// LoadError is the startup load failure, if any.
func (r *Registry) LoadError() error {
	if r == nil {
		return nil
	}
	return r.loadErr
}
