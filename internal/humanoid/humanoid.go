// internal/humanoid/humanoid.go

// Package humanoid paces browser interactions so the portal's client-side
// validation keeps up and the interaction rhythm resembles a person filling
// in the form.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sleeper waits for a duration. *timers.Registry implements it, which makes
// every pacing delay cancellable by pause and stop.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Config defines the pacing persona.
type Config struct {
	Enabled bool
	// PauseMeanMs and PauseStdDevMs parameterise the normal distribution of
	// the pause inserted between interactions.
	PauseMeanMs   float64
	PauseStdDevMs float64
	// MinInterval is the minimum time between two interactions.
	MinInterval time.Duration
	// FatigueIncreaseRate is added per interaction; FatigueRecoveryRate is
	// recovered per second of pause. Fatigue stretches pauses up to 2x.
	FatigueIncreaseRate float64
	FatigueRecoveryRate float64
	// DriftAmplitude scales the slow Perlin drift applied to every pause.
	DriftAmplitude float64
	// Rng makes pacing reproducible in tests. It also seeds the drift.
	Rng *rand.Rand
}

// DefaultConfig returns the pacing used when none is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		PauseMeanMs:         350,
		PauseStdDevMs:       120,
		MinInterval:         150 * time.Millisecond,
		FatigueIncreaseRate: 0.01,
		FatigueRecoveryRate: 0.05,
		DriftAmplitude:      0.25,
	}
}

// Humanoid paces interactions.
type Humanoid struct {
	cfg     Config
	sleeper Sleeper
	limiter *rate.Limiter
	logger  *zap.Logger

	mu           sync.Mutex
	rng          *rand.Rand
	noise        *perlin.Perlin
	noiseTime    float64
	fatigueLevel float64
}

// New creates a Humanoid that sleeps through sleeper.
func New(cfg Config, sleeper Sleeper, logger *zap.Logger) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := time.Now().UnixNano()
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	} else {
		// The drift follows the supplied source too.
		seed = rng.Int63()
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Humanoid{
		cfg:     cfg,
		sleeper: sleeper,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("humanoid"),
		rng:     rng,
		noise:   perlin.NewPerlin(2, 2, 3, seed),
	}
}

// CognitivePause sleeps for a normally distributed duration, stretched by
// fatigue and the slow drift, and recovers fatigue while doing so.
func (h *Humanoid) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	if !h.cfg.Enabled {
		return ctx.Err()
	}
	h.mu.Lock()
	fatigueFactor := 1.0 + h.fatigueLevel
	drift := 1.0 + h.cfg.DriftAmplitude*h.noise.Noise1D(h.noiseTime)
	h.noiseTime += 0.1
	ms := fatigueFactor * drift * (meanMs + h.rng.NormFloat64()*stdDevMs)
	h.mu.Unlock()

	duration := time.Duration(ms) * time.Millisecond
	if duration <= 0 {
		return ctx.Err()
	}
	h.recoverFatigue(duration)
	return h.sleeper.Sleep(ctx, duration)
}

// Pause is a CognitivePause with the configured distribution.
func (h *Humanoid) Pause(ctx context.Context) error {
	return h.CognitivePause(ctx, h.cfg.PauseMeanMs, h.cfg.PauseStdDevMs)
}

// BeforeInteraction enforces the minimum interval and accumulates fatigue.
// Call it right before each click, fill or upload.
func (h *Humanoid) BeforeInteraction(ctx context.Context) error {
	if !h.cfg.Enabled {
		return ctx.Err()
	}
	r := h.limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		if err := h.sleeper.Sleep(ctx, delay); err != nil {
			r.Cancel()
			return err
		}
	}
	h.updateFatigue(1.0)
	return nil
}

// Fatigue returns the current fatigue level in [0, 1].
func (h *Humanoid) Fatigue() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fatigueLevel
}

func (h *Humanoid) updateFatigue(intensity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Min(1.0, h.fatigueLevel+h.cfg.FatigueIncreaseRate*intensity)
}

func (h *Humanoid) recoverFatigue(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Max(0.0, h.fatigueLevel-h.cfg.FatigueRecoveryRate*d.Seconds())
}
