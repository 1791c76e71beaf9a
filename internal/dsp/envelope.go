// internal/dsp/envelope.go
// Package dsp converts receiver audio into mark/space pulse events for the
// protocol decoder.
package dsp

import (
	"errors"
	"math"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidAttack indicates attack time must be positive
	ErrInvalidAttack = errors.New("attack time must be positive")
	// ErrInvalidRelease indicates release time must be positive
	ErrInvalidRelease = errors.New("release time must be positive")
)

// EnvelopeConfig holds configuration for the envelope follower.
// All values should come from the application config file.
type EnvelopeConfig struct {
	// SampleRate is the audio sample rate in Hz (from config: sample_rate)
	SampleRate float64
	// AttackMs is the rise time constant in milliseconds (from config: attack_ms)
	AttackMs float64
	// ReleaseMs is the fall time constant in milliseconds (from config: release_ms)
	ReleaseMs float64
}

// Envelope is a rectifying one-pole envelope follower. An OOK receiver wired
// into a sound-card input delivers the pulse train as bursts of audio; the
// follower tracks the burst amplitude so the detector can slice it against a
// threshold. Separate attack and release constants let the envelope rise fast
// enough to catch a 490 µs pulse while still bridging carrier ripple.
type Envelope struct {
	config       EnvelopeConfig
	attackCoeff  float64 // Pre-computed: 1 - exp(-1 / (attack seconds * rate))
	releaseCoeff float64 // Pre-computed: 1 - exp(-1 / (release seconds * rate))
	level        float64
}

// NewEnvelope creates a new envelope follower with the given configuration.
// Returns an error if the configuration is invalid.
func NewEnvelope(cfg EnvelopeConfig) (*Envelope, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.AttackMs <= 0 {
		return nil, ErrInvalidAttack
	}
	if cfg.ReleaseMs <= 0 {
		return nil, ErrInvalidRelease
	}

	return &Envelope{
		config:       cfg,
		attackCoeff:  smoothingCoeff(cfg.AttackMs, cfg.SampleRate),
		releaseCoeff: smoothingCoeff(cfg.ReleaseMs, cfg.SampleRate),
	}, nil
}

// smoothingCoeff converts a time constant in milliseconds to a per-sample
// smoothing factor.
func smoothingCoeff(ms, sampleRate float64) float64 {
	return 1 - math.Exp(-1/(ms/1000*sampleRate))
}

// Process consumes one sample and returns the updated envelope level.
// Optimized for the per-sample hot path; no allocation, no locking.
func (e *Envelope) Process(sample float32) float64 {
	magnitude := math.Abs(float64(sample))
	if magnitude > e.level {
		e.level += e.attackCoeff * (magnitude - e.level)
	} else {
		e.level += e.releaseCoeff * (magnitude - e.level)
	}
	return e.level
}

// Level returns the current envelope level.
func (e *Envelope) Level() float64 {
	return e.level
}

// Reset clears the envelope state.
func (e *Envelope) Reset() {
	e.level = 0
}

// Config returns the current configuration (for testing and inspection)
func (e *Envelope) Config() EnvelopeConfig {
	return e.config
}
