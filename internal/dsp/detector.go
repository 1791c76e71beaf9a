// internal/dsp/detector.go
package dsp

import (
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidThreshold indicates threshold must be between 0 and 1
	ErrInvalidThreshold = errors.New("threshold must be between 0.0 and 1.0")
	// ErrInvalidHysteresis indicates hysteresis must be non-negative
	ErrInvalidHysteresis = errors.New("hysteresis must be non-negative")
	// ErrInvalidAGCDecay indicates AGC decay must be between 0 and 1
	ErrInvalidAGCDecay = errors.New("agc decay must be between 0.0 and 1.0")
	// ErrInvalidAGCAttack indicates AGC attack must be between 0 and 1
	ErrInvalidAGCAttack = errors.New("agc attack must be between 0.0 and 1.0")
	// ErrInvalidAGCWarmup indicates AGC warmup must be non-negative
	ErrInvalidAGCWarmup = errors.New("agc warmup must be non-negative")
	// ErrEnvelopeRequired indicates an Envelope instance is required
	ErrEnvelopeRequired = errors.New("envelope instance is required")
)

// PulseEvent is one completed mark or space pulse, emitted when the line
// level changes. Durations are in microseconds so they feed the protocol
// decoder's nominal timings directly.
type PulseEvent struct {
	// Mark is true if the pulse that just ended was a mark (carrier on)
	Mark bool
	// Duration is the measured pulse length in microseconds
	Duration float64
	// Timestamp is when the level change was confirmed
	Timestamp time.Time
}

// PulseCallback is called when a pulse completes.
// Must be non-blocking and fast - called from the audio processing path.
type PulseCallback func(event PulseEvent)

// DetectorConfig holds configuration for the pulse detector.
// All values should come from the application config file.
type DetectorConfig struct {
	// SampleRate is the audio sample rate in Hz (from config: sample_rate)
	SampleRate float64
	// Threshold for carrier detection (0.0-1.0) (from config: threshold)
	Threshold float64
	// HysteresisUs is how long a level change must persist, in microseconds,
	// before it is accepted (from config: hysteresis_us). Suppresses glitches
	// far shorter than the protocol's 490 µs minimum pulse.
	HysteresisUs float64
	// AGCEnabled enables automatic gain control (from config: agc_enabled)
	AGCEnabled bool
	// AGCDecay is the peak decay rate per sample (from config: agc_decay)
	AGCDecay float64
	// AGCAttack is how fast to respond to louder signals (from config: agc_attack)
	AGCAttack float64
	// AGCWarmupMs is how long to calibrate AGC before detection starts
	// (from config: agc_warmup_ms). Prevents false pulses on startup.
	AGCWarmupMs float64
	// Invert flips the detected level for receivers that idle high
	// (from config: invert)
	Invert bool
}

// Detector slices the receiver envelope into mark/space pulses. It applies
// AGC and time-based hysteresis to produce clean pulse duration events for
// the protocol decoder.
type Detector struct {
	config   DetectorConfig
	envelope *Envelope

	usPerSample       float64
	hysteresisSamples int
	warmupSamples     int

	// AGC state
	agcPeak       float64
	warmupCounter int // samples processed, detection disabled until >= warmupSamples

	// Level tracking
	mark         bool // current confirmed level
	pendingCount int  // consecutive samples at the opposite level
	runSamples   int  // samples spent at the confirmed level
	primed       bool // set after the first confirmed transition

	// Callback for pulse events (atomic for thread safety)
	callbackPtr atomic.Pointer[PulseCallback]
}

// NewDetector creates a new pulse detector with the given configuration.
func NewDetector(cfg DetectorConfig, envelope *Envelope) (*Detector, error) {
	if envelope == nil {
		return nil, ErrEnvelopeRequired
	}
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if cfg.HysteresisUs < 0 {
		return nil, ErrInvalidHysteresis
	}
	if cfg.AGCDecay < 0 || cfg.AGCDecay > 1 {
		return nil, ErrInvalidAGCDecay
	}
	if cfg.AGCAttack < 0 || cfg.AGCAttack > 1 {
		return nil, ErrInvalidAGCAttack
	}
	if cfg.AGCWarmupMs < 0 {
		return nil, ErrInvalidAGCWarmup
	}

	hysteresisSamples := int(cfg.HysteresisUs * cfg.SampleRate / 1e6)
	if hysteresisSamples < 1 {
		hysteresisSamples = 1
	}

	return &Detector{
		config:            cfg,
		envelope:          envelope,
		usPerSample:       1e6 / cfg.SampleRate,
		hysteresisSamples: hysteresisSamples,
		warmupSamples:     int(cfg.AGCWarmupMs * cfg.SampleRate / 1000),
		agcPeak:           1.0, // Prevent false triggers during warmup
	}, nil
}

// SetCallback sets the callback for pulse events.
// The callback is invoked from the processing goroutine - it must be fast and
// non-blocking.
func (d *Detector) SetCallback(cb PulseCallback) {
	if cb == nil {
		d.callbackPtr.Store(nil)
	} else {
		d.callbackPtr.Store(&cb)
	}
}

// Process consumes incoming audio samples and emits completed pulses.
// Samples should be float32 normalized to -1.0 to 1.0.
func (d *Detector) Process(samples []float32) {
	for _, sample := range samples {
		level := d.envelope.Process(sample)

		// During warmup, calibrate AGC to the actual signal level without
		// triggering detection.
		if d.warmupCounter < d.warmupSamples {
			d.warmupCounter++
			if d.config.AGCEnabled && level > 0.001 {
				if level > d.agcPeak || d.warmupCounter == 1 {
					d.agcPeak = level
				}
			}
			continue
		}

		if d.config.AGCEnabled {
			level = d.applyAGC(level)
		}

		present := level > d.config.Threshold
		if d.config.Invert {
			present = !present
		}
		d.track(present)
	}
}

// applyAGC applies automatic gain control to normalize the envelope level.
func (d *Detector) applyAGC(level float64) float64 {
	if level > d.agcPeak {
		// Attack: fast response to louder signals
		d.agcPeak = d.agcPeak + d.config.AGCAttack*(level-d.agcPeak)
	} else {
		// Decay: gradual decrease when signal is quieter
		d.agcPeak = d.agcPeak * d.config.AGCDecay
	}

	if d.agcPeak < 0.001 {
		d.agcPeak = 0.001
	}

	normalized := level / d.agcPeak
	if normalized > 1.0 {
		normalized = 1.0
	}
	return normalized
}

// track applies time hysteresis to the observed level and emits a pulse when
// a level change is confirmed. Samples spent in an unconfirmed excursion are
// credited back to the pulse they interrupted.
func (d *Detector) track(present bool) {
	if present == d.mark {
		d.runSamples += d.pendingCount + 1
		d.pendingCount = 0
		return
	}

	d.pendingCount++
	if d.pendingCount < d.hysteresisSamples {
		return
	}

	// Confirmed transition: the pulse at the old level is complete. The
	// pending samples already belong to the new pulse.
	event := PulseEvent{
		Mark:      d.mark,
		Duration:  float64(d.runSamples) * d.usPerSample,
		Timestamp: time.Now(),
	}
	d.mark = present
	d.runSamples = d.pendingCount
	d.pendingCount = 0

	// The run before the very first transition is startup dead time, not a
	// pulse.
	if d.primed {
		d.emitEvent(event)
	} else {
		d.primed = true
	}
}

// emitEvent calls the registered callback if set
func (d *Detector) emitEvent(event PulseEvent) {
	cbPtr := d.callbackPtr.Load()
	if cbPtr != nil {
		(*cbPtr)(event)
	}
}

// Mark returns the current confirmed level
func (d *Detector) Mark() bool {
	return d.mark
}

// AGCPeak returns the current AGC peak value (for debugging/monitoring)
func (d *Detector) AGCPeak() float64 {
	return d.agcPeak
}

// Reset resets the detector state
func (d *Detector) Reset() {
	d.envelope.Reset()
	d.agcPeak = 1.0
	d.warmupCounter = 0
	d.mark = false
	d.pendingCount = 0
	d.runSamples = 0
	d.primed = false
}

// Config returns the current configuration
func (d *Detector) Config() DetectorConfig {
	return d.config
}
