// internal/oregon/decoder.go
// Package oregon decodes the Oregon Scientific v2.1 sensor protocol from a
// stream of measured pulse durations.
package oregon

import "math"

// Nominal pulse timings in microseconds and the tolerance applied when
// classifying a measured pulse against them.
const (
	// ShortPulse is the nominal half-bit pulse duration.
	ShortPulse = 490.0
	// LongPulse is the nominal full-bit pulse duration.
	LongPulse = 975.0
	// PulseTolerance is the relative matching tolerance for both nominals.
	PulseTolerance = 0.2

	// MinPreamblePulses is the count a preamble must exceed before a short
	// space is accepted as the end-of-preamble sync.
	MinPreamblePulses = 16

	// MaxFrameNibbles bounds the frame buffer; no registered sensor layout
	// exceeds it.
	MaxFrameNibbles = 22
)

// Nibble offsets of the protocol fields. Temperature, moisture and wind
// speeds are BCD with the least significant digit first.
const (
	nibbleSensorType = 1 // 4 nibbles
	nibbleChannel    = 5
	nibbleIdentity   = 6 // 2 nibbles
	nibbleFlags      = 8
	nibbleTemp       = 9 // 3 nibbles
	nibbleTempSign   = 12
	nibbleMoisture   = 13 // 2 nibbles
	nibbleWindDir    = 9
	nibbleWindSpeed  = 12 // 3 nibbles
	nibbleAvgWind    = 15 // 3 nibbles

	lowBatteryBit = 0x04
)

// State is the bit-recovery state machine state, returned by Step for
// diagnostic use.
type State int

const (
	// StateIdle means no preamble has been acquired.
	StateIdle State = iota
	// StatePreamble means long sync pulses are being counted.
	StatePreamble
	// StateHiIn, StateHiBetween, StateLoIn and StateLoBetween track the
	// position within the Manchester symbol stream after synchronization:
	// "in" mid-symbol, "between" at a symbol boundary, for each half-phase.
	StateHiIn
	StateHiBetween
	StateLoIn
	StateLoBetween
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreamble:
		return "preamble"
	case StateHiIn:
		return "hi-in"
	case StateHiBetween:
		return "hi-between"
	case StateLoIn:
		return "lo-in"
	case StateLoBetween:
		return "lo-between"
	}
	return "unknown"
}

// pulseClass is the verdict of classifying one measured pulse duration.
type pulseClass int

const (
	pulseNone pulseClass = iota
	pulseShort
	pulseLong
)

// pulseMatch reports whether a measured duration is within tolerance of a
// nominal duration.
func pulseMatch(candidate, standard float64) bool {
	return math.Abs(standard-candidate) < standard*PulseTolerance
}

// classify matches a duration against the two nominal pulse lengths. The
// tolerance bands do not overlap, so the verdict is unambiguous.
func classify(duration float64) pulseClass {
	switch {
	case pulseMatch(duration, ShortPulse):
		return pulseShort
	case pulseMatch(duration, LongPulse):
		return pulseLong
	}
	return pulseNone
}

// Stats counts decode outcomes per decoder instance. The decode path only
// increments them; rejected frames stay silent otherwise.
type Stats struct {
	// FramesSynced counts completed preamble synchronizations.
	FramesSynced uint64
	// Messages counts checksum-validated messages delivered to the callback.
	Messages uint64
	// ChecksumFailures counts completed frames discarded on checksum.
	ChecksumFailures uint64
	// UnknownSensors counts frames aborted on an unregistered sensor type.
	UnknownSensors uint64
	// EncodingViolations counts frames aborted on an equal differential pair.
	EncodingViolations uint64
}

// Decoder recovers Oregon sensor messages from a pulse stream. Feed it one
// measured pulse at a time via Step; validated messages are delivered through
// the registered callback.
//
// A Decoder is not safe for concurrent use. Decode one physical channel per
// instance; the Registry may be shared between instances.
type Decoder struct {
	registry *Registry
	callback MessageCallback

	state         State
	preambleCount int

	// Differential decoding state: each logical bit arrives as a reference
	// bit followed by a data bit that must differ from it.
	awaitingData bool
	referenceBit int

	// Nibble assembly, MSB first.
	bitAccum byte
	bitCount int

	nibbles     [MaxFrameNibbles]byte
	nibbleCount int
	sensor      *Sensor

	stats Stats
}

// NewDecoder returns a decoder with the built-in sensor registry.
func NewDecoder() *Decoder {
	return NewDecoderWithRegistry(NewRegistry())
}

// NewDecoderWithRegistry returns a decoder using a caller-supplied registry,
// allowing one immutable registry to back several decoder instances.
func NewDecoderWithRegistry(registry *Registry) *Decoder {
	return &Decoder{registry: registry, state: StateIdle}
}

// SetCallback registers the message sink. Set it before feeding pulses; the
// callback runs synchronously on the decode path.
func (d *Decoder) SetCallback(cb MessageCallback) {
	d.callback = cb
}

// State returns the current state machine state.
func (d *Decoder) State() State {
	return d.state
}

// Stats returns a snapshot of the decode counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset discards any in-progress frame and returns the decoder to idle.
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.sensor = nil
	d.nibbleCount = 0
	d.bitAccum = 0
	d.bitCount = 0
	d.awaitingData = false
}

// Step consumes one measured pulse and returns the resulting state. The
// duration is in microseconds; mark is true for a mark (carrier on) pulse.
// Any timing that does not fit the protocol silently returns the decoder to
// idle, where it waits for the next preamble.
func (d *Decoder) Step(duration float64, mark bool) State {
	switch d.state {
	case StateIdle:
		if mark && pulseMatch(duration, LongPulse) {
			d.state = StatePreamble
			d.preambleCount = 0
		}

	case StatePreamble:
		switch {
		case pulseMatch(duration, LongPulse):
			d.preambleCount++
		case pulseMatch(duration, ShortPulse) && !mark && d.preambleCount > MinPreamblePulses:
			d.synchronize()
		default:
			d.state = StateIdle
		}

	case StateHiIn:
		switch classify(duration) {
		case pulseShort:
			d.state = StateLoBetween
		case pulseLong:
			d.state = StateLoIn
			d.addBit(1)
		default:
			d.state = StateIdle
		}

	case StateHiBetween:
		if classify(duration) == pulseShort {
			d.state = StateLoIn
			d.addBit(1)
		} else {
			d.state = StateIdle
		}

	case StateLoIn:
		switch classify(duration) {
		case pulseShort:
			d.state = StateHiBetween
		case pulseLong:
			d.state = StateHiIn
			d.addBit(0)
		default:
			d.state = StateIdle
		}

	case StateLoBetween:
		if classify(duration) == pulseShort {
			d.state = StateHiIn
			d.addBit(0)
		} else {
			d.state = StateIdle
		}
	}
	return d.state
}

// synchronize starts a fresh frame after a valid preamble: clears the frame
// buffer and bit accumulator and primes the differential reference.
func (d *Decoder) synchronize() {
	d.bitAccum = 0
	d.bitCount = 0
	d.nibbleCount = 0
	d.sensor = nil
	d.awaitingData = false
	d.state = StateHiBetween
	d.stats.FramesSynced++
}

// addBit consumes one recovered raw bit. Raw bits arrive in pairs: a
// reference bit followed by the data bit, which must differ. An equal pair is
// a protocol violation and aborts the frame.
func (d *Decoder) addBit(bit int) {
	if !d.awaitingData {
		d.referenceBit = bit
		d.awaitingData = true
		return
	}
	d.awaitingData = false

	if bit == d.referenceBit {
		d.stats.EncodingViolations++
		d.state = StateIdle
		return
	}

	d.bitAccum = d.bitAccum<<1 | byte(bit)
	d.bitCount++
	if d.bitCount == 4 {
		nibble := d.bitAccum
		d.bitAccum = 0
		d.bitCount = 0
		d.addNibble(nibble)
	}
}

// addNibble stores one assembled nibble, identifies the sensor after the
// sixth nibble and decodes the frame once the sensor's full length is in.
func (d *Decoder) addNibble(nibble byte) {
	if d.nibbleCount >= MaxFrameNibbles {
		d.state = StateIdle
		return
	}
	d.nibbles[d.nibbleCount] = nibble
	d.nibbleCount++

	if d.nibbleCount == nibbleChannel+1 {
		sensor, ok := d.registry.Lookup(d.sensorType())
		if !ok {
			d.stats.UnknownSensors++
			d.state = StateIdle
			return
		}
		d.sensor = sensor
	}
	if d.sensor != nil && d.nibbleCount >= d.sensor.FrameLength {
		d.decodeFrame()
	}
}

// sensorType assembles the 16-bit sensor type code from nibbles 1-4.
func (d *Decoder) sensorType() uint16 {
	return uint16(d.nibbles[nibbleSensorType])<<12 |
		uint16(d.nibbles[nibbleSensorType+1])<<8 |
		uint16(d.nibbles[nibbleSensorType+2])<<4 |
		uint16(d.nibbles[nibbleSensorType+3])
}

// decodeFrame extracts the fields of a completed frame, validates the
// checksum and delivers the message. The decoder always returns to idle
// afterwards: one frame per synchronization, success or failure.
func (d *Decoder) decodeFrame() {
	length := d.sensor.FrameLength

	// Checksum: 8-bit sum of nibbles 1..length-3, stored low nibble first.
	stored := int(d.nibbles[length-1])<<4 | int(d.nibbles[length-2])
	sum := 0
	for i := 1; i < length-2; i++ {
		sum += int(d.nibbles[i])
	}
	if stored != sum&0xFF {
		d.stats.ChecksumFailures++
		d.state = StateIdle
		return
	}

	sensorType := d.sensorType()
	rollingID := d.nibbles[nibbleIdentity]<<4 | d.nibbles[nibbleIdentity+1]
	lowBattery := d.nibbles[nibbleFlags]&lowBatteryBit != 0

	fields := map[string]int{
		FieldSensorID: int(sensorType),
		FieldChannel:  int(d.nibbles[nibbleChannel]),
		FieldID:       int(rollingID),
	}
	if lowBattery {
		fields[FieldLowBattery] = 1
	} else {
		fields[FieldLowBattery] = 0
	}

	if d.sensor.Temperature {
		temp := int(d.nibbles[nibbleTemp+2])*100 +
			int(d.nibbles[nibbleTemp+1])*10 +
			int(d.nibbles[nibbleTemp])
		if d.nibbles[nibbleTempSign] != 0 {
			temp = -temp
		}
		fields[FieldTemp] = temp
	}
	if d.sensor.Humidity {
		fields[FieldMoisture] = int(d.nibbles[nibbleMoisture+1])*10 +
			int(d.nibbles[nibbleMoisture])
	}
	if d.sensor.Wind {
		fields[FieldDirection] = int(d.nibbles[nibbleWindDir])
		fields[FieldWind] = int(d.nibbles[nibbleWindSpeed+2])*100 +
			int(d.nibbles[nibbleWindSpeed+1])*10 +
			int(d.nibbles[nibbleWindSpeed])
		fields[FieldAverageWind] = int(d.nibbles[nibbleAvgWind+2])*100 +
			int(d.nibbles[nibbleAvgWind+1])*10 +
			int(d.nibbles[nibbleAvgWind])
	}

	d.stats.Messages++
	if d.callback != nil {
		d.callback(Message{
			Protocol:   "Oregon",
			SensorType: sensorType,
			RollingID:  rollingID,
			Sequence:   0,
			LowBattery: lowBattery,
			Fields:     fields,
		})
	}
	d.state = StateIdle
}
