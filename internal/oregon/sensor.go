// internal/oregon/sensor.go
package oregon

// Sensor describes one Oregon Scientific message layout. Several sensor type
// codes may share a layout (hardware revisions of the same model), so a
// single Sensor can be registered under multiple codes.
type Sensor struct {
	// Codes are the 16-bit sensor type codes transmitted in nibbles 1-4.
	Codes []uint16
	// FrameLength is the total frame length in nibbles, checksum included.
	FrameLength int

	// Capability flags. The set is closed: a layout either carries a field
	// group or it does not. UVIndex, RainMm, RainIn and Barometer are carried
	// for sensor families this decoder does not demodulate yet.
	Temperature bool
	Humidity    bool
	UVIndex     bool
	Wind        bool
	RainMm      bool
	RainIn      bool
	Barometer   bool
}

// Registry maps sensor type codes to their message layouts. It is populated
// once before decoding begins and is read-only afterwards, so a single
// Registry may be shared by any number of decoder instances.
type Registry struct {
	sensors map[uint16]*Sensor
}

// NewRegistry returns a registry pre-populated with the built-in sensor
// layouts: temperature+humidity (THGN122/THGR228 family), temperature-only
// (THN132 family) and wind (WGR918 family).
func NewRegistry() *Registry {
	r := &Registry{sensors: make(map[uint16]*Sensor)}
	r.Register(&Sensor{
		Codes:       []uint16{0x1D20, 0xF824, 0xF8B4},
		FrameLength: 18,
		Temperature: true,
		Humidity:    true,
	})
	r.Register(&Sensor{
		Codes:       []uint16{0xEC40, 0xC844},
		FrameLength: 15,
		Temperature: true,
	})
	r.Register(&Sensor{
		Codes:       []uint16{0x1984, 0x1994},
		FrameLength: 20,
		Wind:        true,
	})
	return r
}

// Register adds an entry for each of the sensor's type codes.
func (r *Registry) Register(s *Sensor) {
	for _, code := range s.Codes {
		r.sensors[code] = s
	}
}

// Lookup returns the sensor layout for a type code, or false if the code is
// unknown.
func (r *Registry) Lookup(code uint16) (*Sensor, bool) {
	s, ok := r.sensors[code]
	return s, ok
}

// MaxFrameLength returns the longest registered frame length in nibbles.
func (r *Registry) MaxFrameLength() int {
	max := 0
	for _, s := range r.sensors {
		if s.FrameLength > max {
			max = s.FrameLength
		}
	}
	return max
}
