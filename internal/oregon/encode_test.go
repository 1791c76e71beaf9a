package oregon

// Synthetic Oregon transmitter used by the round-trip tests. It inverts the
// bit-recovery state machine: given a frame of nibbles it produces the pulse
// train a sensor would emit, preamble and differential encoding included.

// pulse is one transmitted mark or space with its duration in microseconds.
type pulse struct {
	duration float64
	mark     bool
}

// encoder tracks transmit polarity and the symbol-phase position so that each
// raw bit maps onto legal pulse timings.
type encoder struct {
	pulses []pulse
	mark   bool
	pos    encPos
}

type encPos int

const (
	posHiBetween encPos = iota
	posLoIn
	posHiIn
)

func (e *encoder) emit(duration float64) {
	e.pulses = append(e.pulses, pulse{duration: duration, mark: e.mark})
	e.mark = !e.mark
}

// emitRaw transmits one raw (pre-differential) bit. From a symbol boundary in
// the high phase only a short pulse is legal, and it always carries a 1; this
// is why the first raw bit of every frame is a 1.
func (e *encoder) emitRaw(bit int) {
	switch e.pos {
	case posHiBetween:
		if bit != 1 {
			panic("encode: first raw bit after sync must be 1")
		}
		e.emit(ShortPulse)
		e.pos = posLoIn
	case posLoIn:
		if bit == 1 {
			e.emit(ShortPulse)
			e.emit(ShortPulse)
		} else {
			e.emit(LongPulse)
			e.pos = posHiIn
		}
	case posHiIn:
		if bit == 0 {
			e.emit(ShortPulse)
			e.emit(ShortPulse)
		} else {
			e.emit(LongPulse)
			e.pos = posLoIn
		}
	}
}

// encodeFrame builds the full pulse train for a frame whose checksum nibbles
// are already in place: 19 long preamble pulses (the decoder counts 18 after
// the opening mark), a short space, then each nibble MSB first as
// (reference, data) differential pairs.
func encodeFrame(nibbles []byte) []pulse {
	e := &encoder{mark: true, pos: posHiBetween}
	for i := 0; i < 19; i++ {
		e.emit(LongPulse)
	}
	e.emit(ShortPulse) // the sync space
	for _, n := range nibbles {
		for shift := 3; shift >= 0; shift-- {
			bit := int(n>>shift) & 1
			e.emitRaw(1 - bit)
			e.emitRaw(bit)
		}
	}
	return e.pulses
}

// checksummed fills in the two checksum nibbles (low nibble first) over
// nibbles 1..len-3 and returns the frame.
func checksummed(nibbles []byte) []byte {
	sum := 0
	for i := 1; i < len(nibbles)-2; i++ {
		sum += int(nibbles[i])
	}
	nibbles[len(nibbles)-2] = byte(sum & 0x0F)
	nibbles[len(nibbles)-1] = byte(sum >> 4 & 0x0F)
	return nibbles
}

// syncNibble is the value used for nibble 0 in synthetic frames. The decoder
// never validates it, but its top bit must be 0: the first differential
// reference bit of a frame is structurally forced to 1, so the first data bit
// is forced to 0.
const syncNibble = 0x5

// tempHumFrame builds an 18-nibble temperature+humidity frame. Temperature
// digits are BCD, least significant first; negative sets the sign nibble.
func tempHumFrame(code uint16, channel, id byte, lowBattery bool, temp int, moisture int) []byte {
	f := make([]byte, 18)
	fillHeader(f, code, channel, id, lowBattery)
	fillBCD(f[9:12], abs(temp))
	if temp < 0 {
		f[12] = 1
	}
	fillBCD(f[13:15], moisture)
	return checksummed(f)
}

// tempFrame builds a 15-nibble temperature-only frame.
func tempFrame(code uint16, channel, id byte, lowBattery bool, temp int) []byte {
	f := make([]byte, 15)
	fillHeader(f, code, channel, id, lowBattery)
	fillBCD(f[9:12], abs(temp))
	if temp < 0 {
		f[12] = 1
	}
	return checksummed(f)
}

// windFrame builds a 20-nibble wind frame. Direction is a raw nibble; speeds
// are BCD, least significant first.
func windFrame(code uint16, channel, id byte, lowBattery bool, direction, speed, avgSpeed int) []byte {
	f := make([]byte, 20)
	fillHeader(f, code, channel, id, lowBattery)
	f[9] = byte(direction)
	fillBCD(f[12:15], speed)
	fillBCD(f[15:18], avgSpeed)
	return checksummed(f)
}

func fillHeader(f []byte, code uint16, channel, id byte, lowBattery bool) {
	f[0] = syncNibble
	f[1] = byte(code >> 12 & 0xF)
	f[2] = byte(code >> 8 & 0xF)
	f[3] = byte(code >> 4 & 0xF)
	f[4] = byte(code & 0xF)
	f[5] = channel
	f[6] = id >> 4
	f[7] = id & 0xF
	if lowBattery {
		f[8] = lowBatteryBit
	}
}

// fillBCD stores a non-negative decimal value as BCD digits, least
// significant digit first.
func fillBCD(dst []byte, value int) {
	for i := range dst {
		dst[i] = byte(value % 10)
		value /= 10
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// decodeAll feeds a pulse train through a fresh decoder and collects every
// delivered message. It returns the messages, the final state and the decoder
// for stats inspection.
func decodeAll(pulses []pulse) ([]Message, State, *Decoder) {
	d := NewDecoder()
	var messages []Message
	d.SetCallback(func(msg Message) {
		messages = append(messages, msg)
	})
	state := d.State()
	for _, p := range pulses {
		state = d.Step(p.duration, p.mark)
	}
	return messages, state, d
}
