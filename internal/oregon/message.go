// internal/oregon/message.go
package oregon

// Field names used in Message.Fields. The names match the upstream
// OpenNetHome protocol so existing consumers key on the same strings.
const (
	FieldSensorID    = "SensorId"
	FieldChannel     = "Channel"
	FieldID          = "Id"
	FieldLowBattery  = "LowBattery"
	FieldTemp        = "Temp"
	FieldMoisture    = "Moisture"
	FieldDirection   = "Direction"
	FieldWind        = "Wind"
	FieldAverageWind = "AverageWind"
)

// Message is one validated sensor reading. It is only ever constructed after
// the frame checksum has been verified; a Message is never partially filled.
type Message struct {
	// Protocol is always "Oregon".
	Protocol string
	// SensorType is the 16-bit code identifying the sensor model.
	SensorType uint16
	// RollingID is assigned by the sensor and changes when it loses power,
	// distinguishing units of the same model.
	RollingID uint8
	// Sequence is always 0 for this protocol.
	Sequence int
	// LowBattery is set when the sensor reports low battery.
	LowBattery bool
	// Fields maps field names to raw integer values. Temperature and wind
	// speeds are in tenths of their unit, as transmitted.
	Fields map[string]int
}

// MessageCallback is invoked synchronously for each validated frame, at most
// once per synchronization. Must be fast: it is called from the decode path.
type MessageCallback func(msg Message)

// ProtocolInfo describes the protocol for host-side registration. It is not
// consulted by the decode path.
type ProtocolInfo struct {
	Name              string
	Encoding          string
	Vendor            string
	MessageLengthBits int
	DefaultRepeat     int
}

// Info returns the static protocol descriptor.
func Info() ProtocolInfo {
	return ProtocolInfo{
		Name:              "Oregon",
		Encoding:          "Manchester",
		Vendor:            "Oregon Scientific",
		MessageLengthBits: 19 * 4,
		DefaultRepeat:     2,
	}
}
