// ABOUTME: Wire codec for sensor relay telemetry records
// ABOUTME: Fixed 38-byte little-endian layout shared with the relay firmware
package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// RecordSize is the exact on-wire size of one telemetry record.
const RecordSize = 38

const nameSize = 16

// Record is one telemetry sample from a remote relay.
type Record struct {
	Timestamp   uint32
	Temperature float32
	Humidity    float32
	Pressure    float32
	UVIndex     float32
	Battery     uint8
	SensorID    uint8
	Name        string
}

// Marshal encodes the record in the fixed wire layout. Names longer than
// the field are truncated.
func (r Record) Marshal() []byte {
	out := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(out[0:], r.Timestamp)
	binary.LittleEndian.PutUint32(out[4:], math.Float32bits(r.Temperature))
	binary.LittleEndian.PutUint32(out[8:], math.Float32bits(r.Humidity))
	binary.LittleEndian.PutUint32(out[12:], math.Float32bits(r.Pressure))
	binary.LittleEndian.PutUint32(out[16:], math.Float32bits(r.UVIndex))
	out[20] = r.Battery
	out[21] = r.SensorID
	copy(out[22:22+nameSize], r.Name)
	return out
}

// Unmarshal decodes a wire record. Anything other than exactly 38 bytes
// is rejected.
func Unmarshal(data []byte) (Record, error) {
	if len(data) != RecordSize {
		return Record{}, fmt.Errorf("invalid record size: got %d, want %d", len(data), RecordSize)
	}

	name := string(data[22 : 22+nameSize])
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	return Record{
		Timestamp:   binary.LittleEndian.Uint32(data[0:]),
		Temperature: math.Float32frombits(binary.LittleEndian.Uint32(data[4:])),
		Humidity:    math.Float32frombits(binary.LittleEndian.Uint32(data[8:])),
		Pressure:    math.Float32frombits(binary.LittleEndian.Uint32(data[12:])),
		UVIndex:     math.Float32frombits(binary.LittleEndian.Uint32(data[16:])),
		Battery:     data[20],
		SensorID:    data[21],
		Name:        name,
	}, nil
}
