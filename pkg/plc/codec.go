package plc

import (
	"errors"
	"math"
)

// ErrShortRegisters is returned when a float decode is attempted with fewer
// than the two registers that carry one 32-bit value.
var ErrShortRegisters = errors.New("plc: need two registers to decode float")

// EncodeFloat packs a 32-bit float into two 16-bit registers, low word first.
func EncodeFloat(v float32) [2]uint16 {
	bits := math.Float32bits(v)
	return [2]uint16{
		uint16(bits & 0xFFFF), // low word
		uint16(bits >> 16),    // high word
	}
}

// DecodeFloat unpacks two 16-bit registers (low word first) into a float.
func DecodeFloat(words []uint16) (float32, error) {
	if len(words) < 2 {
		return 0, ErrShortRegisters
	}
	bits := uint32(words[1])<<16 | uint32(words[0])
	return math.Float32frombits(bits), nil
}

// wordsToBytes lays registers out on the wire: register order preserved,
// each register big-endian.
func wordsToBytes(words []uint16) []byte {
	out := make([]byte, 0, len(words)*2)
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

// bytesToWords reverses wordsToBytes.
func bytesToWords(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, errors.New("plc: odd register payload length")
	}
	words := make([]uint16, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		words = append(words, uint16(data[i])<<8|uint16(data[i+1]))
	}
	return words, nil
}
