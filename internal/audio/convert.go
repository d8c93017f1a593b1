package audio

import (
	"encoding/binary"
	"math"
)

// ConvertF32 maps a float sample in [-1.0, 1.0] to the int16 range.
// Out-of-range input is clamped; NaN becomes silence.
func ConvertF32(v float32) int {
	if v != v {
		return 0
	}
	s := math.Round(float64(v) * 32768)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int(s)
}

// ConvertS16 is the identity conversion.
func ConvertS16(v int16) int {
	return int(v)
}

// ConvertU8 re-centres an unsigned 8-bit sample and widens it to 16 bits.
func ConvertU8(v uint8) int {
	return (int(v) - 128) << 8
}

// ConvertS24 narrows a sign-extended 24-bit sample to 16 bits.
func ConvertS24(v int32) int {
	return int(v >> 8)
}

// ConvertS32 narrows a 32-bit sample to 16 bits.
func ConvertS32(v int32) int {
	return int(v >> 16)
}

// AppendSamples decodes little-endian interleaved PCM in format f and appends
// one int16-range value per sample to dst, preserving order. A trailing
// partial sample is ignored. The caller owns dst, so a reused slice keeps the
// device callback allocation-free once it has grown to the block size.
func AppendSamples(dst []int, f Format, raw []byte) []int {
	size := f.BytesPerSample()
	if size == 0 {
		return dst
	}
	n := len(raw) / size
	for i := 0; i < n; i++ {
		b := raw[i*size : (i+1)*size]
		var s int
		switch f {
		case FormatU8:
			s = ConvertU8(b[0])
		case FormatS16:
			s = ConvertS16(int16(binary.LittleEndian.Uint16(b)))
		case FormatS24:
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			s = ConvertS24(v)
		case FormatS32:
			s = ConvertS32(int32(binary.LittleEndian.Uint32(b)))
		case FormatF32:
			s = ConvertF32(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
		dst = append(dst, s)
	}
	return dst
}
