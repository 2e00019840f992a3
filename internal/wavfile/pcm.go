package wavfile

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/audiodevice/internal/audiodev"
)

// wavBitDepth is the WAV sample width used to store format f.
func wavBitDepth(f audiodev.SampleFormat) int {
	switch f {
	case audiodev.FormatU8, audiodev.FormatS8:
		return 8
	case audiodev.FormatS32LSB, audiodev.FormatS32MSB:
		return 32
	default:
		// 16-bit formats, and float which is quantized to 16 bits
		return 16
	}
}

func byteOrder(f audiodev.SampleFormat) binary.ByteOrder {
	if f.IsBigEndian() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// toInts converts device samples to the integer representation go-audio
// uses for a WAV file of wavBitDepth(f) bits. 8-bit WAV is unsigned.
func toInts(f audiodev.SampleFormat, b []byte, out []int) int {
	bps := f.BytesPerSample()
	order := byteOrder(f)
	n := min(len(b)/bps, len(out))
	for i := range n {
		s := b[i*bps:]
		switch f {
		case audiodev.FormatU8:
			out[i] = int(s[0])
		case audiodev.FormatS8:
			out[i] = int(int8(s[0])) + 128
		case audiodev.FormatS16LSB, audiodev.FormatS16MSB:
			out[i] = int(int16(order.Uint16(s)))
		case audiodev.FormatU16LSB, audiodev.FormatU16MSB:
			out[i] = int(order.Uint16(s)) - 32768
		case audiodev.FormatS32LSB, audiodev.FormatS32MSB:
			out[i] = int(int32(order.Uint32(s)))
		case audiodev.FormatF32LSB, audiodev.FormatF32MSB:
			v := float64(math.Float32frombits(order.Uint32(s)))
			out[i] = int(math.Round(math.Max(-1, math.Min(1, v)) * math.MaxInt16))
		}
	}
	return n
}

// fromInts writes WAV samples of srcBits into b in device format f.
func fromInts(f audiodev.SampleFormat, srcBits int, in []int, b []byte) int {
	bps := f.BytesPerSample()
	order := byteOrder(f)
	n := min(len(b)/bps, len(in))
	for i := range n {
		v := rescale(in[i], srcBits, wavBitDepth(f))
		d := b[i*bps:]
		switch f {
		case audiodev.FormatU8:
			d[0] = uint8(v)
		case audiodev.FormatS8:
			d[0] = byte(int8(v - 128))
		case audiodev.FormatS16LSB, audiodev.FormatS16MSB:
			order.PutUint16(d, uint16(int16(v)))
		case audiodev.FormatU16LSB, audiodev.FormatU16MSB:
			order.PutUint16(d, uint16(v+32768))
		case audiodev.FormatS32LSB, audiodev.FormatS32MSB:
			order.PutUint32(d, uint32(int32(v)))
		case audiodev.FormatF32LSB, audiodev.FormatF32MSB:
			order.PutUint32(d, math.Float32bits(float32(v)/math.MaxInt16))
		}
	}
	return n
}

// rescale converts a sample between WAV bit depths. 8-bit samples are
// unsigned and wider ones signed.
func rescale(v, from, to int) int {
	if from == to {
		return v
	}
	if from == 8 {
		v -= 128
	}
	var out int
	if to > from {
		out = v << (to - from)
	} else {
		out = v >> (from - to)
	}
	if to == 8 {
		out += 128
	}
	return out
}
