// Package tone synthesizes a sine wave directly into device buffers.
package tone

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
)

// Generator writes a continuous sine wave in a fixed format. It is not safe
// for concurrent use; a device delivers callbacks one at a time.
type Generator struct {
	spec      audiodev.Spec
	freq      float64
	amplitude float64
	phase     float64
	step      float64
	put       func(b []byte, v float64)
}

// New returns a generator for spec producing freq Hz at amplitude (0..1).
func New(spec audiodev.Spec, freq, amplitude float64) (*Generator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if freq <= 0 || freq >= float64(spec.Freq)/2 {
		return nil, errors.Newf("tone frequency %.1f Hz outside (0, %d)", freq, spec.Freq/2).
			Component("tone").
			Category(errors.CategoryValidation).
			Build()
	}
	put := encoder(spec.Format)
	if put == nil {
		return nil, errors.Newf("unsupported sample format %s", spec.Format).
			Component("tone").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Generator{
		spec:      spec,
		freq:      freq,
		amplitude: math.Max(0, math.Min(1, amplitude)),
		step:      2 * math.Pi * freq / float64(spec.Freq),
		put:       put,
	}, nil
}

// Fill writes whole frames of the wave into stream, continuing from where the
// previous call stopped. A trailing partial frame is left untouched.
func (g *Generator) Fill(stream []byte) {
	bps := g.spec.Format.BytesPerSample()
	frame := g.spec.FrameSize()
	for off := 0; off+frame <= len(stream); off += frame {
		v := g.amplitude * math.Sin(g.phase)
		for ch := range g.spec.Channels {
			g.put(stream[off+ch*bps:], v)
		}
		g.phase += g.step
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
}

// Read implements io.Reader so a generator can feed queued playback.
func (g *Generator) Read(p []byte) (int, error) {
	n := len(p) / g.spec.FrameSize() * g.spec.FrameSize()
	g.Fill(p[:n])
	return n, nil
}

// SetAmplitude changes the level for subsequent frames. Callers that share the
// generator with a device callback must hold the device lock.
func (g *Generator) SetAmplitude(amplitude float64) {
	g.amplitude = math.Max(0, math.Min(1, amplitude))
}

// Spec returns the format the generator writes.
func (g *Generator) Spec() audiodev.Spec { return g.spec }

func encoder(f audiodev.SampleFormat) func([]byte, float64) {
	order := func(big bool) binary.ByteOrder {
		if big {
			return binary.BigEndian
		}
		return binary.LittleEndian
	}(f.IsBigEndian())

	switch f {
	case audiodev.FormatU8:
		return func(b []byte, v float64) { b[0] = uint8(int(math.Round(v*127)) + 128) }
	case audiodev.FormatS8:
		return func(b []byte, v float64) { b[0] = byte(int8(math.Round(v * 127))) }
	case audiodev.FormatS16LSB, audiodev.FormatS16MSB:
		return func(b []byte, v float64) { order.PutUint16(b, uint16(int16(math.Round(v*math.MaxInt16)))) }
	case audiodev.FormatU16LSB, audiodev.FormatU16MSB:
		return func(b []byte, v float64) { order.PutUint16(b, uint16(int(math.Round(v*math.MaxInt16))+32768)) }
	case audiodev.FormatS32LSB, audiodev.FormatS32MSB:
		return func(b []byte, v float64) { order.PutUint32(b, uint32(int32(math.Round(v*math.MaxInt32)))) }
	case audiodev.FormatF32LSB, audiodev.FormatF32MSB:
		return func(b []byte, v float64) { order.PutUint32(b, math.Float32bits(float32(v))) }
	default:
		return nil
	}
}
