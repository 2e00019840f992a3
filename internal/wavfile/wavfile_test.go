package wavfile

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevice/internal/audiodev"
)

func writeFile(t *testing.T, spec audiodev.Spec, pcm []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, spec)
	require.NoError(t, err)
	n, err := w.Write(pcm)
	require.NoError(t, err)
	require.Equal(t, len(pcm), n)
	require.NoError(t, w.Close())
	return path
}

func readAll(t *testing.T, path string) (audiodev.Spec, []byte) {
	t.Helper()
	r, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return r.Spec(), out
}

func TestS16StereoRoundTrip(t *testing.T) {
	t.Parallel()

	spec := audiodev.Spec{Freq: 44100, Format: audiodev.FormatS16LSB, Channels: 2}
	pcm := make([]byte, 0, 40)
	for _, v := range []int16{0, 1, -1, 32767, -32768, 1000, -1000, 12, 13, 14} {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(v))
	}

	got, out := readAll(t, writeFile(t, spec, pcm))
	assert.Equal(t, spec, got)
	assert.Equal(t, pcm, out)
}

func TestU8RoundTrip(t *testing.T) {
	t.Parallel()

	spec := audiodev.Spec{Freq: 8000, Format: audiodev.FormatU8, Channels: 1}
	pcm := []byte{0, 1, 127, 128, 129, 255}

	got, out := readAll(t, writeFile(t, spec, pcm))
	assert.Equal(t, audiodev.FormatU8, got.Format)
	assert.Equal(t, pcm, out)
}

func TestBigEndianStoredAsLittleEndian(t *testing.T) {
	t.Parallel()

	spec := audiodev.Spec{Freq: 8000, Format: audiodev.FormatS16MSB, Channels: 1}
	pcm := []byte{0x12, 0x34}

	got, out := readAll(t, writeFile(t, spec, pcm))
	assert.Equal(t, audiodev.FormatS16LSB, got.Format)
	assert.Equal(t, []byte{0x34, 0x12}, out)
}

func TestFloatQuantizedTo16Bit(t *testing.T) {
	t.Parallel()

	spec := audiodev.Spec{Freq: 48000, Format: audiodev.FormatF32LSB, Channels: 1}
	var pcm []byte
	for _, v := range []float32{0, 1, -1, 2} {
		pcm = binary.LittleEndian.AppendUint32(pcm, math.Float32bits(v))
	}

	got, out := readAll(t, writeFile(t, spec, pcm))
	assert.Equal(t, audiodev.FormatS16LSB, got.Format)
	require.Len(t, out, 8)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(out[0:])))
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(out[2:])))
	assert.Equal(t, int16(-math.MaxInt16), int16(binary.LittleEndian.Uint16(out[4:])))
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(out[6:])), "clipped")
}

func TestOpenRejectsNonWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF data"), 0o600))
	_, err := Open(path)
	require.Error(t, err)
}

func TestRescale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v, from, to, want int
	}{
		{255, 8, 16, 127 << 8},
		{0, 8, 16, -128 << 8},
		{-32768, 16, 8, 0},
		{32767, 16, 8, 255},
		{-1, 24, 32, -256},
		{1 << 20, 24, 24, 1 << 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rescale(tt.v, tt.from, tt.to), "%d from %d to %d", tt.v, tt.from, tt.to)
	}
}
