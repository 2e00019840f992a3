// Package wavfile reads and writes WAV files in audio device sample formats.
package wavfile

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
)

// Reader decodes a WAV file into device-format PCM.
type Reader struct {
	file *os.File
	dec  *wav.Decoder
	spec audiodev.Spec
	bits int
	buf  *audio.IntBuffer
}

// SpecForBitDepth picks the device format that holds WAV samples of bits.
func SpecForBitDepth(bits int) (audiodev.SampleFormat, bool) {
	switch bits {
	case 8:
		return audiodev.FormatU8, true
	case 16:
		return audiodev.FormatS16LSB, true
	case 24, 32:
		return audiodev.FormatS32LSB, true
	default:
		return 0, false
	}
}

// Open opens path and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileError(err, "open_wav", path)
	}

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, errors.Newf("%s is not a valid WAV file", path).
			Component("wavfile").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	bits := int(dec.BitDepth)
	format, ok := SpecForBitDepth(bits)
	if !ok || dec.WavAudioFormat != 1 {
		_ = f.Close()
		return nil, errors.Newf("unsupported WAV encoding: %d-bit, format tag %d", bits, dec.WavAudioFormat).
			Component("wavfile").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	spec := audiodev.Spec{
		Freq:     int(dec.SampleRate),
		Format:   format,
		Channels: int(dec.NumChans),
	}
	return &Reader{
		file: f,
		dec:  dec,
		spec: spec,
		bits: bits,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: spec.Freq, NumChannels: spec.Channels},
			SourceBitDepth: bits,
		},
	}, nil
}

// Spec returns the device format Read produces. Samples and Size are unset.
func (r *Reader) Spec() audiodev.Spec { return r.spec }

// Read fills p with whole frames of PCM in Spec's format.
func (r *Reader) Read(p []byte) (int, error) {
	frame := r.spec.FrameSize()
	samples := len(p) / frame * r.spec.Channels
	if samples == 0 {
		return 0, nil
	}
	if cap(r.buf.Data) < samples {
		r.buf.Data = make([]int, samples)
	}
	r.buf.Data = r.buf.Data[:samples]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil {
		return 0, errors.New(err).
			Component("wavfile").
			Category(errors.CategoryFileIO).
			Context("operation", "decode_wav").
			Build()
	}
	if n == 0 {
		return 0, io.EOF
	}
	written := fromInts(r.spec.Format, r.bits, r.buf.Data[:n], p)
	return written * r.spec.Format.BytesPerSample(), nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.file.Close() }

// Writer encodes device-format PCM into a WAV file.
type Writer struct {
	file *os.File
	enc  *wav.Encoder
	spec audiodev.Spec
	buf  *audio.IntBuffer
}

// Create creates path for PCM in spec's format. Float samples are stored as 16-bit.
func Create(path string, spec audiodev.Spec) (*Writer, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fileError(err, "create_wav", path)
	}
	bits := wavBitDepth(spec.Format)
	return &Writer{
		file: f,
		enc:  wav.NewEncoder(f, spec.Freq, bits, spec.Channels, 1),
		spec: spec,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: spec.Freq, NumChannels: spec.Channels},
			SourceBitDepth: bits,
		},
	}, nil
}

// Write encodes whole samples from p. Trailing bytes of a partial sample are ignored.
func (w *Writer) Write(p []byte) (int, error) {
	samples := len(p) / w.spec.Format.BytesPerSample()
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	toInts(w.spec.Format, p, w.buf.Data)

	if err := w.enc.Write(w.buf); err != nil {
		return 0, fileError(err, "encode_wav", w.file.Name())
	}
	return len(p), nil
}

// Close finalizes the WAV header and closes the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fileError(encErr, "finalize_wav", w.file.Name())
	}
	if fileErr != nil {
		return fileError(fileErr, "close_wav", w.file.Name())
	}
	return nil
}

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component("wavfile").
		Category(errors.CategoryFileIO).
		Context("operation", op).
		FileContext(path, 0).
		Build()
}
