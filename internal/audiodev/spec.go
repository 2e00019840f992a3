package audiodev

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/audiodevice/internal/errors"
)

// SampleFormat encodes sample width, signedness, byte order and float-ness
// using the same bit layout as SDL's audio format values.
type SampleFormat uint16

const (
	formatBitSizeMask SampleFormat = 0x00FF
	formatFloatBit    SampleFormat = 0x0100
	formatBigEndian   SampleFormat = 0x1000
	formatSignedBit   SampleFormat = 0x8000
)

const (
	FormatU8     SampleFormat = 0x0008
	FormatS8     SampleFormat = 0x8008
	FormatU16LSB SampleFormat = 0x0010
	FormatS16LSB SampleFormat = 0x8010
	FormatU16MSB SampleFormat = 0x1010
	FormatS16MSB SampleFormat = 0x9010
	FormatS32LSB SampleFormat = 0x8020
	FormatS32MSB SampleFormat = 0x9020
	FormatF32LSB SampleFormat = 0x8120
	FormatF32MSB SampleFormat = 0x9120
)

var formatNames = map[SampleFormat]string{
	FormatU8:     "u8",
	FormatS8:     "s8",
	FormatU16LSB: "u16le",
	FormatS16LSB: "s16le",
	FormatU16MSB: "u16be",
	FormatS16MSB: "s16be",
	FormatS32LSB: "s32le",
	FormatS32MSB: "s32be",
	FormatF32LSB: "f32le",
	FormatF32MSB: "f32be",
}

// BitSize returns the width of one sample in bits.
func (f SampleFormat) BitSize() int { return int(f & formatBitSizeMask) }

// BytesPerSample returns the width of one sample in bytes.
func (f SampleFormat) BytesPerSample() int { return f.BitSize() / 8 }

// IsFloat reports whether samples are IEEE floats.
func (f SampleFormat) IsFloat() bool { return f&formatFloatBit != 0 }

// IsBigEndian reports whether multi-byte samples are big endian.
func (f SampleFormat) IsBigEndian() bool { return f&formatBigEndian != 0 }

// IsSigned reports whether samples are signed.
func (f SampleFormat) IsSigned() bool { return f&formatSignedBit != 0 }

// Valid reports whether f is one of the known formats.
func (f SampleFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

func (f SampleFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(0x%04x)", uint16(f))
}

// ParseSampleFormat accepts names such as "s16", "s16le", "s16lsb", "f32" or "u8".
// Formats without an explicit byte order are little endian.
func ParseSampleFormat(s string) (SampleFormat, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("lsb", "le", "msb", "be", "_", "", "-", "").Replace(name)

	switch name {
	case "s16", "s16sys":
		return FormatS16LSB, nil
	case "u16":
		return FormatU16LSB, nil
	case "s32":
		return FormatS32LSB, nil
	case "f32", "float", "float32":
		return FormatF32LSB, nil
	}
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}

	return 0, errors.Newf("unknown sample format %q", s).
		Component("audiodev").
		Category(errors.CategoryValidation).
		Build()
}

// ChangeFlags tells the subsystem which properties of a requested Spec it may change.
type ChangeFlags int

const (
	AllowFrequencyChange ChangeFlags = 1 << iota
	AllowFormatChange
	AllowChannelsChange
	AllowSamplesChange

	AllowAnyChange = AllowFrequencyChange | AllowFormatChange | AllowChannelsChange | AllowSamplesChange
)

// Has reports whether every bit of flag is set.
func (c ChangeFlags) Has(flag ChangeFlags) bool { return c&flag == flag }

func (c ChangeFlags) String() string {
	if c == 0 {
		return "none"
	}
	if c.Has(AllowAnyChange) {
		return "any"
	}
	var parts []string
	for _, f := range []struct {
		flag ChangeFlags
		name string
	}{
		{AllowFrequencyChange, "frequency"},
		{AllowFormatChange, "format"},
		{AllowChannelsChange, "channels"},
		{AllowSamplesChange, "samples"},
	} {
		if c.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseChangeFlags parses a comma separated list such as "frequency,channels".
// "any" and "none" are also accepted.
func ParseChangeFlags(s string) (ChangeFlags, error) {
	var flags ChangeFlags
	for part := range strings.SplitSeq(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "", "none":
		case "any", "all":
			flags |= AllowAnyChange
		case "frequency", "freq", "rate":
			flags |= AllowFrequencyChange
		case "format":
			flags |= AllowFormatChange
		case "channels":
			flags |= AllowChannelsChange
		case "samples":
			flags |= AllowSamplesChange
		default:
			return 0, errors.Newf("unknown change flag %q", part).
				Component("audiodev").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return flags, nil
}

// Spec describes an audio stream format. Freq, Format, Channels and Samples are
// requested by the caller; Silence and Size are derived by Calculate.
type Spec struct {
	Freq     int          // sample frames per second
	Format   SampleFormat // sample encoding
	Channels int          // 1 mono, 2 stereo, ...
	Silence  byte         // byte value of silence
	Samples  int          // buffer size in sample frames
	Size     int          // buffer size in bytes
}

// DefaultSamples is used when a Spec leaves Samples at zero.
const DefaultSamples = 4096

// Calculate fills in Silence and Size from the other fields.
func (s *Spec) Calculate() {
	if s.Samples <= 0 {
		s.Samples = DefaultSamples
	}
	switch s.Format {
	case FormatU8, FormatU16LSB, FormatU16MSB:
		s.Silence = 0x80
	default:
		s.Silence = 0x00
	}
	s.Size = s.Format.BytesPerSample() * s.Channels * s.Samples
}

// FrameSize returns the number of bytes in one sample frame.
func (s Spec) FrameSize() int {
	return s.Format.BytesPerSample() * s.Channels
}

// BufferDuration returns how long one buffer of Samples frames plays for.
func (s Spec) BufferDuration() time.Duration {
	if s.Freq <= 0 {
		return 0
	}
	return time.Duration(s.Samples) * time.Second / time.Duration(s.Freq)
}

// Validate checks that the spec can be handed to a subsystem.
func (s Spec) Validate() error {
	var problem string
	switch {
	case s.Freq <= 0:
		problem = "frequency must be positive"
	case s.Channels <= 0:
		problem = "channel count must be positive"
	case !s.Format.Valid():
		problem = "unknown sample format " + s.Format.String()
	case s.Samples < 0:
		problem = "sample count cannot be negative"
	default:
		return nil
	}
	return errors.Newf("invalid audio spec: %s", problem).
		Component("audiodev").
		Category(errors.CategoryValidation).
		Context("freq", s.Freq).
		Context("channels", s.Channels).
		Context("format", s.Format.String()).
		Build()
}

// FillSilence writes the silence pattern for s into buf.
// Unsigned 16-bit formats get a proper midpoint rather than the single Silence byte.
func (s Spec) FillSilence(buf []byte) {
	switch s.Format {
	case FormatU16LSB:
		for i := 0; i+1 < len(buf); i += 2 {
			buf[i], buf[i+1] = 0x00, 0x80
		}
	case FormatU16MSB:
		for i := 0; i+1 < len(buf); i += 2 {
			buf[i], buf[i+1] = 0x80, 0x00
		}
	default:
		silence := s.Silence
		if s.Format == FormatU8 {
			silence = 0x80
		}
		for i := range buf {
			buf[i] = silence
		}
	}
}

func (s Spec) String() string {
	return fmt.Sprintf("%dHz %s %dch %d frames", s.Freq, s.Format, s.Channels, s.Samples)
}
