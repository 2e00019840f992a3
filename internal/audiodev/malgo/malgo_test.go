package malgo

import (
	"encoding/hex"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
)

func TestToMalgoFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       audiodev.SampleFormat
		allowed  audiodev.ChangeFlags
		want     malgo.FormatType
		obtained audiodev.SampleFormat
		wantErr  bool
	}{
		{audiodev.FormatU8, 0, malgo.FormatU8, audiodev.FormatU8, false},
		{audiodev.FormatS16LSB, 0, malgo.FormatS16, audiodev.FormatS16LSB, false},
		{audiodev.FormatS32LSB, 0, malgo.FormatS32, audiodev.FormatS32LSB, false},
		{audiodev.FormatF32LSB, 0, malgo.FormatF32, audiodev.FormatF32LSB, false},
		{audiodev.FormatS16MSB, 0, malgo.FormatUnknown, audiodev.FormatS16MSB, true},
		{audiodev.FormatS16MSB, audiodev.AllowFormatChange, malgo.FormatS16, audiodev.FormatS16LSB, false},
	}

	for _, tt := range tests {
		got, obtained, err := toMalgoFormat(tt.in, tt.allowed)
		if tt.wantErr {
			require.Error(t, err, tt.in.String())
			continue
		}
		require.NoError(t, err, tt.in.String())
		assert.Equal(t, tt.want, got, tt.in.String())
		assert.Equal(t, tt.obtained, obtained, tt.in.String())
	}
}

func TestDecodeID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ":1,0", decodeID(hex.EncodeToString([]byte(":1,0\x00\x00"))))
	assert.Equal(t, "not-hex", decodeID("not-hex"))
}

func TestSelectDeviceEmpty(t *testing.T) {
	t.Parallel()

	_, err := SelectDevice(nil, "USB Audio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "USB Audio")
}

func testSpec() audiodev.Spec {
	s := audiodev.Spec{Freq: 48000, Format: audiodev.FormatS16LSB, Channels: 2, Samples: 4}
	s.Calculate()
	return s
}

func TestOnDataQueuedPlayback(t *testing.T) {
	t.Parallel()

	d := newDevice(testSpec(), false, nil, nil, 64)
	require.NoError(t, d.enqueue([]byte{1, 2, 3, 4, 5, 6}))
	require.Error(t, d.enqueue(make([]byte, 100)), "queue limit")

	out := make([]byte, 16)
	for i := range out {
		out[i] = 0xff
	}
	d.onData(out, nil, 4)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out[:6])
	assert.Equal(t, make([]byte, 10), out[6:], "underrun is filled with silence")
	assert.Equal(t, 0, d.queue.Length())
}

func TestOnDataQueueHeldWhileLocked(t *testing.T) {
	t.Parallel()

	d := newDevice(testSpec(), false, nil, nil, 64)
	require.NoError(t, d.enqueue([]byte{1, 2, 3, 4}))

	d.gate.Lock()
	out := []byte{9, 9, 9, 9}
	d.onData(out, nil, 1)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
	assert.Equal(t, 4, d.queue.Length(), "locked device must not consume the queue")

	d.gate.Unlock()
	d.onData(out, nil, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
	assert.Equal(t, 0, d.queue.Length())
}

func TestOnDataCallbackAndLock(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(_ any, stream []byte) {
		calls++
		for i := range stream {
			stream[i] = 7
		}
	}
	d := newDevice(testSpec(), false, fn, nil, 0)
	assert.Nil(t, d.queue)
	require.Error(t, d.enqueue([]byte{1}))

	out := make([]byte, 16)
	d.onData(out, nil, 4)
	assert.Equal(t, 1, calls)
	assert.Equal(t, byte(7), out[15])

	d.gate.Lock()
	d.onData(out, nil, 4)
	assert.Equal(t, 1, calls, "callback must not run while locked")
	assert.Equal(t, make([]byte, 16), out, "locked playback renders silence")
	d.gate.Unlock()
}

func TestOnDataCapture(t *testing.T) {
	t.Parallel()

	var got []byte
	d := newDevice(testSpec(), true, func(_ any, stream []byte) {
		got = append([]byte(nil), stream...)
	}, nil, 0)

	in := []byte{9, 9, 9, 9, 8, 8, 8, 8}
	d.onData(nil, in, 2)
	assert.Equal(t, in, got)
}

func TestParseBackends(t *testing.T) {
	t.Parallel()

	got, err := ParseBackends([]string{"alsa", " Pulse ", "null"})
	require.NoError(t, err)
	assert.Equal(t, []malgo.Backend{malgo.BackendAlsa, malgo.BackendPulseaudio, malgo.BackendNull}, got)

	got, err = ParseBackends(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseBackends([]string{"directsound9"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
