package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializer_RoundTrip(t *testing.T) {
	s, err := NewSerializer()
	require.NoError(t, err)

	cmd := Command{Seq: 5, DX: 1, DY: -0.5, Sprinting: true, JumpPressed: true}
	frame, err := s.Marshal(MsgPlayerInput, cmd)
	require.NoError(t, err)

	env, err := s.Unmarshal(frame)
	require.NoError(t, err)
	assert.Equal(t, MsgPlayerInput, env.Type)

	var back Command
	require.NoError(t, DecodePayload(env, &back))
	assert.Equal(t, cmd, back)
}

func TestSerializer_CompressesLargePayloads(t *testing.T) {
	s, err := NewSerializer()
	require.NoError(t, err)

	big := Frame{ServerTick: 1, PlayerEntityID: 1}
	for i := 0; i < 64; i++ {
		big.EntityBaselines = append(big.EntityBaselines, Snapshot{ID: uint64(i), WX: 100, WY: 100})
	}

	frame, err := s.Marshal(MsgFrame, big)
	require.NoError(t, err)
	assert.Equal(t, flagCompressed, frame[0]&flagCompressed, "большой кадр должен сжиматься")

	env, err := s.Unmarshal(frame)
	require.NoError(t, err)

	var back Frame
	require.NoError(t, DecodePayload(env, &back))
	assert.Len(t, back.EntityBaselines, 64)
}

func TestSerializer_RejectsGarbage(t *testing.T) {
	s, err := NewSerializer()
	require.NoError(t, err)

	_, err = s.Unmarshal(nil)
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = s.Unmarshal([]byte{0, '{', 'b', 'a', 'd'})
	assert.ErrorIs(t, err, ErrBadFrame)

	// Мусор с флагом компрессии
	_, err = s.Unmarshal([]byte(strings.Repeat("\x01", 16)))
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestCommand_DtFallback(t *testing.T) {
	c := Command{Seq: 1}
	assert.InDelta(t, 0.05, c.Dt(50_000_000), 1e-9) // 50ms

	ms := 16.0
	c.DtMs = &ms
	assert.InDelta(t, 0.016, c.Dt(50_000_000), 1e-9)

	bad := -5.0
	c.DtMs = &bad
	assert.InDelta(t, 0.05, c.Dt(50_000_000), 1e-9, "неположительный dt заменяется тиком сервера")
}
