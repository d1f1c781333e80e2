package network

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeChannels создаёт пару связанных каналов поверх net.Pipe
func pipeChannels(t *testing.T) (*TCPChannel, *TCPChannel) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := NewTCPChannel(a), NewTCPChannel(b)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestTCPChannel_RoundTrip(t *testing.T) {
	ca, cb := pipeChannels(t)

	frames := [][]byte{
		[]byte(`{"type":"ping"}`),
		[]byte("x"),
		make([]byte, 4096),
	}

	go func() {
		for _, f := range frames {
			ca.Send(f)
		}
	}()

	for i, want := range frames {
		got, err := cb.Receive()
		require.NoError(t, err, "кадр %d", i)
		assert.Equal(t, want, got, "кадр %d пришёл искажённым", i)
	}
}

func TestTCPChannel_RejectsOversizedSend(t *testing.T) {
	ca, _ := pipeChannels(t)

	err := ca.Send(make([]byte, maxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestTCPChannel_RejectsBogusHeader(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	cb := NewTCPChannel(b)
	defer cb.Close()

	// Заголовок обещает кадр больше допустимого
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], maxFrameSize*2)
	go a.Write(hdr[:])

	_, err := cb.Receive()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestTCPChannel_RejectsZeroHeader(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	cb := NewTCPChannel(b)
	defer cb.Close()

	var hdr [4]byte
	go a.Write(hdr[:])

	_, err := cb.Receive()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestTCPChannel_Stats(t *testing.T) {
	ca, cb := pipeChannels(t)

	payload := []byte("statistics")
	done := make(chan struct{})
	go func() {
		cb.Receive()
		close(done)
	}()
	require.NoError(t, ca.Send(payload))
	<-done

	sent := ca.Stats()
	assert.Equal(t, uint64(1), sent.FramesSent)
	assert.Equal(t, uint64(len(payload)+4), sent.BytesSent, "учитывается префикс длины")

	recv := cb.Stats()
	assert.Equal(t, uint64(1), recv.FramesReceived)
	assert.WithinDuration(t, time.Now(), recv.LastActivity, time.Second)
}

func TestTCPChannel_ReadDeadline(t *testing.T) {
	_, cb := pipeChannels(t)

	require.NoError(t, cb.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := cb.Receive()
	assert.Error(t, err, "чтение без данных должно упереться в дедлайн")
}
