package network

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TCPChannel реализует NetChannel поверх net.Conn.
// Кадрирование: [uint32 LE длина][кадр].
type TCPChannel struct {
	conn net.Conn

	sendMu sync.Mutex
	recvMu sync.Mutex

	statsMu sync.Mutex
	stats   ConnectionStats
}

// NewTCPChannel оборачивает установленное соединение
func NewTCPChannel(conn net.Conn) *TCPChannel {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true) // Игровой трафик не терпит Nagle
	}
	return &TCPChannel{
		conn: conn,
		stats: ConnectionStats{
			LastActivity: time.Now(),
			RemoteAddr:   conn.RemoteAddr().String(),
		},
	}
}

// DialTCP устанавливает соединение с сервером
func DialTCP(addr string, timeout time.Duration) (*TCPChannel, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", addr, err)
	}
	return NewTCPChannel(conn), nil
}

// Send отправляет один кадр
func (tc *TCPChannel) Send(frame []byte) error {
	if len(frame) > maxFrameSize {
		return ErrFrameTooLarge
	}

	tc.sendMu.Lock()
	defer tc.sendMu.Unlock()

	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(frame)))

	if _, err := tc.conn.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("tcp write size: %w", err)
	}
	if _, err := tc.conn.Write(frame); err != nil {
		return fmt.Errorf("tcp write frame: %w", err)
	}

	tc.statsMu.Lock()
	tc.stats.FramesSent++
	tc.stats.BytesSent += uint64(len(frame)) + 4
	tc.stats.LastActivity = time.Now()
	tc.statsMu.Unlock()
	return nil
}

// Receive читает следующий кадр
func (tc *TCPChannel) Receive() ([]byte, error) {
	tc.recvMu.Lock()
	defer tc.recvMu.Unlock()

	var sizeBuf [4]byte
	if _, err := io.ReadFull(tc.conn, sizeBuf[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size == 0 || size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(tc.conn, frame); err != nil {
		return nil, err
	}

	tc.statsMu.Lock()
	tc.stats.FramesReceived++
	tc.stats.BytesReceived += uint64(size) + 4
	tc.stats.LastActivity = time.Now()
	tc.statsMu.Unlock()
	return frame, nil
}

// SetReadDeadline ограничивает ожидание Receive
func (tc *TCPChannel) SetReadDeadline(t time.Time) error {
	return tc.conn.SetReadDeadline(t)
}

// Close закрывает соединение
func (tc *TCPChannel) Close() error {
	return tc.conn.Close()
}

// RemoteAddr возвращает адрес удалённой стороны
func (tc *TCPChannel) RemoteAddr() string {
	return tc.conn.RemoteAddr().String()
}

// Stats возвращает статистику соединения
func (tc *TCPChannel) Stats() ConnectionStats {
	tc.statsMu.Lock()
	defer tc.statsMu.Unlock()
	return tc.stats
}
