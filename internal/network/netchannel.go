// Package network предоставляет игровой транспорт: кадры протокола
// поверх TCP или KCP (надёжный UDP) с единым интерфейсом канала.
package network

import (
	"errors"
	"time"
)

// Ограничение на размер кадра. Кадры больше считаются повреждением
// потока и разрывают соединение.
const maxFrameSize = 65536 // 64KB максимум

// ErrFrameTooLarge возвращается при нарушении лимита кадра
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
	LastActivity   time.Time
	RemoteAddr     string
}

// NetChannel — канал доставки кадров протокола. Send и Receive
// потокобезопасны относительно друг друга: writer-горутина шлёт,
// reader-горутина читает. Close можно звать из любой горутины.
type NetChannel interface {
	// Send отправляет один кадр (length-prefixed)
	Send(frame []byte) error

	// Receive блокирует до следующего кадра или ошибки потока
	Receive() ([]byte, error)

	// SetReadDeadline ограничивает ожидание Receive (для handshake)
	SetReadDeadline(t time.Time) error

	Close() error
	RemoteAddr() string
	Stats() ConnectionStats
}
