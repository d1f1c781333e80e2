package network

import (
	"fmt"
	"time"

	"github.com/xtaci/kcp-go/v5"
)

// KCPChannel реализует NetChannel поверх KCP (надёжный UDP).
// Кадрирование то же, что у TCP: KCP в stream-режиме отдаёт поток байт.
type KCPChannel struct {
	*TCPChannel
	sess *kcp.UDPSession
}

// tuneKCP настраивает сессию под игровой трафик
func tuneKCP(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	sess.SetWindowSize(512, 512)
	sess.SetMtu(1400) // Стандартный MTU для интернета
}

// NewKCPChannel оборачивает принятую KCP-сессию
func NewKCPChannel(sess *kcp.UDPSession) *KCPChannel {
	tuneKCP(sess)
	return &KCPChannel{
		TCPChannel: &TCPChannel{
			conn: sess,
			stats: ConnectionStats{
				LastActivity: time.Now(),
				RemoteAddr:   sess.RemoteAddr().String(),
			},
		},
		sess: sess,
	}
}

// DialKCP устанавливает KCP-соединение с сервером
func DialKCP(addr string) (*KCPChannel, error) {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("kcp dial %s: %w", addr, err)
	}
	return NewKCPChannel(sess), nil
}
