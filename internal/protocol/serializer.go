package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknownEntity — дельта для id без предшествующего базиса
	ErrUnknownEntity = errors.New("delta for unknown entity id")
	// ErrBadFrame — повреждённый или пустой сетевой кадр
	ErrBadFrame = errors.New("malformed wire frame")
)

// Флаги первого байта кадра
const (
	flagCompressed byte = 1 << 0
)

// compressThreshold — полезные нагрузки меньше не сжимаются
const compressThreshold = 256

// Serializer кодирует/декодирует конверты сообщений в сетевые кадры:
// [1 байт флагов][JSON, опционально zstd].
// Потокобезопасен: zstd encoder/decoder в stateless-режиме.
type Serializer struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewSerializer создаёт сериализатор с инициализированным zstd
func NewSerializer() (*Serializer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Serializer{enc: enc, dec: dec}, nil
}

// Marshal упаковывает сообщение в кадр
func (s *Serializer) Marshal(t MsgType, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации полезной нагрузки: %w", err)
		}
		raw = data
	}

	body, err := json.Marshal(Envelope{Type: t, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации конверта: %w", err)
	}

	if len(body) >= compressThreshold {
		compressed := s.enc.EncodeAll(body, make([]byte, 0, len(body)/2+1))
		if len(compressed) < len(body) {
			return append([]byte{flagCompressed}, compressed...), nil
		}
	}
	return append([]byte{0}, body...), nil
}

// Unmarshal распаковывает кадр в конверт
func (s *Serializer) Unmarshal(frame []byte) (*Envelope, error) {
	if len(frame) < 2 {
		return nil, ErrBadFrame
	}

	flags, body := frame[0], frame[1:]
	if flags&flagCompressed != 0 {
		decoded, err := s.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrBadFrame, err)
		}
		body = decoded
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return &env, nil
}

// DecodePayload десериализует полезную нагрузку конверта в указанный тип
func DecodePayload(env *Envelope, out interface{}) error {
	if env.Payload == nil {
		return fmt.Errorf("%w: пустая полезная нагрузка %s", ErrBadFrame, env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("ошибка десериализации %s: %w", env.Type, err)
	}
	return nil
}

// MarshalPayload сериализует значение в RawMessage (для Sync-сообщений)
func MarshalPayload(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

// MustPayload — вариант MarshalPayload для тестов и констант
func MustPayload(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
