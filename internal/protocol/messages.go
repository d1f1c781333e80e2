// Package protocol определяет wire-формат: команды ввода, кадры состояния,
// sync-сообщения и кодек дельт сущностей.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/annel0/realm-server/internal/physics"
)

// MsgType тип сообщения в конверте
type MsgType string

const (
	MsgLogin       MsgType = "login"
	MsgLoginAck    MsgType = "login-ack"
	MsgPlayerInput MsgType = "player-input"
	MsgFrame       MsgType = "frame"
	MsgSync        MsgType = "sync"
	MsgPing        MsgType = "ping"
	MsgPong        MsgType = "pong"
	MsgCameraPose  MsgType = "camera-pose"
)

// Envelope универсальный контейнер сообщения
type Envelope struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Login запрос на вход (клиент → сервер)
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token,omitempty"` // JWT вместо пары логин/пароль
	RealmID  string `json:"realmId,omitempty"`
	ClientID string `json:"clientId,omitempty"` // Для реконнекта в dormant-сессию
}

// LoginAck ответ на вход (сервер → клиент)
type LoginAck struct {
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	PlayerEntityID uint64 `json:"playerEntityId,omitempty"`
	RealmID        string `json:"realmId,omitempty"`
	Token          string `json:"token,omitempty"` // JWT для REST API
}

// Command одна квантованная единица ввода игрока (клиент → сервер).
// Seq строго возрастает в пределах соединения.
type Command struct {
	Seq         uint32   `json:"seq"`
	DX          float64  `json:"dx"`
	DY          float64  `json:"dy"`
	Sprinting   bool     `json:"sprinting"`
	Jump        bool     `json:"jump"`
	JumpPressed bool     `json:"jumpPressed,omitempty"`
	DtMs        *float64 `json:"dtMs,omitempty"`
}

// PlayerInput пакет команд, накопленных клиентом с прошлой отправки
type PlayerInput struct {
	Commands []Command `json:"commands"`
}

// Input преобразует команду во ввод ядра кинематики
func (c Command) Input() physics.Input {
	return physics.Input{
		DX:          c.DX,
		DY:          c.DY,
		Sprint:      c.Sprinting,
		JumpHeld:    c.Jump,
		JumpPressed: c.JumpPressed,
	}
}

// Dt возвращает длительность команды в секундах.
// Отсутствующий или некорректный dtMs заменяется серверным тиком.
func (c Command) Dt(fallback time.Duration) float64 {
	if c.DtMs != nil && *c.DtMs > 0 {
		return *c.DtMs / 1000.0
	}
	return fallback.Seconds()
}

// Frame минимальный кадр состояния (сервер → клиент, каждый тик)
type Frame struct {
	ServerTick            uint32     `json:"serverTick"`
	LastProcessedInputSeq uint32     `json:"lastProcessedInputSeq"`
	PlayerEntityID        uint64     `json:"playerEntityId"`
	EntityBaselines       []Snapshot `json:"entityBaselines,omitempty"`
	EntityDeltas          []Delta    `json:"entityDeltas,omitempty"`
	EntityExits           []uint64   `json:"entityExits,omitempty"`
}

// Концерны sync-сообщений. Каждый — монотонно улучшающееся частичное
// представление одного аспекта; отправляется только при смене ревизии.
const (
	ConcernGems    = "gems"
	ConcernEditor  = "editor"
	ConcernMount   = "mount"
	ConcernChunk   = "chunk"
	ConcernProps   = "props"
	ConcernNames   = "names"
	ConcernCursors = "cursors"
	ConcernPhysics = "physics"
)

// Sync частичное обновление одного концерна (сервер → клиент, по изменению)
type Sync struct {
	Concern  string          `json:"concern"`
	Revision uint64          `json:"revision"`
	Payload  json.RawMessage `json:"payload"`
}

// PhysicsSync полезная нагрузка концерна physics
type PhysicsSync struct {
	Params physics.Params `json:"params"`
}

// MountSync полезная нагрузка концерна mount
type MountSync struct {
	MountID uint64 `json:"mountId"` // 0 — не верхом
}

// GemsSync полезная нагрузка концерна gems
type GemsSync struct {
	Gems int `json:"gems"`
}

// EditorSync полезная нагрузка концерна editor
type EditorSync struct {
	Editor bool `json:"editor"`
}

// TileState один тайл внутри чанка (локальные координаты)
type TileState struct {
	X    int   `json:"x"`
	Y    int   `json:"y"`
	Kind uint8 `json:"kind"`
}

// ChunkSync полезная нагрузка концерна chunk: один чанк целиком.
// Пересылается при любом изменении тайлов внутри него.
type ChunkSync struct {
	CX    int         `json:"cx"`
	CY    int         `json:"cy"`
	Tiles []TileState `json:"tiles"`
}

// PropState статический объект мира
type PropState struct {
	ID   uint64  `json:"id"`
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// PropsSync полезная нагрузка концерна props: полный список
type PropsSync struct {
	Props []PropState `json:"props"`
}

// NamesSync полезная нагрузка концерна names: id сущности → имя игрока
type NamesSync struct {
	Names map[uint64]string `json:"names"`
}

// CursorState позиция курсора редактора другого клиента
type CursorState struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CursorsSync полезная нагрузка концерна cursors: id клиента → курсор
type CursorsSync struct {
	Cursors map[uint64]CursorState `json:"cursors"`
}

// CameraPose позиция камеры клиента и курсор редактора (клиент → сервер).
// Шлётся изредка, при заметном смещении; не входит в поток ввода.
type CameraPose struct {
	X      float64      `json:"x"`
	Y      float64      `json:"y"`
	Cursor *CursorState `json:"cursor,omitempty"`
}
