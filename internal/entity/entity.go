package entity

import (
	"github.com/annel0/realm-server/internal/physics"
	"github.com/annel0/realm-server/internal/vec"
)

// Type определяет тип сущности
type Type uint16

const (
	TypeUnknown Type = 0   // Неизвестный тип
	TypePlayer  Type = 1   // Игрок
	TypeProp    Type = 100 // Статический объект
	TypeNPC     Type = 300 // Неигровой персонаж
	TypeAnimal  Type = 301 // Животное
	TypeMount   Type = 310 // Ездовая сущность
)

// SpriteState — анимационное состояние, видимое удалённым наблюдателям.
// Составное поле: при любом изменении пересылается целиком.
type SpriteState struct {
	Direction int  `json:"direction"`
	Moving    bool `json:"moving"`
	FrameRow  int  `json:"frameRow"`
	Flip      bool `json:"flip,omitempty"`
	NoShadow  bool `json:"noShadow,omitempty"` // Тень не рисуется (всадник на маунте)
}

// Kinematic — игровая сущность с кинематикой и презентационными полями.
type Kinematic struct {
	ID   uint64
	Type Type

	physics.Body

	// Привязка к ездовой сущности: Parent == 0 означает отсутствие.
	// Пока привязка активна, позиция всадника выводится из позиции
	// маунта и Offset и не симулируется отдельно.
	Parent uint64
	Offset vec.Vec2Float

	Sprite     SpriteState
	Hidden     bool
	Flashing   bool
	DeathTimer *float64

	// FrameCounter — клиентский счётчик кадров анимации.
	// В wire-схему не входит и переживает применение дельт.
	FrameCounter float64

	Rideable bool   // Сущность помечена как ездовая
	RiddenBy uint64 // ID всадника (0 — свободна)
	Solid    bool   // Участвует в коллизиях других сущностей

	// LastDismount — маунт, с которого слезли в текущем тике.
	// Исключает мгновенную повторную посадку; сбрасывается в конце тика.
	LastDismount uint64

	Brain State // Конечный автомат поведения (nil для игроков)
}

// New создаёт сущность указанного типа в позиции pos
func New(id uint64, t Type, pos vec.Vec2Float) *Kinematic {
	e := &Kinematic{
		ID:   id,
		Type: t,
		Body: physics.Body{
			Pos:      pos,
			LastSafe: pos,
			Half:     defaultHalf(t),
		},
		Sprite: DefaultSprite(t),
	}
	switch t {
	case TypeNPC, TypeAnimal:
		e.Brain = NewIdleState()
	case TypeMount:
		e.Rideable = true
		e.Solid = true
		e.Brain = NewIdleState()
	case TypePlayer:
		e.Solid = true
	}
	return e
}

// DefaultSprite возвращает статическую форму анимационного состояния типа.
// Используется кодеком дельт при восстановлении отсутствующего вложенного объекта.
func DefaultSprite(t Type) SpriteState {
	switch t {
	case TypeMount:
		return SpriteState{Direction: 2, FrameRow: 1}
	default:
		return SpriteState{Direction: 2}
	}
}

func defaultHalf(t Type) vec.Vec2Float {
	switch t {
	case TypeMount:
		return vec.Vec2Float{X: 10, Y: 8}
	case TypeProp:
		return vec.Vec2Float{X: 8, Y: 8}
	default:
		return vec.Vec2Float{X: 6, Y: 6}
	}
}

// Attached сообщает, привязана ли сущность к родителю
func (e *Kinematic) Attached() bool {
	return e.Parent != 0
}

// Clone возвращает глубокую копию сущности (Brain не копируется)
func (e *Kinematic) Clone() *Kinematic {
	c := *e
	c.Body = *e.Body.Clone()
	if e.DeathTimer != nil {
		d := *e.DeathTimer
		c.DeathTimer = &d
	}
	c.Brain = nil
	return &c
}
