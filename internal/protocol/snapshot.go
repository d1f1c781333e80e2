package protocol

import (
	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/vec"
)

// Snapshot — сериализуемая проекция динамического состояния сущности
// на один тик. Поля, восстановимые из статического описания типа
// (сырые таймеры анимации и т.п.), не передаются.
//
// Протокол гарантирует, что для каждого id Snapshot-базис отправляется
// раньше любой дельты — получатель вправе на это полагаться.
type Snapshot struct {
	ID   uint64 `json:"id"`
	Type uint16 `json:"type"`

	WX float64  `json:"wx"`
	WY float64  `json:"wy"`
	WZ *float64 `json:"wz,omitempty"` // Высота рельефа (опционально)

	VX float64 `json:"vx"`
	VY float64 `json:"vy"`

	// Пара прыжка: присутствует только в воздухе
	// (отсутствие вертикальной скорости означает "на земле")
	JumpZ  *float64 `json:"jumpZ,omitempty"`
	JumpVZ *float64 `json:"jumpVz,omitempty"`

	Attach *AttachState `json:"attach,omitempty"` // Привязка к маунту

	Sprite entity.SpriteState `json:"sprite"`

	Hidden     *bool    `json:"hidden,omitempty"`
	Flashing   *bool    `json:"flashing,omitempty"`
	DeathTimer *float64 `json:"deathTimer,omitempty"`
}

// AttachState составное поле привязки: при изменении пересылается целиком
type AttachState struct {
	ParentID uint64  `json:"parentId"`
	OX       float64 `json:"ox"`
	OY       float64 `json:"oy"`
}

// Serialize строит Snapshot из сущности
func Serialize(e *entity.Kinematic) Snapshot {
	s := Snapshot{
		ID:     e.ID,
		Type:   uint16(e.Type),
		WX:     e.Pos.X,
		WY:     e.Pos.Y,
		VX:     e.Vel.X,
		VY:     e.Vel.Y,
		Sprite: e.Sprite,
	}

	if e.Elev != nil {
		v := *e.Elev
		s.WZ = &v
	}
	if e.JumpVZ != nil {
		jz := e.JumpZ
		vz := *e.JumpVZ
		s.JumpZ = &jz
		s.JumpVZ = &vz
	}
	if e.Parent != 0 {
		s.Attach = &AttachState{ParentID: e.Parent, OX: e.Offset.X, OY: e.Offset.Y}
	}
	if e.Hidden {
		t := true
		s.Hidden = &t
	}
	if e.Flashing {
		t := true
		s.Flashing = &t
	}
	if e.DeathTimer != nil {
		v := *e.DeathTimer
		s.DeathTimer = &v
	}

	return s
}

// Entity восстанавливает сущность из Snapshot-базиса
func (s Snapshot) Entity() *entity.Kinematic {
	e := entity.New(s.ID, entity.Type(s.Type), vec.Vec2Float{X: s.WX, Y: s.WY})
	e.Vel = vec.Vec2Float{X: s.VX, Y: s.VY}

	if s.WZ != nil {
		v := *s.WZ
		e.Elev = &v
	}
	if s.JumpVZ != nil {
		vz := *s.JumpVZ
		e.JumpVZ = &vz
		if s.JumpZ != nil {
			e.JumpZ = *s.JumpZ
		}
	}
	if s.Attach != nil {
		e.Parent = s.Attach.ParentID
		e.Offset = vec.Vec2Float{X: s.Attach.OX, Y: s.Attach.OY}
	}
	e.Sprite = s.Sprite
	if s.Hidden != nil {
		e.Hidden = *s.Hidden
	}
	if s.Flashing != nil {
		e.Flashing = *s.Flashing
	}
	if s.DeathTimer != nil {
		v := *s.DeathTimer
		e.DeathTimer = &v
	}

	return e
}
