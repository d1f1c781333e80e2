package physics

import (
	"math"

	"github.com/annel0/realm-server/internal/vec"
)

// Body представляет кинематическое состояние сущности.
// JumpVZ == nil означает, что сущность на земле.
type Body struct {
	Pos    vec.Vec2Float // Позиция в мировых пикселях
	Vel    vec.Vec2Float // Горизонтальная скорость, px/s
	Elev   *float64      // Высота рельефа wz (nil — уровень земли)
	JumpZ  float64       // Высота прыжка над рельефом
	JumpVZ *float64      // Вертикальная скорость прыжка; nil ⇔ на земле

	QueuedJump bool          // Прыжок, нажатый в воздухе; сработает при приземлении
	LastSafe   vec.Vec2Float // Последняя безопасная позиция (для респауна с hazard-тайла)
	Half       vec.Vec2Float // Полуразмеры коллайдера
}

// Grounded сообщает, стоит ли тело на земле
func (b *Body) Grounded() bool {
	return b.JumpVZ == nil
}

// Box возвращает AABB тела в текущей позиции
func (b *Body) Box() AABB {
	return AABB{
		Min: vec.Vec2Float{X: b.Pos.X - b.Half.X, Y: b.Pos.Y - b.Half.Y},
		Max: vec.Vec2Float{X: b.Pos.X + b.Half.X, Y: b.Pos.Y + b.Half.Y},
	}
}

// BoxAt возвращает AABB тела в указанной позиции
func (b *Body) BoxAt(pos vec.Vec2Float) AABB {
	return AABB{
		Min: vec.Vec2Float{X: pos.X - b.Half.X, Y: pos.Y - b.Half.Y},
		Max: vec.Vec2Float{X: pos.X + b.Half.X, Y: pos.Y + b.Half.Y},
	}
}

// Clone возвращает глубокую копию тела (указатели не разделяются)
func (b *Body) Clone() *Body {
	c := *b
	if b.Elev != nil {
		e := *b.Elev
		c.Elev = &e
	}
	if b.JumpVZ != nil {
		v := *b.JumpVZ
		c.JumpVZ = &v
	}
	return &c
}

// CopyFrom перезаписывает состояние тела из другого (глубоко)
func (b *Body) CopyFrom(src *Body) {
	pos := *src.Clone()
	*b = pos
}

// Input одна квантованная единица ввода игрока
type Input struct {
	DX, DY      float64 // Желаемое направление, каждая ось в [-1, 1]
	Sprint      bool
	JumpHeld    bool
	JumpPressed bool // Фронт нажатия (edge-triggered)
}

// Sanitize приводит некорректный ввод к безопасному no-op виду:
// NaN/Inf обнуляются, оси зажимаются в [-1, 1].
func (in Input) Sanitize() Input {
	in.DX = clampAxis(in.DX)
	in.DY = clampAxis(in.DY)
	return in
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// Outcome описывает результат одного шага кинематики
type Outcome struct {
	Landed   bool // Тело приземлилось в этом шаге
	Jumped   bool // В этом шаге начался прыжок
	BlockedX bool // Движение по X остановлено препятствием
	BlockedY bool // Движение по Y остановлено препятствием
	Hazard   bool // Приземление на опасный тайл: телепорт в LastSafe
}
