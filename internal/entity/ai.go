package entity

import (
	"math"
	"math/rand"

	"github.com/annel0/realm-server/internal/physics"
	"github.com/annel0/realm-server/internal/vec"
)

// State представляет состояние конечного автомата поведения.
// Update возвращает следующее состояние и желаемый ввод; само движение
// выполняет ядро кинематики в общей фазе симуляции.
type State interface {
	Enter(e *Kinematic)
	Update(e *Kinematic, api WorldAPI, dt float64) (State, physics.Input)
	Exit(e *Kinematic)
}

// WorldAPI представляет интерфейс для взаимодействия поведения с миром
type WorldAPI interface {
	IsTilePassable(t vec.Vec2) bool
	EntitiesInRange(center vec.Vec2Float, radius float64) []*Kinematic
}

// Think продвигает автомат поведения сущности на один тик
func Think(e *Kinematic, api WorldAPI, dt float64) physics.Input {
	if e.Brain == nil {
		return physics.Input{}
	}

	next, input := e.Brain.Update(e, api, dt)
	if next != e.Brain {
		e.Brain.Exit(e)
		e.Brain = next
		e.Brain.Enter(e)
	}
	return input
}

// === Конкретные состояния ===

// IdleState - состояние бездействия
type IdleState struct {
	TimeInState float64
	MaxIdleTime float64
}

// NewIdleState создаёт новое состояние бездействия
func NewIdleState() *IdleState {
	return &IdleState{
		MaxIdleTime: 2.0 + rand.Float64()*3.0, // 2-5 секунд
	}
}

func (s *IdleState) Enter(e *Kinematic) {
	s.TimeInState = 0
	e.Sprite.Moving = false
}

func (s *IdleState) Update(e *Kinematic, api WorldAPI, dt float64) (State, physics.Input) {
	s.TimeInState += dt

	if s.TimeInState >= s.MaxIdleTime {
		return NewWanderState(), physics.Input{}
	}

	return s, physics.Input{}
}

func (s *IdleState) Exit(e *Kinematic) {}

// WanderState - состояние блуждания
type WanderState struct {
	Target        vec.Vec2Float
	TimeInState   float64
	MaxWanderTime float64
}

// NewWanderState создаёт новое состояние блуждания
func NewWanderState() *WanderState {
	return &WanderState{
		MaxWanderTime: 3.0 + rand.Float64()*5.0, // 3-8 секунд
	}
}

func (s *WanderState) Enter(e *Kinematic) {
	s.TimeInState = 0

	// Случайная точка назначения в радиусе 2-5 тайлов
	angle := rand.Float64() * 2 * math.Pi
	distance := (2.0 + rand.Float64()*3.0) * vec.TileSize

	s.Target = vec.Vec2Float{
		X: e.Pos.X + distance*math.Cos(angle),
		Y: e.Pos.Y + distance*math.Sin(angle),
	}
	e.Sprite.Moving = true
}

func (s *WanderState) Update(e *Kinematic, api WorldAPI, dt float64) (State, physics.Input) {
	s.TimeInState += dt

	toTarget := s.Target.Sub(e.Pos)
	if s.TimeInState >= s.MaxWanderTime || toTarget.Length() < 2.0 {
		return NewIdleState(), physics.Input{}
	}

	// Проскочили цель (оттолкнуло коллизией) — не разворачиваемся,
	// отдыхаем. Первые полсекунды скорость ещё от прошлого состояния.
	if s.TimeInState > 0.5 && e.Vel.Length() > 1.0 && toTarget.Dot(e.Vel) < 0 {
		return NewIdleState(), physics.Input{}
	}

	if !api.IsTilePassable(s.Target.ToTile()) {
		return NewIdleState(), physics.Input{}
	}

	dir := toTarget.Normalized()
	e.Sprite.Direction = DirectionFor(dir)
	return s, physics.Input{DX: dir.X, DY: dir.Y}
}

func (s *WanderState) Exit(e *Kinematic) {}

// DirectionFor квантует направление движения в 4 стороны спрайта
func DirectionFor(dir vec.Vec2Float) int {
	if math.Abs(dir.X) > math.Abs(dir.Y) {
		if dir.X > 0 {
			return 3 // восток
		}
		return 1 // запад
	}
	if dir.Y > 0 {
		return 2 // юг
	}
	return 0 // север
}
