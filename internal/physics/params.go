package physics

// Константы движения (мировые пиксели и секунды)
const (
	BaseSpeed     = 90.0  // Базовая скорость ходьбы, px/s
	SprintMult    = 1.6   // Множитель спринта
	Gravity       = 480.0 // Ускорение падения, px/s^2
	JumpVelocity  = 150.0 // Начальная вертикальная скорость прыжка, px/s
	SmallJumpVel  = 100.0 // Вертикальная скорость при SmallJumps
	DismountHop   = 80.0  // Импульс подскока при спешивании, px/s
	SnapThreshold = 32.0  // Порог сброса интерполяции при reconcile, px
)

// Params содержит параметры движения одной симуляции.
// Никогда не глобальны: передаются в каждый вызов Step, чтобы независимые
// симуляции (клиент, сервер, тесты) могли работать параллельно.
// Revision растёт при любом изменении и переносится через replay
// для обнаружения рассинхрона параметров.
type Params struct {
	GravityScale  float64
	Friction      float64
	Accelerate    float64
	AirAccelerate float64
	AirWishCap    float64
	StopSpeed     float64
	NoBunnyHop    bool
	SmallJumps    bool
	PlatformerAir bool
	TimeScale     float64
	Revision      uint32
}

// DefaultParams возвращает параметры по умолчанию (Revision=1)
func DefaultParams() Params {
	return Params{
		GravityScale:  1.0,
		Friction:      6.0,
		Accelerate:    10.0,
		AirAccelerate: 2.5,
		AirWishCap:    40.0,
		StopSpeed:     5.0,
		TimeScale:     1.0,
		Revision:      1,
	}
}

// Bump увеличивает ревизию; вызывается после любой мутации параметров
func (p *Params) Bump() {
	p.Revision++
}

// jumpVelocity возвращает стартовую вертикальную скорость с учётом SmallJumps
func (p Params) jumpVelocity() float64 {
	if p.SmallJumps {
		return SmallJumpVel
	}
	return JumpVelocity
}

// effectiveDt применяет TimeScale к шагу времени
func (p Params) effectiveDt(dt float64) float64 {
	if p.TimeScale > 0 {
		return dt * p.TimeScale
	}
	return dt
}
