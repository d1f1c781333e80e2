package physics

import (
	"math"

	"github.com/annel0/realm-server/internal/vec"
)

// Step выполняет один детерминированный шаг кинематики.
//
// Интегратор построен на замкнутых формах экспоненциальной релаксации,
// поэтому один шаг с dt=T совпадает с n шагами по T/n (инвариант
// суб-дивизии) — это условие согласия replay клиента и сервера, даже
// когда стороны дробят тик по-разному.
//
// Пустой ввод даёт только трение: нулевое смещение цели, без прыжка.
func Step(b *Body, in Input, dt float64, q WorldQuery, p Params) Outcome {
	var out Outcome

	in = in.Sanitize()
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return out
	}
	dt = p.effectiveDt(dt)

	// Прыжок: фронт нажатия на земле стартует сразу;
	// в воздухе — ставится в очередь и сработает при приземлении.
	if in.JumpPressed {
		if b.Grounded() {
			launchJump(b, p)
			out.Jumped = true
		} else {
			b.QueuedJump = true
		}
	}

	// Горизонтальная скорость и смещение
	wishX, wishY := in.DX, in.DY
	wishLen := math.Hypot(wishX, wishY)
	var disp vec.Vec2Float

	if wishLen > 0 {
		wishDir := vec.Vec2Float{X: wishX / wishLen, Y: wishY / wishLen}
		speed := BaseSpeed
		if in.Sprint {
			speed *= SprintMult
		}
		if b.Grounded() {
			b.Vel, disp = relax(b.Vel, wishDir.Mul(speed), p.Accelerate, dt)
		} else {
			capped := math.Min(speed, p.AirWishCap)
			b.Vel, disp = relax(b.Vel, wishDir.Mul(capped), p.AirAccelerate, dt)
		}
	} else {
		// Пустой ввод: только затухание трения, нулевое смещение.
		// Ровно это же предсказывает простаивающий клиент — паритет
		// серверного тика с пустой очередью обязан быть точным.
		if b.Grounded() || p.PlatformerAir {
			b.Vel, _ = frictionStop(b.Vel, p.Friction, p.StopSpeed, dt)
		}
		// Квейковский воздух: без ввода скорость сохраняется
	}

	// Покоординатное разрешение столкновений: X, затем Y.
	// Именно раздельный порядок даёт скольжение вдоль стен.
	out.BlockedX, out.BlockedY = moveAxes(b, disp, q)

	// Вертикаль прыжка
	if !b.Grounded() {
		stepVertical(b, dt, q, p, &out)
	} else if !q.HazardTile(b.Pos.ToTile()) {
		b.LastSafe = b.Pos
	}

	return out
}

// launchJump запускает прыжок
func launchJump(b *Body, p Params) {
	v := p.jumpVelocity()
	b.JumpVZ = &v
	b.QueuedJump = false
}

// stepVertical интегрирует дугу прыжка и обрабатывает приземление
func stepVertical(b *Body, dt float64, q WorldQuery, p Params, out *Outcome) {
	g := Gravity * p.GravityScale
	vz := *b.JumpVZ

	// Аналитическая баллистика: суб-дивизия точна
	b.JumpZ += vz*dt - 0.5*g*dt*dt
	vz -= g * dt

	if b.JumpZ > 0 {
		*b.JumpVZ = vz
		return
	}

	// Приземление
	b.JumpZ = 0
	b.JumpVZ = nil
	out.Landed = true

	if q.HazardTile(b.Pos.ToTile()) {
		// Респаун: телепорт в последнюю безопасную точку, прыжок сброшен
		b.Pos = b.LastSafe
		b.Vel = vec.Vec2Float{}
		b.QueuedJump = false
		out.Hazard = true
		return
	}

	b.LastSafe = b.Pos

	// Отложенный прыжок срабатывает без дополнительного тика задержки
	if b.QueuedJump {
		b.QueuedJump = false
		if !p.NoBunnyHop {
			launchJump(b, p)
			out.Jumped = true
		}
	}
}

// relax решает dv/dt = rate*(target - v) в замкнутой форме и возвращает
// новую скорость вместе с точным интегралом смещения за dt.
func relax(v, target vec.Vec2Float, rate, dt float64) (vec.Vec2Float, vec.Vec2Float) {
	if rate <= 0 {
		return v, v.Mul(dt)
	}
	decay := math.Exp(-rate * dt)
	residual := v.Sub(target)
	newV := target.Add(residual.Mul(decay))
	disp := target.Mul(dt).Add(residual.Mul((1 - decay) / rate))
	return newV, disp
}

// frictionStop — экспоненциальное затухание к нулю с полной остановкой
// на пороге StopSpeed. Момент остановки вычисляется аналитически, поэтому
// траектория не зависит от дробления шага.
func frictionStop(v vec.Vec2Float, rate, stopSpeed float64, dt float64) (vec.Vec2Float, vec.Vec2Float) {
	speed := v.Length()
	if speed == 0 {
		return vec.Vec2Float{}, vec.Vec2Float{}
	}
	if rate <= 0 {
		return v, v.Mul(dt)
	}
	if stopSpeed > 0 && speed <= stopSpeed {
		return vec.Vec2Float{}, vec.Vec2Float{}
	}

	if stopSpeed > 0 {
		tStop := math.Log(speed/stopSpeed) / rate
		if tStop < dt {
			// Остановка внутри шага: интегрируем до неё и замираем
			decayAtStop := stopSpeed / speed
			return vec.Vec2Float{}, v.Mul((1 - decayAtStop) / rate)
		}
	}

	decay := math.Exp(-rate * dt)
	return v.Mul(decay), v.Mul((1 - decay) / rate)
}
