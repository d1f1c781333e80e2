package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/realm-server/internal/vec"
)

// fakeWorld простейшая реализация WorldQuery для тестов ядра
type fakeWorld struct {
	solid  map[vec.Vec2]bool
	hazard map[vec.Vec2]bool
	props  []AABB
	bodies []AABB
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		solid:  make(map[vec.Vec2]bool),
		hazard: make(map[vec.Vec2]bool),
	}
}

func (w *fakeWorld) SolidTile(t vec.Vec2) bool  { return w.solid[t] }
func (w *fakeWorld) HazardTile(t vec.Vec2) bool { return w.hazard[t] }

func (w *fakeWorld) PropAABBs(box AABB) []AABB {
	var out []AABB
	for _, p := range w.props {
		if p.Overlaps(box) {
			out = append(out, p)
		}
	}
	return out
}

func (w *fakeWorld) SolidBodyAABBs(box AABB) []AABB {
	var out []AABB
	for _, b := range w.bodies {
		if b.Overlaps(box) {
			out = append(out, b)
		}
	}
	return out
}

func testBody() *Body {
	return &Body{
		Pos:      vec.Vec2Float{X: 400, Y: 400},
		LastSafe: vec.Vec2Float{X: 400, Y: 400},
		Half:     vec.Vec2Float{X: 6, Y: 6},
	}
}

// stepSubdivided дробит один шаг T на n равных суб-шагов.
// Фронт прыжка учитывается только на первом суб-шаге.
func stepSubdivided(b *Body, in Input, total float64, n int, q WorldQuery, p Params) {
	sub := total / float64(n)
	for i := 0; i < n; i++ {
		Step(b, in, sub, q, p)
		in.JumpPressed = false
	}
}

func TestStep_SubdivisionInvariance_Grounded(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()
	in := Input{DX: 1, DY: 0.5, Sprint: true}

	const total = 0.05

	ref := testBody()
	Step(ref, in, total, w, p)

	for _, n := range []int{2, 4} {
		b := testBody()
		stepSubdivided(b, in, total, n, w, p)

		assert.InDelta(t, ref.Pos.X, b.Pos.X, 1e-6, "pos.X при n=%d", n)
		assert.InDelta(t, ref.Pos.Y, b.Pos.Y, 1e-6, "pos.Y при n=%d", n)
		assert.InDelta(t, ref.Vel.X, b.Vel.X, 1e-6, "vel.X при n=%d", n)
		assert.InDelta(t, ref.Vel.Y, b.Vel.Y, 1e-6, "vel.Y при n=%d", n)
	}
}

func TestStep_SubdivisionInvariance_FrictionDecay(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	const total = 0.1

	ref := testBody()
	ref.Vel = vec.Vec2Float{X: 120, Y: -40}
	Step(ref, Input{}, total, w, p)

	for _, n := range []int{2, 4} {
		b := testBody()
		b.Vel = vec.Vec2Float{X: 120, Y: -40}
		stepSubdivided(b, Input{}, total, n, w, p)

		assert.InDelta(t, ref.Pos.X, b.Pos.X, 1e-6)
		assert.InDelta(t, ref.Pos.Y, b.Pos.Y, 1e-6)
		assert.InDelta(t, ref.Vel.X, b.Vel.X, 1e-6)
		assert.InDelta(t, ref.Vel.Y, b.Vel.Y, 1e-6)
	}
}

func TestStep_SubdivisionInvariance_Airborne(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()
	in := Input{DX: 1}

	const total = 0.05

	mk := func() *Body {
		b := testBody()
		vz := JumpVelocity
		b.JumpVZ = &vz
		b.JumpZ = 1.0
		b.Vel = vec.Vec2Float{X: 60}
		return b
	}

	ref := mk()
	Step(ref, in, total, w, p)
	require.False(t, ref.Grounded(), "тело не должно приземлиться в окне теста")

	for _, n := range []int{2, 4} {
		b := mk()
		stepSubdivided(b, in, total, n, w, p)

		assert.InDelta(t, ref.Pos.X, b.Pos.X, 1e-6)
		assert.InDelta(t, ref.JumpZ, b.JumpZ, 1e-6)
		assert.InDelta(t, *ref.JumpVZ, *b.JumpVZ, 1e-6)
	}
}

func TestStep_SubdivisionInvariance_FullStop(t *testing.T) {
	// Остановка на пороге StopSpeed происходит внутри шага —
	// момент остановки аналитический, дробление не меняет итог
	w := newFakeWorld()
	p := DefaultParams()

	const total = 2.0

	ref := testBody()
	ref.Vel = vec.Vec2Float{X: 50}
	Step(ref, Input{}, total, w, p)
	require.Equal(t, 0.0, ref.Vel.X, "скорость должна полностью погаситься")

	b := testBody()
	b.Vel = vec.Vec2Float{X: 50}
	stepSubdivided(b, Input{}, total, 4, w, p)

	assert.InDelta(t, ref.Pos.X, b.Pos.X, 1e-6)
	assert.Equal(t, 0.0, b.Vel.X)
}

func TestStep_EmptyInputNoDisplacementWhenStopped(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	b := testBody()
	out := Step(b, Input{}, 0.05, w, p)

	assert.Equal(t, 400.0, b.Pos.X)
	assert.Equal(t, 400.0, b.Pos.Y)
	assert.False(t, out.Jumped)
	assert.True(t, b.Grounded())
}

func TestStep_EmptyInputDecaysVelocityWithoutDisplacement(t *testing.T) {
	// Пустой ввод гасит скорость, но тело не смещается: сервер на
	// тике с пустой очередью и клиент без нажатий обязаны совпасть
	w := newFakeWorld()
	p := DefaultParams()

	b := testBody()
	b.Vel = vec.Vec2Float{X: 120, Y: -40}
	Step(b, Input{}, 0.05, w, p)

	assert.Equal(t, 400.0, b.Pos.X)
	assert.Equal(t, 400.0, b.Pos.Y)
	assert.Less(t, b.Vel.X, 120.0)
	assert.Greater(t, b.Vel.Y, -40.0)
}

func TestStep_JumpEdgeTriggered(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	b := testBody()
	out := Step(b, Input{JumpPressed: true}, 0.05, w, p)

	assert.True(t, out.Jumped)
	assert.False(t, b.Grounded())
	assert.Greater(t, b.JumpZ, 0.0)

	// Удержание без нового фронта не перезапускает прыжок
	out = Step(b, Input{JumpHeld: true}, 0.05, w, p)
	assert.False(t, out.Jumped)
}

func TestStep_AirborneJumpQueuedFiresOnLanding(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	b := testBody()
	Step(b, Input{JumpPressed: true}, 0.02, w, p)
	require.False(t, b.Grounded())

	// Фронт в воздухе ставится в очередь
	Step(b, Input{JumpPressed: true}, 0.02, w, p)
	assert.True(t, b.QueuedJump)

	// Доводим до приземления: очередь срабатывает тем же тиком
	var sawRelaunch bool
	for i := 0; i < 200; i++ {
		out := Step(b, Input{}, 0.05, w, p)
		if out.Landed {
			sawRelaunch = out.Jumped
			break
		}
	}
	assert.True(t, sawRelaunch, "отложенный прыжок должен сработать при приземлении")
	assert.False(t, b.Grounded())
}

func TestStep_NoBunnyHopSuppressesQueuedJump(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()
	p.NoBunnyHop = true
	p.Bump()

	b := testBody()
	Step(b, Input{JumpPressed: true}, 0.02, w, p)
	Step(b, Input{JumpPressed: true}, 0.02, w, p)
	require.True(t, b.QueuedJump)

	for i := 0; i < 200; i++ {
		out := Step(b, Input{}, 0.05, w, p)
		if out.Landed {
			assert.False(t, out.Jumped)
			break
		}
	}
	assert.True(t, b.Grounded())
	assert.False(t, b.QueuedJump)
}

func TestStep_HazardLandingRespawnsAtLastSafe(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	b := testBody()
	b.Vel = vec.Vec2Float{X: 200}
	safe := b.Pos

	// Всё правее стартового тайла — лава
	for tx := 26; tx < 60; tx++ {
		for ty := 20; ty < 32; ty++ {
			w.hazard[vec.Vec2{X: tx, Y: ty}] = true
		}
	}

	Step(b, Input{DX: 1, JumpPressed: true}, 0.02, w, p)
	require.False(t, b.Grounded())

	var landedHazard bool
	for i := 0; i < 200; i++ {
		out := Step(b, Input{DX: 1, Sprint: true}, 0.05, w, p)
		if out.Landed {
			landedHazard = out.Hazard
			break
		}
	}

	require.True(t, landedHazard, "приземление должно попасть на hazard-тайл")
	assert.Equal(t, safe, b.Pos)
	assert.Equal(t, vec.Vec2Float{}, b.Vel)
	assert.True(t, b.Grounded())
	assert.False(t, b.QueuedJump)
}

func TestStep_MalformedInputIsNoOp(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	b := testBody()
	out := Step(b, Input{DX: math.NaN(), DY: math.Inf(1)}, 0.05, w, p)

	assert.Equal(t, 400.0, b.Pos.X)
	assert.Equal(t, 400.0, b.Pos.Y)
	assert.False(t, out.Jumped)

	// Неположительный dt — полный no-op
	b.Vel = vec.Vec2Float{X: 100}
	Step(b, Input{DX: 1}, -0.05, w, p)
	assert.Equal(t, 400.0, b.Pos.X)
	assert.Equal(t, 100.0, b.Vel.X)
}

func TestStep_SprintScalesTargetSpeed(t *testing.T) {
	w := newFakeWorld()
	p := DefaultParams()

	walk := testBody()
	sprint := testBody()
	for i := 0; i < 100; i++ {
		Step(walk, Input{DX: 1}, 0.05, w, p)
		Step(sprint, Input{DX: 1, Sprint: true}, 0.05, w, p)
	}

	assert.InDelta(t, BaseSpeed, walk.Vel.X, 0.5)
	assert.InDelta(t, BaseSpeed*SprintMult, sprint.Vel.X, 0.5)
}
