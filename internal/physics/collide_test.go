package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/realm-server/internal/vec"
)

func TestMoveAxes_WallSliding(t *testing.T) {
	w := newFakeWorld()
	// Вертикальная стена из тайлов правее тела
	for ty := 20; ty < 32; ty++ {
		w.solid[vec.Vec2{X: 26, Y: ty}] = true
	}

	p := DefaultParams()
	b := testBody() // x=400, стена начинается на x=416

	// Движение по диагонали в стену: X упирается, Y продолжает скользить
	var blockedX bool
	startY := b.Pos.Y
	for i := 0; i < 40; i++ {
		out := Step(b, Input{DX: 1, DY: 1}, 0.05, w, p)
		blockedX = blockedX || out.BlockedX
	}

	assert.True(t, blockedX)
	assert.InDelta(t, 416-b.Half.X, b.Pos.X, 1e-9, "тело прижато к стене")
	assert.Greater(t, b.Pos.Y, startY+50, "скольжение вдоль стены должно продолжаться")
	assert.Equal(t, 0.0, b.Vel.X, "скорость упёршейся оси гасится")
	assert.Greater(t, b.Vel.Y, 0.0)
}

func TestMoveAxes_PropBlocks(t *testing.T) {
	w := newFakeWorld()
	w.props = append(w.props, AABB{
		Min: vec.Vec2Float{X: 420, Y: 380},
		Max: vec.Vec2Float{X: 440, Y: 420},
	})

	p := DefaultParams()
	b := testBody()

	for i := 0; i < 40; i++ {
		Step(b, Input{DX: 1}, 0.05, w, p)
	}

	assert.InDelta(t, 420-b.Half.X, b.Pos.X, 1e-9)
}

func TestMoveAxes_SolidBodyBlocks(t *testing.T) {
	w := newFakeWorld()
	w.bodies = append(w.bodies, AABB{
		Min: vec.Vec2Float{X: 380, Y: 430},
		Max: vec.Vec2Float{X: 420, Y: 450},
	})

	p := DefaultParams()
	b := testBody()

	for i := 0; i < 40; i++ {
		Step(b, Input{DY: 1}, 0.05, w, p)
	}

	assert.InDelta(t, 430-b.Half.Y, b.Pos.Y, 1e-9)
}

func TestResolvePenetration_PushesOutShortestAxis(t *testing.T) {
	b := testBody()
	b.Pos = vec.Vec2Float{X: 400, Y: 400}

	// Пересечение с AABB, ближняя грань — слева
	obs := AABB{
		Min: vec.Vec2Float{X: 403, Y: 380},
		Max: vec.Vec2Float{X: 440, Y: 420},
	}
	require.True(t, b.Box().Overlaps(obs))

	ResolvePenetration(b, []AABB{obs})
	assert.InDelta(t, 403-b.Half.X, b.Pos.X, 1e-9)
	assert.False(t, b.Box().Overlaps(obs))
}
