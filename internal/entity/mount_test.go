package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/realm-server/internal/vec"
)

func TestCanMount_Rules(t *testing.T) {
	rider := New(1, TypePlayer, vec.Vec2Float{X: 100, Y: 100})
	mount := New(2, TypeMount, vec.Vec2Float{X: 108, Y: 100})

	assert.True(t, CanMount(rider, mount))

	// Занятый маунт недоступен
	mount.RiddenBy = 99
	assert.False(t, CanMount(rider, mount))
	mount.RiddenBy = 0

	// Исключение одного тика после спешивания
	rider.LastDismount = mount.ID
	assert.False(t, CanMount(rider, mount))
	rider.LastDismount = 0

	// Слишком далеко
	mount.Pos = vec.Vec2Float{X: 200, Y: 100}
	assert.False(t, CanMount(rider, mount))

	// Не ездовая сущность
	npc := New(3, TypeNPC, vec.Vec2Float{X: 108, Y: 100})
	assert.False(t, CanMount(rider, npc))
}

func TestAttachDetach_Lifecycle(t *testing.T) {
	rider := New(1, TypePlayer, vec.Vec2Float{X: 100, Y: 100})
	rider.Vel = vec.Vec2Float{X: 50, Y: 10}
	mount := New(2, TypeMount, vec.Vec2Float{X: 108, Y: 100})

	Attach(rider, mount)

	assert.Equal(t, mount.ID, rider.Parent)
	assert.Equal(t, rider.ID, mount.RiddenBy)
	assert.Equal(t, vec.Vec2Float{}, rider.Vel, "скорость всадника гасится")
	assert.True(t, rider.Grounded())
	assert.Nil(t, mount.Brain, "AI маунта отключается под всадником")
	assert.Equal(t, mount.Pos.Add(rider.Offset), rider.Pos)
	assert.True(t, rider.Sprite.NoShadow, "тень всадника скрыта на маунте")

	// Позиция всадника выводится из маунта
	mount.Pos = vec.Vec2Float{X: 150, Y: 120}
	SyncRider(rider, mount)
	assert.Equal(t, mount.Pos.Add(rider.Offset), rider.Pos)

	Detach(rider, mount)

	assert.False(t, rider.Attached())
	assert.Equal(t, uint64(0), mount.RiddenBy)
	assert.Equal(t, mount.ID, rider.LastDismount)
	require.NotNil(t, rider.JumpVZ, "спешивание даёт импульс подскока")
	assert.Greater(t, *rider.JumpVZ, 0.0)
	assert.NotNil(t, mount.Brain, "AI маунта сбрасывается в Idle")
	assert.False(t, rider.Sprite.NoShadow, "тень возвращается после спешивания")
}

func TestClone_DeepCopies(t *testing.T) {
	e := New(1, TypePlayer, vec.Vec2Float{X: 10, Y: 20})
	vz := 50.0
	e.JumpVZ = &vz
	timer := 1.5
	e.DeathTimer = &timer

	c := e.Clone()
	*c.JumpVZ = 99
	*c.DeathTimer = 0.1
	c.Pos.X = 777

	assert.Equal(t, 50.0, *e.JumpVZ)
	assert.Equal(t, 1.5, *e.DeathTimer)
	assert.Equal(t, 10.0, e.Pos.X)
}
