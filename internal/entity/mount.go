package entity

import (
	"github.com/annel0/realm-server/internal/physics"
	"github.com/annel0/realm-server/internal/vec"
)

// Подсистема посадки/спешивания. Два состояния: Unmounted и Riding.
//
// Unmounted → Riding: при приземлении, если расширенный коллайдер
// всадника перекрывает ездовую сущность, которая никем не занята и не
// является маунтом, с которого слезли в этом же тике.
// Riding → Unmounted: по фронту прыжка, при входе в редактор или
// защитно — если маунт исчез.

// MountOverlapMargin — расширение коллайдера всадника при поиске маунта
const MountOverlapMargin = 6.0

// riderSeatOffset — локальное смещение всадника на маунте
var riderSeatOffset = vec.Vec2Float{X: 0, Y: -10}

// CanMount проверяет правила посадки
func CanMount(rider, mount *Kinematic) bool {
	if mount == nil || !mount.Rideable {
		return false
	}
	if mount.RiddenBy != 0 {
		return false
	}
	if rider.Attached() {
		return false
	}
	if rider.LastDismount == mount.ID {
		// Исключение на один тик после спешивания
		return false
	}
	return rider.Box().Expand(MountOverlapMargin).Overlaps(mount.Box())
}

// Attach сажает всадника на маунт.
// Скорость всадника гасится, позиция примагничивается, небольшое
// смещение вверх кэшируется для подскока при спешивании, тень скрыта.
func Attach(rider, mount *Kinematic) {
	rider.Parent = mount.ID
	rider.Offset = riderSeatOffset
	rider.Vel = vec.Vec2Float{}
	rider.JumpZ = 0
	rider.JumpVZ = nil
	rider.QueuedJump = false
	rider.Pos = mount.Pos.Add(rider.Offset)
	rider.Sprite.FrameRow = ridingFrameRow
	rider.Sprite.NoShadow = true

	mount.RiddenBy = rider.ID
	mount.Brain = nil // Пока есть всадник, поведением управляет ввод
}

// Detach спешивает всадника.
// Всадник получает импульс подскока, AI маунта сбрасывается в Idle.
func Detach(rider, mount *Kinematic) {
	rider.Parent = 0
	rider.Offset = vec.Vec2Float{}
	rider.Sprite.FrameRow = DefaultSprite(rider.Type).FrameRow
	rider.Sprite.NoShadow = false

	hop := physics.DismountHop
	rider.JumpVZ = &hop
	rider.JumpZ = 0.001 // Чуть выше земли, чтобы дуга началась в этом тике

	if mount != nil {
		rider.Pos = mount.Pos.Add(rider.Offset)
		rider.LastDismount = mount.ID
		mount.RiddenBy = 0
		mount.Brain = NewIdleState()
	}
}

// SyncRider выводит позицию всадника из позиции маунта.
// Вызывается каждый тик, пока привязка активна; всадник не симулируется.
func SyncRider(rider, mount *Kinematic) {
	rider.Pos = mount.Pos.Add(rider.Offset)
	rider.Vel = mount.Vel
	rider.Sprite.Direction = mount.Sprite.Direction
	rider.Sprite.Moving = mount.Sprite.Moving
}

const ridingFrameRow = 4
