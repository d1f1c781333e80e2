package physics

import (
	"github.com/annel0/realm-server/internal/vec"
)

// moveAxes применяет смещение покоординатно: сначала X, затем Y.
// Каждая ось независимо проверяется против тайлов, пропов и твёрдых
// сущностей; при упоре скорость оси гасится.
func moveAxes(b *Body, disp vec.Vec2Float, q WorldQuery) (blockedX, blockedY bool) {
	if disp.X != 0 {
		newX, hit := resolveAxisX(b, b.Pos.X+disp.X, disp.X, q)
		b.Pos.X = newX
		if hit {
			b.Vel.X = 0
			blockedX = true
		}
	}

	if disp.Y != 0 {
		newY, hit := resolveAxisY(b, b.Pos.Y+disp.Y, disp.Y, q)
		b.Pos.Y = newY
		if hit {
			b.Vel.Y = 0
			blockedY = true
		}
	}

	return blockedX, blockedY
}

// resolveAxisX зажимает горизонтальное перемещение на границах препятствий
func resolveAxisX(b *Body, proposedX, deltaX float64, q WorldQuery) (float64, bool) {
	oldX := b.Pos.X
	newX := proposedX
	hit := false

	swept := b.Box().Union(b.BoxAt(vec.Vec2Float{X: proposedX, Y: b.Pos.Y}))
	for _, obs := range collectObstacles(swept, q) {
		// Перекрытие по Y обязательно, иначе препятствие не на пути
		if b.Pos.Y-b.Half.Y >= obs.Max.Y || b.Pos.Y+b.Half.Y <= obs.Min.Y {
			continue
		}

		if deltaX > 0 {
			boundary := obs.Min.X - b.Half.X
			if oldX <= boundary && newX > boundary {
				newX = boundary
				hit = true
			}
		} else {
			boundary := obs.Max.X + b.Half.X
			if oldX >= boundary && newX < boundary {
				newX = boundary
				hit = true
			}
		}
	}

	return newX, hit
}

// resolveAxisY зажимает вертикальное перемещение на границах препятствий
func resolveAxisY(b *Body, proposedY, deltaY float64, q WorldQuery) (float64, bool) {
	oldY := b.Pos.Y
	newY := proposedY
	hit := false

	swept := b.Box().Union(b.BoxAt(vec.Vec2Float{X: b.Pos.X, Y: proposedY}))
	for _, obs := range collectObstacles(swept, q) {
		if b.Pos.X-b.Half.X >= obs.Max.X || b.Pos.X+b.Half.X <= obs.Min.X {
			continue
		}

		if deltaY > 0 {
			boundary := obs.Min.Y - b.Half.Y
			if oldY <= boundary && newY > boundary {
				newY = boundary
				hit = true
			}
		} else {
			boundary := obs.Max.Y + b.Half.Y
			if oldY >= boundary && newY < boundary {
				newY = boundary
				hit = true
			}
		}
	}

	return newY, hit
}

// collectObstacles собирает все блокирующие AABB в области
func collectObstacles(box AABB, q WorldQuery) []AABB {
	obstacles := tileAABBsIn(box, q)
	obstacles = append(obstacles, q.PropAABBs(box)...)
	obstacles = append(obstacles, q.SolidBodyAABBs(box)...)
	return obstacles
}

// ResolvePenetration выталкивает тело из пересекающихся твёрдых AABB
// по кратчайшей оси. Используется богатым серверным путём (entity push).
func ResolvePenetration(b *Body, obstacles []AABB) {
	for _, obs := range obstacles {
		box := b.Box()
		if !box.Overlaps(obs) {
			continue
		}

		left := box.Max.X - obs.Min.X
		right := obs.Max.X - box.Min.X
		up := box.Max.Y - obs.Min.Y
		down := obs.Max.Y - box.Min.Y

		minPush := left
		axis := 0 // 0: -X, 1: +X, 2: -Y, 3: +Y
		if right < minPush {
			minPush = right
			axis = 1
		}
		if up < minPush {
			minPush = up
			axis = 2
		}
		if down < minPush {
			minPush = down
			axis = 3
		}

		switch axis {
		case 0:
			b.Pos.X -= minPush
		case 1:
			b.Pos.X += minPush
		case 2:
			b.Pos.Y -= minPush
		case 3:
			b.Pos.Y += minPush
		}
	}
}
