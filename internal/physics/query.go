package physics

import (
	"math"

	"github.com/annel0/realm-server/internal/vec"
)

// AABB прямоугольник в мировых координатах
type AABB struct {
	Min, Max vec.Vec2Float
}

// Overlaps проверяет пересечение двух AABB
func (a AABB) Overlaps(b AABB) bool {
	return a.Min.X < b.Max.X && a.Max.X > b.Min.X &&
		a.Min.Y < b.Max.Y && a.Max.Y > b.Min.Y
}

// Expand расширяет AABB на margin во все стороны
func (a AABB) Expand(margin float64) AABB {
	return AABB{
		Min: vec.Vec2Float{X: a.Min.X - margin, Y: a.Min.Y - margin},
		Max: vec.Vec2Float{X: a.Max.X + margin, Y: a.Max.Y + margin},
	}
}

// Union возвращает AABB, покрывающий оба
func (a AABB) Union(b AABB) AABB {
	return AABB{
		Min: vec.Vec2Float{X: math.Min(a.Min.X, b.Min.X), Y: math.Min(a.Min.Y, b.Min.Y)},
		Max: vec.Vec2Float{X: math.Max(a.Max.X, b.Max.X), Y: math.Max(a.Max.Y, b.Max.Y)},
	}
}

// TileAABB возвращает AABB тайла
func TileAABB(t vec.Vec2) AABB {
	return AABB{
		Min: vec.Vec2Float{X: float64(t.X) * vec.TileSize, Y: float64(t.Y) * vec.TileSize},
		Max: vec.Vec2Float{X: float64(t.X+1) * vec.TileSize, Y: float64(t.Y+1) * vec.TileSize},
	}
}

// WorldQuery — интерфейсы мира, которые потребляет ядро движения.
// Реализации живут в realm (сервер) и в тестовых фейках.
type WorldQuery interface {
	// SolidTile сообщает, является ли тайл непроходимым
	SolidTile(t vec.Vec2) bool
	// HazardTile сообщает, опасен ли тайл для приземления
	HazardTile(t vec.Vec2) bool
	// PropAABBs возвращает коллайдеры пропов, пересекающие область
	PropAABBs(box AABB) []AABB
	// SolidBodyAABBs возвращает коллайдеры твёрдых сущностей в области
	// (исключение самой сущности — забота реализации)
	SolidBodyAABBs(box AABB) []AABB
}

// tileAABBsIn собирает AABB непроходимых тайлов, пересекающих область
func tileAABBsIn(box AABB, q WorldQuery) []AABB {
	minT := vec.Vec2Float{X: box.Min.X, Y: box.Min.Y}.ToTile()
	maxT := vec.Vec2Float{X: box.Max.X, Y: box.Max.Y}.ToTile()

	var out []AABB
	for ty := minT.Y; ty <= maxT.Y; ty++ {
		for tx := minT.X; tx <= maxT.X; tx++ {
			t := vec.Vec2{X: tx, Y: ty}
			if q.SolidTile(t) {
				out = append(out, TileAABB(t))
			}
		}
	}
	return out
}
