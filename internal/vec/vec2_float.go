package vec

import "math"

// Vec2Float представляет мировые координаты с плавающей точкой (в пикселях)
type Vec2Float struct {
	X, Y float64
}

// ToTile преобразует мировые координаты в координаты тайла
func (v Vec2Float) ToTile() Vec2 {
	return Vec2{X: int(math.Floor(v.X / TileSize)), Y: int(math.Floor(v.Y / TileSize))}
}

// FromVec2 создает Vec2Float из координат тайла (центр тайла)
func FromVec2(v Vec2) Vec2Float {
	return Vec2Float{X: float64(v.X)*TileSize + TileSize/2, Y: float64(v.Y)*TileSize + TileSize/2}
}

// Add складывает два вектора
func (v Vec2Float) Add(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub вычитает вектор
func (v Vec2Float) Sub(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul умножает вектор на скаляр
func (v Vec2Float) Mul(scalar float64) Vec2Float {
	return Vec2Float{X: v.X * scalar, Y: v.Y * scalar}
}

// Dot возвращает скалярное произведение
func (v Vec2Float) Dot(other Vec2Float) float64 {
	return v.X*other.X + v.Y*other.Y
}

// Normalized возвращает нормализованный вектор
func (v Vec2Float) Normalized() Vec2Float {
	length := v.Length()
	if length == 0 {
		return Vec2Float{X: 0, Y: 0}
	}
	return Vec2Float{X: v.X / length, Y: v.Y / length}
}

// Length возвращает длину вектора
func (v Vec2Float) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2Float) DistanceTo(other Vec2Float) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}
