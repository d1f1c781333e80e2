package realm

import (
	"sort"

	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/physics"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/vec"
)

// TileKind определяет тип тайла мира
type TileKind uint8

const (
	TileFloor  TileKind = 0 // Проходимый пол
	TileWall   TileKind = 1 // Непроходимая стена
	TileHazard TileKind = 2 // Опасный тайл (лава, шипы)
)

// Prop статический объект мира с коллайдером.
// Пропы не симулируются и не входят в реестр сущностей.
type Prop struct {
	ID  uint64
	Box physics.AABB
}

// World хранит тайловую карту и пропы одного мира.
// Мутируется только из горутины тика владеющего Realm.
type World struct {
	tiles map[vec.Vec2]TileKind
	props []Prop

	// Ревизии чанков для sync-концерна chunk; растут монотонно
	chunkRevs map[vec.Vec2]uint64
	dirty     map[vec.Vec2]struct{}
	propsRev  uint64
}

// NewWorld создаёт пустой мир (все тайлы — пол)
func NewWorld() *World {
	return &World{
		tiles:     make(map[vec.Vec2]TileKind),
		chunkRevs: make(map[vec.Vec2]uint64),
		dirty:     make(map[vec.Vec2]struct{}),
		propsRev:  1,
	}
}

// SetTile изменяет тайл, поднимает ревизию чанка и помечает его грязным
func (w *World) SetTile(pos vec.Vec2, kind TileKind) {
	if kind == TileFloor {
		delete(w.tiles, pos)
	} else {
		w.tiles[pos] = kind
	}
	cc := pos.ToChunkCoords()
	w.chunkRevs[cc]++
	w.dirty[cc] = struct{}{}
}

// RestoreChunk восстанавливает чанк из хранилища: тайлы встают на место,
// ревизия продолжает расти с сохранённого значения. Чанк не помечается
// грязным — он только что прочитан с диска.
func (w *World) RestoreChunk(chunk protocol.ChunkSync, rev uint64) {
	cc := vec.Vec2{X: chunk.CX, Y: chunk.CY}
	base := vec.Vec2{X: cc.X * 16, Y: cc.Y * 16}

	// Сначала очищаем чанк: сохранённое состояние полное, не дельта
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			delete(w.tiles, vec.Vec2{X: base.X + x, Y: base.Y + y})
		}
	}
	for _, t := range chunk.Tiles {
		w.tiles[vec.Vec2{X: base.X + t.X, Y: base.Y + t.Y}] = TileKind(t.Kind)
	}

	if rev > w.chunkRevs[cc] {
		w.chunkRevs[cc] = rev
	}
}

// Tile возвращает тип тайла в указанной позиции
func (w *World) Tile(pos vec.Vec2) TileKind {
	return w.tiles[pos]
}

// FillWalls заполняет прямоугольник [from..to] стенами (включительно)
func (w *World) FillWalls(from, to vec.Vec2) {
	for y := from.Y; y <= to.Y; y++ {
		for x := from.X; x <= to.X; x++ {
			w.SetTile(vec.Vec2{X: x, Y: y}, TileWall)
		}
	}
}

// AddProp добавляет статический объект и поднимает ревизию списка пропов
func (w *World) AddProp(p Prop) {
	w.props = append(w.props, p)
	w.propsRev++
}

// DrainDirty возвращает и очищает множество грязных чанков
func (w *World) DrainDirty() []vec.Vec2 {
	if len(w.dirty) == 0 {
		return nil
	}
	out := make([]vec.Vec2, 0, len(w.dirty))
	for cc := range w.dirty {
		out = append(out, cc)
	}
	w.dirty = make(map[vec.Vec2]struct{})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// ChunkPayload собирает содержимое чанка для пересылки клиенту.
// Карта тайлов разреженная (пол не хранится), поэтому дешевле пройти
// по ней, чем опрашивать все 256 клеток чанка. Порядок тайлов
// фиксированный: y-мажорный, как их рисует клиент.
func (w *World) ChunkPayload(cc vec.Vec2) protocol.ChunkSync {
	out := protocol.ChunkSync{CX: cc.X, CY: cc.Y}
	for pos, kind := range w.tiles {
		if pos.ToChunkCoords() != cc {
			continue
		}
		local := pos.LocalInChunk()
		out.Tiles = append(out.Tiles, protocol.TileState{X: local.X, Y: local.Y, Kind: uint8(kind)})
	}
	sort.Slice(out.Tiles, func(i, j int) bool {
		if out.Tiles[i].Y != out.Tiles[j].Y {
			return out.Tiles[i].Y < out.Tiles[j].Y
		}
		return out.Tiles[i].X < out.Tiles[j].X
	})
	return out
}

// PropsPayload собирает полный список пропов для пересылки клиенту
func (w *World) PropsPayload() protocol.PropsSync {
	out := protocol.PropsSync{Props: make([]protocol.PropState, 0, len(w.props))}
	for _, p := range w.props {
		out.Props = append(out.Props, protocol.PropState{
			ID:   p.ID,
			MinX: p.Box.Min.X, MinY: p.Box.Min.Y,
			MaxX: p.Box.Max.X, MaxY: p.Box.Max.Y,
		})
	}
	return out
}

// collisionQuery — взгляд на мир для ядра кинематики от лица одной
// сущности: тайлы, пропы и твёрдые сущности, кроме самого движущегося,
// его маунта и его всадника.
type collisionQuery struct {
	r       *Realm
	exclude [3]uint64
}

func (q collisionQuery) SolidTile(t vec.Vec2) bool {
	return q.r.world.tiles[t] == TileWall
}

func (q collisionQuery) HazardTile(t vec.Vec2) bool {
	return q.r.world.tiles[t] == TileHazard
}

func (q collisionQuery) PropAABBs(area physics.AABB) []physics.AABB {
	var out []physics.AABB
	for _, p := range q.r.world.props {
		if p.Box.Overlaps(area) {
			out = append(out, p.Box)
		}
	}
	return out
}

func (q collisionQuery) SolidBodyAABBs(area physics.AABB) []physics.AABB {
	var out []physics.AABB
	for _, id := range q.r.sortedEntityIDs() {
		e := q.r.entities[id]
		if !e.Solid || e.Attached() {
			continue
		}
		if id == q.exclude[0] || id == q.exclude[1] || id == q.exclude[2] {
			continue
		}
		if box := e.Box(); box.Overlaps(area) {
			out = append(out, box)
		}
	}
	return out
}

// worldAPI — взгляд на мир для автоматов поведения
type worldAPI struct {
	r *Realm
}

func (a worldAPI) IsTilePassable(t vec.Vec2) bool {
	return a.r.world.tiles[t] != TileWall
}

func (a worldAPI) EntitiesInRange(center vec.Vec2Float, radius float64) []*entity.Kinematic {
	var out []*entity.Kinematic
	for _, id := range a.r.sortedEntityIDs() {
		e := a.r.entities[id]
		if e.Pos.DistanceTo(center) <= radius {
			out = append(out, e)
		}
	}
	return out
}
