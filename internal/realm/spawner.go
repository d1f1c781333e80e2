package realm

import (
	"math"
	"math/rand"

	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/vec"
)

// Spawner поддерживает фоновое население мира: животные появляются
// рядом с игроками и исчезают, когда рядом никого не осталось.
// Работает по позициям после фазы симуляции.
type Spawner struct {
	TargetPerPlayer int     // Сколько животных держать возле игрока
	SpawnRadius     float64 // Радиус появления вокруг игрока
	DespawnRadius   float64 // Дистанция, за которой животное исчезает

	cooldown int
}

// NewSpawner создаёт спавнер с параметрами по умолчанию
func NewSpawner() *Spawner {
	return &Spawner{
		TargetPerPlayer: 3,
		SpawnRadius:     16 * vec.TileSize,
		DespawnRadius:   48 * vec.TileSize,
	}
}

// Maintain выполняет один проход обслуживания населения
func (sp *Spawner) Maintain(r *Realm) {
	// Сначала уборка: животные вдали от всех игроков
	for _, id := range r.sortedEntityIDs() {
		e := r.entities[id]
		if e.Type != entity.TypeAnimal {
			continue
		}
		if r.nearestPlayerDist(e.Pos) > sp.DespawnRadius {
			r.DespawnEntity(id)
		}
	}

	// Появление не чаще раза в несколько тиков
	sp.cooldown--
	if sp.cooldown > 0 {
		return
	}
	sp.cooldown = 10

	sessions := r.sortedSessions()
	if len(sessions) == 0 {
		return
	}

	animals := 0
	for _, id := range r.sortedEntityIDs() {
		if r.entities[id].Type == entity.TypeAnimal {
			animals++
		}
	}
	want := sp.TargetPerPlayer * len(sessions)
	if animals >= want {
		return
	}

	// Точка появления — случайное проходимое место возле случайного игрока
	s := sessions[rand.Intn(len(sessions))]
	player := r.entities[s.PlayerID]
	if player == nil {
		return
	}
	for attempt := 0; attempt < 4; attempt++ {
		angle := rand.Float64() * 2 * math.Pi
		dist := sp.SpawnRadius * (0.4 + 0.6*rand.Float64())
		pos := vec.Vec2Float{
			X: player.Pos.X + dist*math.Cos(angle),
			Y: player.Pos.Y + dist*math.Sin(angle),
		}
		if r.world.Tile(pos.ToTile()) != TileFloor {
			continue
		}
		r.SpawnEntity(entity.TypeAnimal, pos)
		return
	}
}
