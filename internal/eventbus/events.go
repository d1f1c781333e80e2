package eventbus

import "github.com/annel0/realm-server/internal/protocol"

// Типы событий мира и схемы их полезной нагрузки (JSON).
// Потребители: персистентность чанков и позиций, аналитика, логи.
const (
	EventEntitySpawn    = "entity_spawn"
	EventEntityDespawn  = "entity_despawn"
	EventChunkDirty     = "chunk_dirty"
	EventSessionJoin    = "session_join"
	EventSessionExpire  = "session_expire"
	EventPlayerPosition = "player_position"
)

// EntityPayload — спавн и деспавн сущностей
type EntityPayload struct {
	Realm string  `json:"realm"`
	ID    uint64  `json:"id"`
	Type  uint16  `json:"type,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

// ChunkDirtyPayload несёт изменённый чанк целиком: подписчик
// персистентности сохраняет его, не обращаясь к горутине тика
type ChunkDirtyPayload struct {
	Realm    string             `json:"realm"`
	Revision uint64             `json:"rev"`
	Chunk    protocol.ChunkSync `json:"chunk"`
}

// SessionPayload — вход и истечение сессий
type SessionPayload struct {
	Realm  string `json:"realm"`
	Client uint64 `json:"client"`
	Name   string `json:"name,omitempty"`
}

// PlayerPositionPayload публикуется при отключении и истечении сессии;
// подписчик сохраняет позицию для следующего входа
type PlayerPositionPayload struct {
	Realm  string  `json:"realm"`
	Client uint64  `json:"client"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}
