package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/annel0/realm-server/internal/eventbus"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/vec"
	"github.com/google/uuid"
)

func publishEvent(t *testing.T, bus eventbus.EventBus, eventType string, payload interface{}) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Ошибка сериализации payload: %v", err)
	}

	ev := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "realm/test",
		EventType: eventType,
		Version:   1,
		Payload:   data,
	}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Ошибка публикации события: %v", err)
	}
}

// waitFor опрашивает условие, пока оно не выполнится или не выйдет таймаут.
// Доставка в memory-шине асинхронная относительно публикации.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestFlusher_PersistsDirtyChunks тестирует сохранение чанков из событий
func TestFlusher_PersistsDirtyChunks(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	ws := newTestWorldStore(t)

	f := NewFlusher(bus, ws, nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Ошибка запуска Flusher: %v", err)
	}
	defer f.Stop()

	publishEvent(t, bus, eventbus.EventChunkDirty, eventbus.ChunkDirtyPayload{
		Realm:    "test",
		Revision: 7,
		Chunk: protocol.ChunkSync{
			CX:    1,
			CY:    2,
			Tiles: []protocol.TileState{{X: 3, Y: 4, Kind: 1}},
		},
	})

	waitFor(t, func() bool {
		_, found, err := ws.LoadChunk("test", 1, 2)
		return err == nil && found
	}, "Чанк не был сохранён из события chunk_dirty")

	stored, _, err := ws.LoadChunk("test", 1, 2)
	if err != nil {
		t.Fatalf("Ошибка загрузки чанка: %v", err)
	}
	if stored.Revision != 7 || len(stored.Chunk.Tiles) != 1 {
		t.Errorf("Чанк сохранён искажённым: rev=%d, tiles=%d", stored.Revision, len(stored.Chunk.Tiles))
	}
}

// TestFlusher_PersistsPlayerPositions тестирует сохранение позиций из событий
func TestFlusher_PersistsPlayerPositions(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	repo := NewMemoryPositionRepo()

	f := NewFlusher(bus, nil, repo)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Ошибка запуска Flusher: %v", err)
	}
	defer f.Stop()

	publishEvent(t, bus, eventbus.EventPlayerPosition, eventbus.PlayerPositionPayload{
		Realm:  "test",
		Client: 42,
		X:      160,
		Y:      320,
	})

	waitFor(t, func() bool {
		_, found, err := repo.Load(context.Background(), "test", 42)
		return err == nil && found
	}, "Позиция не была сохранена из события player_position")

	pos, _, err := repo.Load(context.Background(), "test", 42)
	if err != nil {
		t.Fatalf("Ошибка загрузки позиции: %v", err)
	}
	if pos != (vec.Vec2Float{X: 160, Y: 320}) {
		t.Errorf("Позиция искажена: %+v", pos)
	}
}

// TestFlusher_IgnoresUnrelatedEvents тестирует фильтрацию событий
func TestFlusher_IgnoresUnrelatedEvents(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	repo := NewMemoryPositionRepo()

	f := NewFlusher(bus, nil, repo)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Ошибка запуска Flusher: %v", err)
	}
	defer f.Stop()

	// Спавн сущности не должен трогать репозиторий позиций
	publishEvent(t, bus, eventbus.EventEntitySpawn, eventbus.EntityPayload{
		Realm: "test",
		ID:    42,
	})
	// Второе событие — маркер того, что первое уже доставлено
	publishEvent(t, bus, eventbus.EventPlayerPosition, eventbus.PlayerPositionPayload{
		Realm:  "test",
		Client: 7,
		X:      1,
		Y:      1,
	})

	waitFor(t, func() bool {
		_, found, err := repo.Load(context.Background(), "test", 7)
		return err == nil && found
	}, "Маркерное событие не было доставлено")

	_, found, err := repo.Load(context.Background(), "test", 42)
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}
	if found {
		t.Error("Событие entity_spawn не должно сохранять позицию")
	}
}

// TestFlusher_StopUnsubscribes тестирует остановку
func TestFlusher_StopUnsubscribes(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	repo := NewMemoryPositionRepo()

	f := NewFlusher(bus, nil, repo)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Ошибка запуска Flusher: %v", err)
	}
	f.Stop()

	publishEvent(t, bus, eventbus.EventPlayerPosition, eventbus.PlayerPositionPayload{
		Realm:  "test",
		Client: 99,
		X:      5,
		Y:      5,
	})

	// Даём диспетчеру время; позиция не должна появиться
	time.Sleep(50 * time.Millisecond)

	_, found, err := repo.Load(context.Background(), "test", 99)
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}
	if found {
		t.Error("Позиция сохранена после Stop")
	}
}
