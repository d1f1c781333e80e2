package storage

import (
	"testing"

	"github.com/annel0/realm-server/internal/protocol"
)

func newTestWorldStore(t *testing.T) *WorldStore {
	t.Helper()

	ws, err := NewWorldStore(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка открытия хранилища: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	return ws
}

// TestWorldStore_SaveLoadChunk тестирует сохранение и загрузку чанков
func TestWorldStore_SaveLoadChunk(t *testing.T) {
	ws := newTestWorldStore(t)

	chunk := protocol.ChunkSync{
		CX: 2,
		CY: -1,
		Tiles: []protocol.TileState{
			{X: 0, Y: 0, Kind: 1},
			{X: 5, Y: 7, Kind: 2},
		},
	}

	if err := ws.SaveChunk("test", 42, chunk); err != nil {
		t.Fatalf("Ошибка сохранения чанка: %v", err)
	}

	stored, found, err := ws.LoadChunk("test", 2, -1)
	if err != nil {
		t.Fatalf("Ошибка загрузки чанка: %v", err)
	}
	if !found {
		t.Fatal("Чанк не найден после сохранения")
	}

	if stored.Revision != 42 {
		t.Errorf("Ревизия: ожидалась 42, получена %d", stored.Revision)
	}
	if len(stored.Chunk.Tiles) != 2 {
		t.Fatalf("Тайлы: ожидалось 2, получено %d", len(stored.Chunk.Tiles))
	}
	if stored.Chunk.Tiles[1].Kind != 2 {
		t.Errorf("Тайл 1: ожидался kind=2, получен %d", stored.Chunk.Tiles[1].Kind)
	}
}

// TestWorldStore_LoadMissingChunk тестирует загрузку несуществующего чанка
func TestWorldStore_LoadMissingChunk(t *testing.T) {
	ws := newTestWorldStore(t)

	stored, found, err := ws.LoadChunk("test", 100, 100)
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}
	if found || stored != nil {
		t.Error("Несуществующий чанк не должен быть найден")
	}
}

// TestWorldStore_OverwriteChunk тестирует перезапись чанка новой ревизией
func TestWorldStore_OverwriteChunk(t *testing.T) {
	ws := newTestWorldStore(t)

	chunk := protocol.ChunkSync{CX: 0, CY: 0, Tiles: []protocol.TileState{{X: 1, Y: 1, Kind: 1}}}
	if err := ws.SaveChunk("test", 1, chunk); err != nil {
		t.Fatalf("Ошибка первого сохранения: %v", err)
	}

	chunk.Tiles = nil // Стена снесена, чанк снова пустой
	if err := ws.SaveChunk("test", 2, chunk); err != nil {
		t.Fatalf("Ошибка второго сохранения: %v", err)
	}

	stored, found, err := ws.LoadChunk("test", 0, 0)
	if err != nil || !found {
		t.Fatalf("Ошибка загрузки: %v (found=%v)", err, found)
	}

	if stored.Revision != 2 {
		t.Errorf("Ревизия: ожидалась 2, получена %d", stored.Revision)
	}
	if len(stored.Chunk.Tiles) != 0 {
		t.Errorf("Ожидался пустой чанк, получено %d тайлов", len(stored.Chunk.Tiles))
	}
}

// TestWorldStore_LoadChunks тестирует перебор всех чанков мира
func TestWorldStore_LoadChunks(t *testing.T) {
	ws := newTestWorldStore(t)

	for i := 0; i < 3; i++ {
		chunk := protocol.ChunkSync{CX: i, CY: 0}
		if err := ws.SaveChunk("alpha", uint64(i+1), chunk); err != nil {
			t.Fatalf("Ошибка сохранения чанка %d: %v", i, err)
		}
	}
	// Чанк другого мира не должен попасть в перебор
	if err := ws.SaveChunk("beta", 1, protocol.ChunkSync{CX: 9, CY: 9}); err != nil {
		t.Fatalf("Ошибка сохранения чанка: %v", err)
	}

	seen := make(map[int]uint64)
	err := ws.LoadChunks("alpha", func(sc StoredChunk) error {
		seen[sc.Chunk.CX] = sc.Revision
		return nil
	})
	if err != nil {
		t.Fatalf("Ошибка перебора чанков: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("Ожидалось 3 чанка, получено %d", len(seen))
	}
	for i := 0; i < 3; i++ {
		if seen[i] != uint64(i+1) {
			t.Errorf("Чанк %d: ожидалась ревизия %d, получена %d", i, i+1, seen[i])
		}
	}
}

// TestWorldStore_SaveLoadEntities тестирует снапшоты сущностей
func TestWorldStore_SaveLoadEntities(t *testing.T) {
	ws := newTestWorldStore(t)

	entities := []EntityRecord{
		{ID: 1001, Type: 2, X: 160, Y: 320},
		{ID: 1002, Type: 3, X: 48, Y: 96},
	}

	if err := ws.SaveEntities("test", entities); err != nil {
		t.Fatalf("Ошибка сохранения сущностей: %v", err)
	}

	loaded, err := ws.LoadEntities("test")
	if err != nil {
		t.Fatalf("Ошибка загрузки сущностей: %v", err)
	}

	if len(loaded) != 2 {
		t.Fatalf("Ожидалось 2 сущности, получено %d", len(loaded))
	}
	if loaded[0] != entities[0] || loaded[1] != entities[1] {
		t.Errorf("Сущности искажены: %+v", loaded)
	}

	// Мир без снапшота — пустой срез, не ошибка
	empty, err := ws.LoadEntities("nowhere")
	if err != nil {
		t.Fatalf("Ошибка загрузки пустого мира: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Ожидался пустой срез, получено %d сущностей", len(empty))
	}
}

// TestWorldStore_ClosedStoreRejects тестирует операции после Close
func TestWorldStore_ClosedStoreRejects(t *testing.T) {
	ws, err := NewWorldStore(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка открытия хранилища: %v", err)
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Ошибка закрытия хранилища: %v", err)
	}

	if err := ws.SaveChunk("test", 1, protocol.ChunkSync{}); err == nil {
		t.Error("SaveChunk после Close должен вернуть ошибку")
	}
	if _, _, err := ws.LoadChunk("test", 0, 0); err == nil {
		t.Error("LoadChunk после Close должен вернуть ошибку")
	}

	// Повторный Close безопасен
	if err := ws.Close(); err != nil {
		t.Errorf("Повторный Close вернул ошибку: %v", err)
	}
}
