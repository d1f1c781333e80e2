package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/realm-server/internal/protocol"
	"github.com/dgraph-io/badger/v3"
)

// WorldStore — дисковое хранилище состояния миров поверх BadgerDB.
// Хранит чанки тайлов и снапшоты сущностей по ключам, скопированным
// по realm. Чанк сохраняется целиком вместе со своей ревизией: при
// загрузке мира ревизия продолжает расти с сохранённого значения,
// и клиенты с устаревшим кешем получают свежий chunk-sync.
type WorldStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// StoredChunk — запись чанка в хранилище.
type StoredChunk struct {
	Revision uint64             `json:"rev"`
	Chunk    protocol.ChunkSync `json:"chunk"`
}

// EntityRecord — запись сущности в снапшоте мира.
type EntityRecord struct {
	ID   uint64  `json:"id"`
	Type uint16  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// NewWorldStore открывает хранилище мира в каталоге dataPath.
func NewWorldStore(dataPath string) (*WorldStore, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &WorldStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных.
func (ws *WorldStore) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	return ws.db.Close()
}

func chunkStoreKey(realm string, cx, cy int) []byte {
	return []byte(fmt.Sprintf("chunk:%s:%d:%d", realm, cx, cy))
}

func entitiesStoreKey(realm string) []byte {
	return []byte(fmt.Sprintf("entities:%s", realm))
}

// SaveChunk сохраняет чанк мира вместе с его ревизией.
func (ws *WorldStore) SaveChunk(realm string, revision uint64, chunk protocol.ChunkSync) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	data, err := json.Marshal(StoredChunk{Revision: revision, Chunk: chunk})
	if err != nil {
		return fmt.Errorf("ошибка сериализации чанка: %w", err)
	}

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkStoreKey(realm, chunk.CX, chunk.CY), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка в BadgerDB: %w", err)
	}

	return nil
}

// LoadChunk загружает чанк мира.
// Возвращает (nil, false, nil), если чанк никогда не сохранялся.
func (ws *WorldStore) LoadChunk(realm string, cx, cy int) (*StoredChunk, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, false, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkStoreKey(realm, cx, cy))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения чанка из BadgerDB: %w", err)
	}

	var stored StoredChunk
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("ошибка десериализации чанка: %w", err)
	}

	return &stored, true, nil
}

// LoadChunks перебирает все сохранённые чанки мира.
// Используется при старте для восстановления карты из хранилища.
func (ws *WorldStore) LoadChunks(realm string, fn func(StoredChunk) error) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	prefix := []byte(fmt.Sprintf("chunk:%s:", realm))

	return ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var stored StoredChunk
				if err := json.Unmarshal(val, &stored); err != nil {
					return fmt.Errorf("ошибка десериализации чанка: %w", err)
				}
				return fn(stored)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveEntities сохраняет снапшот сущностей мира.
// Пустой снапшот перезаписывает предыдущий: деспавн тоже состояние.
func (ws *WorldStore) SaveEntities(realm string, entities []EntityRecord) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сущностей: %w", err)
	}

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entitiesStoreKey(realm), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения сущностей в BadgerDB: %w", err)
	}

	return nil
}

// LoadEntities загружает снапшот сущностей мира.
// Возвращает пустой срез, если снапшот никогда не сохранялся.
func (ws *WorldStore) LoadEntities(realm string) ([]EntityRecord, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entitiesStoreKey(realm))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return []EntityRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сущностей из BadgerDB: %w", err)
	}

	var entities []EntityRecord
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сущностей: %w", err)
	}

	return entities, nil
}
