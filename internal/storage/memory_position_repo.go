package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/realm-server/internal/vec"
)

// MemoryPositionRepo реализует PositionRepo в памяти процесса.
// Используется в тестах и в standalone-режиме без внешней базы.
// Все данные теряются при перезапуске сервера.
type MemoryPositionRepo struct {
	mu        sync.RWMutex
	positions map[string]vec.Vec2Float // ключ realm:clientID
}

// NewMemoryPositionRepo создает новый репозиторий позиций в памяти.
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		positions: make(map[string]vec.Vec2Float),
	}
}

func positionKey(realm string, clientID uint64) string {
	return fmt.Sprintf("%s:%d", realm, clientID)
}

// Save сохраняет позицию игрока в памяти.
func (r *MemoryPositionRepo) Save(ctx context.Context, realm string, clientID uint64, pos vec.Vec2Float) error {
	if clientID == 0 {
		return fmt.Errorf("недействительный clientID: %d", clientID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[positionKey(realm, clientID)] = pos
	return nil
}

// Load загружает позицию игрока из памяти.
func (r *MemoryPositionRepo) Load(ctx context.Context, realm string, clientID uint64) (vec.Vec2Float, bool, error) {
	if clientID == 0 {
		return vec.Vec2Float{}, false, fmt.Errorf("недействительный clientID: %d", clientID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.positions[positionKey(realm, clientID)]
	return pos, ok, nil
}

// Delete удаляет сохранённую позицию игрока.
func (r *MemoryPositionRepo) Delete(ctx context.Context, realm string, clientID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := positionKey(realm, clientID)
	if _, ok := r.positions[key]; !ok {
		return fmt.Errorf("позиция для клиента %d не найдена", clientID)
	}

	delete(r.positions, key)
	return nil
}

// BatchSave сохраняет позиции нескольких игроков одновременно.
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, realm string, positions map[uint64]vec.Vec2Float) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, pos := range positions {
		if clientID == 0 {
			return fmt.Errorf("недействительный clientID в batch: %d", clientID)
		}
		r.positions[positionKey(realm, clientID)] = pos
	}
	return nil
}
