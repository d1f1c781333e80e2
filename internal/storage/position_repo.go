package storage

import (
	"context"

	"github.com/annel0/realm-server/internal/vec"
)

// PositionRepo определяет интерфейс для сохранения и загрузки позиций игроков.
// Позиции привязаны к ClientID (постоянный идентификатор аккаунта), а не к
// EntityID, и скопированы по realm: один клиент может иметь позицию в каждом
// мире. Сохранённая позиция используется при следующем входе как точка спавна.
type PositionRepo interface {
	// Save сохраняет позицию игрока в хранилище.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   realm - идентификатор мира
	//   clientID - уникальный идентификатор клиента
	//   pos - позиция в пикселях мира
	// Возвращает:
	//   error - ошибка при сохранении
	Save(ctx context.Context, realm string, clientID uint64, pos vec.Vec2Float) error

	// Load загружает позицию игрока из хранилища.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   realm - идентификатор мира
	//   clientID - уникальный идентификатор клиента
	// Возвращает:
	//   vec.Vec2Float - позиция игрока
	//   bool - true если позиция найдена, false если первый вход
	//   error - ошибка при загрузке
	Load(ctx context.Context, realm string, clientID uint64) (vec.Vec2Float, bool, error)

	// Delete удаляет сохранённую позицию игрока (для тестов или сброса).
	Delete(ctx context.Context, realm string, clientID uint64) error

	// BatchSave сохраняет позиции нескольких игроков одновременно
	// (для автосохранения всех онлайн игроков одного мира).
	BatchSave(ctx context.Context, realm string, positions map[uint64]vec.Vec2Float) error
}
