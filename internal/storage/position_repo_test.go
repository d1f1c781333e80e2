package storage

import (
	"context"
	"testing"

	"github.com/annel0/realm-server/internal/vec"
)

// TestMemoryPositionRepo тестирует in-memory репозиторий позиций
func TestMemoryPositionRepo(t *testing.T) {
	repo := NewMemoryPositionRepo()
	ctx := context.Background()
	realm := "test"

	t.Run("Save and Load", func(t *testing.T) {
		clientID := uint64(123)
		expectedPos := vec.Vec2Float{X: 160.5, Y: 320.25}

		err := repo.Save(ctx, realm, clientID, expectedPos)
		if err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}

		actualPos, found, err := repo.Load(ctx, realm, clientID)
		if err != nil {
			t.Fatalf("Ошибка загрузки позиции: %v", err)
		}

		if !found {
			t.Fatal("Позиция не найдена")
		}

		if actualPos != expectedPos {
			t.Errorf("Неверная позиция: ожидалась %+v, получена %+v", expectedPos, actualPos)
		}
	})

	t.Run("Load Non-Existent Client", func(t *testing.T) {
		pos, found, err := repo.Load(ctx, realm, 999)
		if err != nil {
			t.Fatalf("Ошибка при загрузке несуществующего клиента: %v", err)
		}

		if found {
			t.Error("Позиция найдена для несуществующего клиента")
		}

		if pos != (vec.Vec2Float{}) {
			t.Errorf("Ожидалась пустая позиция, получена: %+v", pos)
		}
	})

	t.Run("Realms Are Isolated", func(t *testing.T) {
		clientID := uint64(777)

		if err := repo.Save(ctx, "alpha", clientID, vec.Vec2Float{X: 1, Y: 2}); err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}

		_, found, err := repo.Load(ctx, "beta", clientID)
		if err != nil {
			t.Fatalf("Ошибка загрузки позиции: %v", err)
		}

		if found {
			t.Error("Позиция из мира alpha видна в мире beta")
		}
	})

	t.Run("Update Position", func(t *testing.T) {
		clientID := uint64(456)
		firstPos := vec.Vec2Float{X: 1, Y: 2}
		secondPos := vec.Vec2Float{X: 300, Y: 400}

		if err := repo.Save(ctx, realm, clientID, firstPos); err != nil {
			t.Fatalf("Ошибка первого сохранения: %v", err)
		}
		if err := repo.Save(ctx, realm, clientID, secondPos); err != nil {
			t.Fatalf("Ошибка второго сохранения: %v", err)
		}

		pos, found, err := repo.Load(ctx, realm, clientID)
		if err != nil || !found {
			t.Fatalf("Ошибка загрузки обновлённой позиции: %v (found=%v)", err, found)
		}

		if pos != secondPos {
			t.Errorf("Позиция не обновилась: ожидалась %+v, получена %+v", secondPos, pos)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		clientID := uint64(321)

		if err := repo.Save(ctx, realm, clientID, vec.Vec2Float{X: 5, Y: 5}); err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}

		if err := repo.Delete(ctx, realm, clientID); err != nil {
			t.Fatalf("Ошибка удаления позиции: %v", err)
		}

		_, found, err := repo.Load(ctx, realm, clientID)
		if err != nil {
			t.Fatalf("Ошибка загрузки после удаления: %v", err)
		}
		if found {
			t.Error("Позиция найдена после удаления")
		}

		if err := repo.Delete(ctx, realm, clientID); err == nil {
			t.Error("Повторное удаление должно вернуть ошибку")
		}
	})

	t.Run("BatchSave", func(t *testing.T) {
		positions := map[uint64]vec.Vec2Float{
			1001: {X: 10, Y: 10},
			1002: {X: 20, Y: 20},
			1003: {X: 30, Y: 30},
		}

		if err := repo.BatchSave(ctx, realm, positions); err != nil {
			t.Fatalf("Ошибка batch-сохранения: %v", err)
		}

		for clientID, expected := range positions {
			pos, found, err := repo.Load(ctx, realm, clientID)
			if err != nil || !found {
				t.Fatalf("Позиция клиента %d не найдена после batch: %v", clientID, err)
			}
			if pos != expected {
				t.Errorf("Клиент %d: ожидалась %+v, получена %+v", clientID, expected, pos)
			}
		}
	})

	t.Run("Invalid ClientID", func(t *testing.T) {
		if err := repo.Save(ctx, realm, 0, vec.Vec2Float{}); err == nil {
			t.Error("Save с clientID=0 должен вернуть ошибку")
		}
		if _, _, err := repo.Load(ctx, realm, 0); err == nil {
			t.Error("Load с clientID=0 должен вернуть ошибку")
		}
	})
}
