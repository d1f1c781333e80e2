package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/annel0/realm-server/internal/vec"
	_ "github.com/go-sql-driver/mysql"
)

// MariaPositionRepo реализует PositionRepo для базы данных MariaDB/MySQL.
// Использует таблицу player_positions для хранения позиций игроков.
type MariaPositionRepo struct {
	db *sql.DB
}

// NewMariaPositionRepo создает новый репозиторий позиций для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
//
// Возвращает:
//
//	*MariaPositionRepo - экземпляр репозитория
//	error - ошибка при подключении или создании таблицы
func NewMariaPositionRepo(dsn string) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPositionRepo{db: db}

	// Создаем таблицу, если она не существует
	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создает таблицу player_positions, если она не существует.
func (r *MariaPositionRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS player_positions (
			realm      VARCHAR(64) NOT NULL,
			client_id  BIGINT      NOT NULL,
			x          DOUBLE      NOT NULL,
			y          DOUBLE      NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP,
			PRIMARY KEY (realm, client_id),
			INDEX idx_updated_at (updated_at)
		) ENGINE=InnoDB
	`

	_, err := r.db.Exec(query)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы player_positions: %w", err)
	}

	return nil
}

// Save сохраняет позицию игрока в базе данных.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (r *MariaPositionRepo) Save(ctx context.Context, realm string, clientID uint64, pos vec.Vec2Float) error {
	if clientID == 0 {
		return fmt.Errorf("недействительный clientID: %d", clientID)
	}

	query := `
		INSERT INTO player_positions (realm, client_id, x, y)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			x = VALUES(x),
			y = VALUES(y),
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query, realm, clientID, pos.X, pos.Y)
	if err != nil {
		return fmt.Errorf("ошибка сохранения позиции для клиента %d: %w", clientID, err)
	}

	return nil
}

// Load загружает позицию игрока из базы данных.
func (r *MariaPositionRepo) Load(ctx context.Context, realm string, clientID uint64) (vec.Vec2Float, bool, error) {
	if clientID == 0 {
		return vec.Vec2Float{}, false, fmt.Errorf("недействительный clientID: %d", clientID)
	}

	query := `SELECT x, y FROM player_positions WHERE realm = ? AND client_id = ?`

	var pos vec.Vec2Float
	err := r.db.QueryRowContext(ctx, query, realm, clientID).Scan(&pos.X, &pos.Y)

	if err == sql.ErrNoRows {
		// Позиция не найдена - первый вход клиента
		return vec.Vec2Float{}, false, nil
	}

	if err != nil {
		return vec.Vec2Float{}, false, fmt.Errorf("ошибка загрузки позиции для клиента %d: %w", clientID, err)
	}

	return pos, true, nil
}

// Delete удаляет сохранённую позицию игрока.
func (r *MariaPositionRepo) Delete(ctx context.Context, realm string, clientID uint64) error {
	if clientID == 0 {
		return fmt.Errorf("недействительный clientID: %d", clientID)
	}

	query := `DELETE FROM player_positions WHERE realm = ? AND client_id = ?`

	result, err := r.db.ExecContext(ctx, query, realm, clientID)
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции для клиента %d: %w", clientID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("позиция для клиента %d не найдена", clientID)
	}

	return nil
}

// BatchSave сохраняет позиции нескольких игроков в одной транзакции.
// Это оптимизация для автосохранения всех онлайн игроков мира.
func (r *MariaPositionRepo) BatchSave(ctx context.Context, realm string, positions map[uint64]vec.Vec2Float) error {
	if len(positions) == 0 {
		return nil // Нечего сохранять
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	query := `
		INSERT INTO player_positions (realm, client_id, x, y)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			x = VALUES(x),
			y = VALUES(y),
			updated_at = CURRENT_TIMESTAMP
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for clientID, pos := range positions {
		if clientID == 0 {
			return fmt.Errorf("недействительный clientID в batch: %d", clientID)
		}

		_, err = stmt.ExecContext(ctx, realm, clientID, pos.X, pos.Y)
		if err != nil {
			return fmt.Errorf("ошибка сохранения позиции для клиента %d в batch: %w", clientID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaPositionRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
