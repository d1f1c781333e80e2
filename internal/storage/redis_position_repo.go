package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/realm-server/internal/vec"
	"github.com/go-redis/redis/v8"
)

// RedisPositionRepo реализует PositionRepo поверх Redis.
// Подходит как быстрый кеш перед MariaDB или как основное хранилище
// для короткоживущих миров: записи истекают по TTL.
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей (0 = без истечения)
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "realm:pos:",
		TTL:       24 * time.Hour,
	}
}

// storedPosition — формат значения в Redis.
type storedPosition struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRedisPositionRepo создаёт новый Redis-репозиторий позиций.
func NewRedisPositionRepo(config *RedisConfig) (*RedisPositionRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return &RedisPositionRepo{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

func (r *RedisPositionRepo) key(realm string, clientID uint64) string {
	return fmt.Sprintf("%s%s:%d", r.keyPrefix, realm, clientID)
}

// Save сохраняет позицию игрока в Redis.
func (r *RedisPositionRepo) Save(ctx context.Context, realm string, clientID uint64, pos vec.Vec2Float) error {
	if clientID == 0 {
		return fmt.Errorf("недействительный clientID: %d", clientID)
	}

	data, err := json.Marshal(storedPosition{X: pos.X, Y: pos.Y, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("ошибка сериализации позиции: %w", err)
	}

	if err := r.client.Set(ctx, r.key(realm, clientID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения позиции для клиента %d: %w", clientID, err)
	}

	return nil
}

// Load загружает позицию игрока из Redis.
func (r *RedisPositionRepo) Load(ctx context.Context, realm string, clientID uint64) (vec.Vec2Float, bool, error) {
	if clientID == 0 {
		return vec.Vec2Float{}, false, fmt.Errorf("недействительный clientID: %d", clientID)
	}

	data, err := r.client.Get(ctx, r.key(realm, clientID)).Result()
	if err == redis.Nil {
		return vec.Vec2Float{}, false, nil
	}
	if err != nil {
		return vec.Vec2Float{}, false, fmt.Errorf("ошибка загрузки позиции для клиента %d: %w", clientID, err)
	}

	var stored storedPosition
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return vec.Vec2Float{}, false, fmt.Errorf("ошибка десериализации позиции: %w", err)
	}

	return vec.Vec2Float{X: stored.X, Y: stored.Y}, true, nil
}

// Delete удаляет сохранённую позицию игрока.
func (r *RedisPositionRepo) Delete(ctx context.Context, realm string, clientID uint64) error {
	if err := r.client.Del(ctx, r.key(realm, clientID)).Err(); err != nil {
		return fmt.Errorf("ошибка удаления позиции для клиента %d: %w", clientID, err)
	}
	return nil
}

// BatchSave сохраняет позиции нескольких игроков одним пайплайном.
func (r *RedisPositionRepo) BatchSave(ctx context.Context, realm string, positions map[uint64]vec.Vec2Float) error {
	if len(positions) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	now := time.Now().UTC()

	for clientID, pos := range positions {
		if clientID == 0 {
			return fmt.Errorf("недействительный clientID в batch: %d", clientID)
		}

		data, err := json.Marshal(storedPosition{X: pos.X, Y: pos.Y, UpdatedAt: now})
		if err != nil {
			return fmt.Errorf("ошибка сериализации позиции для клиента %d: %w", clientID, err)
		}
		pipe.Set(ctx, r.key(realm, clientID), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ошибка выполнения batch: %w", err)
	}

	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}
