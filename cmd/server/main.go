package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/realm-server/internal/api"
	"github.com/annel0/realm-server/internal/auth"
	"github.com/annel0/realm-server/internal/config"
	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/eventbus"
	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/network"
	"github.com/annel0/realm-server/internal/observability"
	"github.com/annel0/realm-server/internal/realm"
	"github.com/annel0/realm-server/internal/storage"
	"github.com/annel0/realm-server/internal/vec"
)

const defaultRealmID = "main"

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск Realm Server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка чтения конфигурации: %v", err)
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
		logging.Info("Конфигурация не задана, используются значения по умолчанию")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Телеметрия опциональна: без коллектора сервер работает дальше
	shutdownTelemetry, err := observability.InitTelemetry(ctx, "realm-server")
	if err != nil {
		logging.Warn("Телеметрия не инициализирована: %v", err)
		shutdownTelemetry = nil
	}

	// === Шина событий ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		jsBus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream,
			time.Duration(cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			logging.Error("❌ Ошибка подключения к NATS: %v", err)
			log.Fatalf("❌ Ошибка подключения к NATS: %v", err)
		}
		defer jsBus.Close()
		bus = jsBus
		logging.Info("📨 Шина событий: JetStream %s", cfg.EventBus.URL)
	} else {
		bus = eventbus.NewMemoryBus(1024)
		logging.Info("📨 Шина событий: in-memory")
	}
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Лог-слушатель шины не запущен: %v", err)
	}

	busMetrics := eventbus.NewMetricsExporter(bus, nil)
	busMetrics.StartHTTP(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()))
	defer busMetrics.Stop()

	// === Персистентность ===
	var worldStore *storage.WorldStore
	if cfg.Storage.BadgerPath != "" {
		worldStore, err = storage.NewWorldStore(cfg.Storage.BadgerPath)
		if err != nil {
			logging.Error("❌ Ошибка открытия хранилища мира: %v", err)
			log.Fatalf("❌ Ошибка открытия хранилища мира: %v", err)
		}
		defer worldStore.Close()
		logging.Info("💾 Хранилище мира: Badger (%s)", cfg.Storage.BadgerPath)
	} else {
		logging.Info("💾 Хранилище мира отключено: мир живёт только в памяти")
	}

	positions := buildPositionRepo(cfg)

	flusher := storage.NewFlusher(bus, worldStore, positions)
	if err := flusher.Start(ctx); err != nil {
		logging.Error("❌ Ошибка запуска персистентности: %v", err)
		log.Fatalf("❌ Ошибка запуска персистентности: %v", err)
	}
	defer flusher.Stop()

	// === Пользователи и JWT ===
	userRepo := buildUserRepo(cfg)

	var secret []byte
	if cfg.Auth.JWTSecret != "" {
		secret, err = auth.DecodeSecret(cfg.Auth.JWTSecret)
		if err != nil {
			logging.Error("❌ Некорректный jwt_secret: %v", err)
			log.Fatalf("❌ Некорректный jwt_secret: %v", err)
		}
	}
	authn, err := auth.NewAuthenticator(userRepo, secret)
	if err != nil {
		logging.Error("❌ Ошибка инициализации аутентификации: %v", err)
		log.Fatalf("❌ Ошибка инициализации аутентификации: %v", err)
	}
	if len(secret) == 0 {
		logging.Warn("JWT-секрет сгенерирован случайно: токены не переживут рестарт")
	}

	// === Мир ===
	world := realm.NewWorld()
	restored := restoreWorld(world, worldStore)
	if restored == 0 {
		// Пустое хранилище: стартовая арена, огороженная стенами
		const aw, ah = 64, 48
		world.FillWalls(vec.Vec2{X: -1, Y: -1}, vec.Vec2{X: aw, Y: -1})
		world.FillWalls(vec.Vec2{X: -1, Y: ah}, vec.Vec2{X: aw, Y: ah})
		world.FillWalls(vec.Vec2{X: -1, Y: 0}, vec.Vec2{X: -1, Y: ah - 1})
		world.FillWalls(vec.Vec2{X: aw, Y: 0}, vec.Vec2{X: aw, Y: ah - 1})
		logging.Info("🌍 Мир %s: создана стартовая арена", defaultRealmID)
	} else {
		logging.Info("🌍 Мир %s: восстановлено %d чанков", defaultRealmID, restored)
	}

	opts := realm.OptionsFromConfig(defaultRealmID, cfg)
	opts.Bus = bus
	opts.Metrics = realm.NewMetrics(nil)
	if restored == 0 {
		opts.SpawnPoint = vec.FromVec2(vec.Vec2{X: 32, Y: 24}) // Центр арены
	}
	r := realm.New(world, opts)
	restoreEntities(r, worldStore)
	observability.InstrumentRealm(r)

	registry := realm.NewRegistry()
	if err := registry.Register(r); err != nil {
		log.Fatalf("❌ Ошибка регистрации мира: %v", err)
	}
	go registry.RunAll(ctx)

	// === Игровой транспорт ===
	gameServer, err := network.NewGameServer(network.Config{
		TCPAddr:       fmt.Sprintf(":%d", cfg.Server.GetTCPPort()),
		KCPAddr:       fmt.Sprintf(":%d", cfg.Server.GetKCPPort()),
		DefaultRealm:  defaultRealmID,
		Registry:      registry,
		Authenticator: authn,
		Positions:     positions,
		Metrics:       network.NewMetrics(nil),
	})
	if err != nil {
		logging.Error("❌ Ошибка создания игрового сервера: %v", err)
		log.Fatalf("❌ Ошибка создания игрового сервера: %v", err)
	}
	if err := gameServer.Start(); err != nil {
		logging.Error("❌ Ошибка запуска игрового сервера: %v", err)
		log.Fatalf("❌ Ошибка запуска игрового сервера: %v", err)
	}

	// === REST API ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	restServer := api.NewRestServer(api.Config{
		Port:          restPort,
		Authenticator: authn,
		UserRepo:      userRepo,
		Registry:      registry,
	})
	restServer.Start()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🎮 Игровой трафик: TCP :%d, KCP :%d", cfg.Server.GetTCPPort(), cfg.Server.GetKCPPort())
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   📊 Метрики: http://localhost:%d/metrics", cfg.Server.GetMetricsPort())
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	// Ждём сигнала для завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// Снимок сущностей снимаем, пока цикл тика ещё жив
	saveEntities(r, worldStore)

	gameServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	cancel() // останавливает цикл тика

	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logging.Warn("Телеметрия не завершилась чисто: %v", err)
		}
	}

	logging.Info("👋 Сервер успешно остановлен")
}

// buildUserRepo выбирает хранилище пользователей по конфигурации
func buildUserRepo(cfg *config.Config) auth.UserRepository {
	switch cfg.Auth.Backend {
	case "maria":
		repo, err := auth.NewMariaUserRepo(auth.MariaConfig{
			Host:     cfg.Auth.MariaHost,
			Port:     cfg.Auth.MariaPort,
			Database: cfg.Auth.MariaDB,
			Username: cfg.Auth.MariaUser,
			Password: cfg.Auth.MariaPass,
		})
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к MariaDB: %v", err)
		}
		logging.Info("🔐 Пользователи: MariaDB %s", cfg.Auth.MariaHost)
		return repo
	case "mongo":
		repo, err := auth.NewMongoUserRepo(auth.MongoConfig{URI: cfg.Auth.MongoURI})
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к MongoDB: %v", err)
		}
		logging.Info("🔐 Пользователи: MongoDB")
		return repo
	default:
		repo, err := auth.NewMemoryUserRepo()
		if err != nil {
			log.Fatalf("❌ Ошибка создания репозитория пользователей: %v", err)
		}
		logging.Info("🔐 Пользователи: in-memory (тестовые учётки)")
		return repo
	}
}

// buildPositionRepo выбирает хранилище позиций игроков
func buildPositionRepo(cfg *config.Config) storage.PositionRepo {
	if cfg.Storage.RedisAddr != "" {
		repo, err := storage.NewRedisPositionRepo(&storage.RedisConfig{Addr: cfg.Storage.RedisAddr})
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к Redis: %v", err)
		}
		logging.Info("📍 Позиции игроков: Redis %s", cfg.Storage.RedisAddr)
		return repo
	}
	if cfg.Storage.MariaDSN != "" {
		repo, err := storage.NewMariaPositionRepo(cfg.Storage.MariaDSN)
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к MariaDB (позиции): %v", err)
		}
		logging.Info("📍 Позиции игроков: MariaDB")
		return repo
	}
	logging.Info("📍 Позиции игроков: in-memory")
	return storage.NewMemoryPositionRepo()
}

// restoreWorld загружает сохранённые чанки; возвращает их количество
func restoreWorld(world *realm.World, store *storage.WorldStore) int {
	if store == nil {
		return 0
	}
	restored := 0
	err := store.LoadChunks(defaultRealmID, func(sc storage.StoredChunk) error {
		world.RestoreChunk(sc.Chunk, sc.Revision)
		restored++
		return nil
	})
	if err != nil {
		logging.Error("Чанки мира %s не восстановлены: %v", defaultRealmID, err)
		return 0
	}
	return restored
}

// restoreEntities возвращает в мир неигровые сущности из снапшота.
// Вызывается до запуска цикла тика, пока мир принадлежит main.
func restoreEntities(r *realm.Realm, store *storage.WorldStore) {
	if store == nil {
		return
	}
	records, err := store.LoadEntities(defaultRealmID)
	if err != nil {
		logging.Error("Сущности мира %s не восстановлены: %v", defaultRealmID, err)
		return
	}
	n := 0
	for _, rec := range records {
		t := entity.Type(rec.Type)
		if t == entity.TypePlayer {
			continue // Игроки восстанавливаются по своим сессиям
		}
		r.SpawnEntity(t, vec.Vec2Float{X: rec.X, Y: rec.Y})
		n++
	}
	if n > 0 {
		logging.Info("🌍 Мир %s: восстановлено %d сущностей", defaultRealmID, n)
	}
}

// saveEntities снимает снапшот неигровых сущностей через горутину тика
func saveEntities(r *realm.Realm, store *storage.WorldStore) {
	if store == nil {
		return
	}

	var records []storage.EntityRecord
	done := make(chan struct{})
	r.Post(func() {
		defer close(done)
		r.ForEachEntity(func(e *entity.Kinematic) {
			if e.Type == entity.TypePlayer {
				return
			}
			records = append(records, storage.EntityRecord{
				ID: e.ID, Type: uint16(e.Type), X: e.Pos.X, Y: e.Pos.Y,
			})
		})
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		logging.Error("Снапшот сущностей не снят: мир не отвечает")
		return
	}

	if err := store.SaveEntities(r.ID(), records); err != nil {
		logging.Error("Снапшот сущностей не сохранён: %v", err)
		return
	}
	logging.Info("💾 Сохранено %d сущностей мира %s", len(records), r.ID())
}
