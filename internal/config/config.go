package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/realm-server/internal/physics"
)

// Config корневая структура конфигурации приложения.

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realm    RealmConfig    `yaml:"realm"`
	Physics  PhysicsConfig  `yaml:"physics"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	EventBus EventBusConfig `yaml:"eventbus"`
}

type ServerConfig struct {
	TCPPort     int `yaml:"tcp_port"`
	KCPPort     int `yaml:"kcp_port"`
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// RealmConfig задаёт параметры тикового цикла и сессий.
type RealmConfig struct {
	TickRate     int `yaml:"tick_rate"`      // Тиков в секунду (по умолчанию 20)
	PhysicsMult  int `yaml:"physics_mult"`   // Суб-шагов физики на тик
	GraceSeconds int `yaml:"grace_seconds"`  // Окно реконнекта для dormant-сессий
	ViewRadius   int `yaml:"view_radius"`    // Радиус видимости в тайлах
	MaxQueuedCmd int `yaml:"max_queued_cmd"` // Лимит очереди команд на сессию
}

// PhysicsConfig переопределяет стартовые параметры движения.
// JSON-теги нужны REST-эндпоинту правки параметров на лету.
type PhysicsConfig struct {
	GravityScale  float64 `yaml:"gravity_scale" json:"gravity_scale"`
	Friction      float64 `yaml:"friction" json:"friction"`
	Accelerate    float64 `yaml:"accelerate" json:"accelerate"`
	AirAccelerate float64 `yaml:"air_accelerate" json:"air_accelerate"`
	AirWishCap    float64 `yaml:"air_wish_cap" json:"air_wish_cap"`
	StopSpeed     float64 `yaml:"stop_speed" json:"stop_speed"`
	NoBunnyHop    bool    `yaml:"no_bunny_hop" json:"no_bunny_hop"`
	SmallJumps    bool    `yaml:"small_jumps" json:"small_jumps"`
	PlatformerAir bool    `yaml:"platformer_air" json:"platformer_air"`
	TimeScale     float64 `yaml:"time_scale" json:"time_scale"`
}

// Params собирает параметры кинематики: значения по умолчанию,
// перекрытые ненулевыми полями конфигурации.
func (p *PhysicsConfig) Params() physics.Params {
	out := physics.DefaultParams()
	if p.GravityScale > 0 {
		out.GravityScale = p.GravityScale
	}
	if p.Friction > 0 {
		out.Friction = p.Friction
	}
	if p.Accelerate > 0 {
		out.Accelerate = p.Accelerate
	}
	if p.AirAccelerate > 0 {
		out.AirAccelerate = p.AirAccelerate
	}
	if p.AirWishCap > 0 {
		out.AirWishCap = p.AirWishCap
	}
	if p.StopSpeed > 0 {
		out.StopSpeed = p.StopSpeed
	}
	if p.TimeScale > 0 {
		out.TimeScale = p.TimeScale
	}
	out.NoBunnyHop = p.NoBunnyHop
	out.SmallJumps = p.SmallJumps
	out.PlatformerAir = p.PlatformerAir
	return out
}

type StorageConfig struct {
	BadgerPath string `yaml:"badger_path"`
	RedisAddr  string `yaml:"redis_addr"`
	MariaDSN   string `yaml:"maria_dsn"`
	MongoURI   string `yaml:"mongo_uri"`
}

// AuthConfig выбирает хранилище пользователей и секрет JWT.
type AuthConfig struct {
	Backend   string `yaml:"backend"`    // memory | maria | mongo
	JWTSecret string `yaml:"jwt_secret"` // base64; пусто — случайный при старте
	MariaHost string `yaml:"maria_host"`
	MariaPort int    `yaml:"maria_port"`
	MariaDB   string `yaml:"maria_db"`
	MariaUser string `yaml:"maria_user"`
	MariaPass string `yaml:"maria_pass"`
	MongoURI  string `yaml:"mongo_uri"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// GetTCPPort возвращает TCP порт с поддержкой fallback значений
func (s *ServerConfig) GetTCPPort() int {
	return getPortWithEnvFallback(s.TCPPort, "REALM_TCP_PORT", 7777)
}

// GetKCPPort возвращает KCP (UDP) порт с поддержкой fallback значений
func (s *ServerConfig) GetKCPPort() int {
	return getPortWithEnvFallback(s.KCPPort, "REALM_KCP_PORT", 7778)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "REALM_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "REALM_METRICS_PORT", 2112)
}

// GetTickRate возвращает частоту тиков (минимум 1)
func (r *RealmConfig) GetTickRate() int {
	if r.TickRate > 0 {
		return r.TickRate
	}
	return 20
}

// TickDuration возвращает длительность одного тика
func (r *RealmConfig) TickDuration() time.Duration {
	return time.Second / time.Duration(r.GetTickRate())
}

// GetPhysicsMult возвращает число суб-шагов физики (минимум 1)
func (r *RealmConfig) GetPhysicsMult() int {
	if r.PhysicsMult > 0 {
		return r.PhysicsMult
	}
	return 2
}

// GetGraceWindow возвращает окно dormant-сессии
func (r *RealmConfig) GetGraceWindow() time.Duration {
	if r.GraceSeconds > 0 {
		return time.Duration(r.GraceSeconds) * time.Second
	}
	return 60 * time.Second
}

// GetViewRadius возвращает радиус видимости в тайлах
func (r *RealmConfig) GetViewRadius() int {
	if r.ViewRadius > 0 {
		return r.ViewRadius
	}
	return 24
}

// GetMaxQueuedCmd возвращает лимит очереди команд на сессию
func (r *RealmConfig) GetMaxQueuedCmd() int {
	if r.MaxQueuedCmd > 0 {
		return r.MaxQueuedCmd
	}
	return 64
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV REALM_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REALM_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
