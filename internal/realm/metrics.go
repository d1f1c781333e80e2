package realm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — счётчики тик-цикла для Prometheus.
// Все методы переносят nil-приёмник: миры в тестах живут без метрик.
type Metrics struct {
	tickDuration *prometheus.HistogramVec
	entities     *prometheus.GaugeVec
	sessions     *prometheus.GaugeVec
	commands     *prometheus.CounterVec
	frames       *prometheus.CounterVec
	expired      *prometheus.CounterVec
}

// NewMetrics регистрирует метрики мира в реестре.
// reg == nil означает дефолтный регистр процесса.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realm_tick_duration_seconds",
			Help:    "Длительность одного тика мира",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"realm"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realm_entities",
			Help: "Количество сущностей в мире",
		}, []string{"realm"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realm_sessions",
			Help: "Количество сессий (включая dormant)",
		}, []string{"realm"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_commands_total",
			Help: "Обработанные команды ввода",
		}, []string{"realm"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_frames_sent_total",
			Help: "Отправленные кадры состояния",
		}, []string{"realm"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_dormant_expired_total",
			Help: "Dormant-сессии, уничтоженные по истечении окна",
		}, []string{"realm"}),
	}
	reg.MustRegister(m.tickDuration, m.entities, m.sessions, m.commands, m.frames, m.expired)
	return m
}

func (m *Metrics) observeTick(realm string, seconds float64, entities, sessions int) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(realm).Observe(seconds)
	m.entities.WithLabelValues(realm).Set(float64(entities))
	m.sessions.WithLabelValues(realm).Set(float64(sessions))
}

func (m *Metrics) addCommands(realm string, n int) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(realm).Add(float64(n))
}

func (m *Metrics) addFrame(realm string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(realm).Inc()
}

func (m *Metrics) addExpired(realm string) {
	if m == nil {
		return
	}
	m.expired.WithLabelValues(realm).Inc()
}
