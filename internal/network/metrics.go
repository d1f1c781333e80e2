package network

import "github.com/prometheus/client_golang/prometheus"

// Metrics — счётчики игрового транспорта. Все методы nil-безопасны.
type Metrics struct {
	connections prometheus.Gauge
	logins      *prometheus.CounterVec
	framesIn    prometheus.Counter
	framesOut   prometheus.Counter
	dropped     prometheus.Counter
}

// NewMetrics регистрирует метрики транспорта.
// reg == nil означает дефолтный регистр процесса.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "game_connections",
			Help: "Текущее количество игровых соединений.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_logins_total",
			Help: "Попытки входа по результату.",
		}, []string{"result"}),
		framesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "game_frames_received_total",
			Help: "Принятые кадры протокола.",
		}),
		framesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "game_frames_sent_total",
			Help: "Отправленные кадры протокола.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "game_frames_dropped_total",
			Help: "Кадры, отброшенные из-за переполнения исходящей очереди.",
		}),
	}
	reg.MustRegister(m.connections, m.logins, m.framesIn, m.framesOut, m.dropped)
	return m
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) FrameIn() {
	if m != nil {
		m.framesIn.Inc()
	}
}

func (m *Metrics) FrameOut() {
	if m != nil {
		m.framesOut.Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
