package prediction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Теги аномалий reconcile. Диагностика наблюдаема (метрики, тесты),
// но никогда не меняет поток управления.
const (
	TagParamRevisionMismatch = "param_revision_mismatch" // Ревизия параметров replay-ввода != текущей
	TagDtMismatch            = "dt_mismatch"             // dt ввода заметно отличается от ожидаемого тика
	TagGroundFlip            = "ground_flip"             // Предсказание и сервер разошлись в grounded/airborne
	TagReplayBacklog         = "replay_backlog"          // Очередь replay аномально длинная
)

// ReplayBacklogThreshold — длина буфера, с которой ставится replay_backlog.
// При обычной задержке доставки очередь replay держится в пределах
// пары серверных тиков ввода.
const ReplayBacklogThreshold = 8

// Diagnostics результат одного reconcile
type Diagnostics struct {
	Correction  float64  // Величина коррекции predicted → authoritative, px
	ReplaySize  int      // Сколько вводов было проиграно заново
	ReplaySpan  uint32   // Диапазон seq replay (last-first+1, 0 для пустого)
	Tags        []string // Аномалии (см. константы Tag*)
	AnchorReset bool     // Сработал порог snap: интерполяцию нужно сбросить
}

// HasTag проверяет наличие тега
func (d Diagnostics) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Metrics экспортирует диагностику предсказания в Prometheus
type Metrics struct {
	correction    prometheus.Gauge
	replaySize    prometheus.Gauge
	corrections   prometheus.Counter
	droppedInputs prometheus.Counter
	anomalies     *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики предсказания
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		correction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prediction",
			Name:      "correction_px",
			Help:      "Величина последней коррекции предсказания, px.",
		}),
		replaySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prediction",
			Name:      "replay_size",
			Help:      "Число вводов, проигранных последним reconcile.",
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prediction",
			Name:      "corrections_total",
			Help:      "Общее число reconcile с ненулевой коррекцией.",
		}),
		droppedInputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prediction",
			Name:      "dropped_inputs_total",
			Help:      "Вводы, выброшенные кольцевым буфером по переполнению.",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prediction",
			Name:      "anomalies_total",
			Help:      "Аномалии reconcile по тегам.",
		}, []string{"tag"}),
	}
	reg.MustRegister(m.correction, m.replaySize, m.corrections, m.droppedInputs, m.anomalies)
	return m
}

// Observe публикует диагностику одного reconcile
func (m *Metrics) Observe(d Diagnostics) {
	if m == nil {
		return
	}
	m.correction.Set(d.Correction)
	m.replaySize.Set(float64(d.ReplaySize))
	if d.Correction > 0 {
		m.corrections.Inc()
	}
	for _, tag := range d.Tags {
		m.anomalies.WithLabelValues(tag).Inc()
	}
}
