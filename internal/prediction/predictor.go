// Package prediction реализует клиентское предсказание движения:
// немедленный локальный шаг на каждый кадр и reconcile по авторитетному
// состоянию через snap + replay неподтверждённых вводов.
package prediction

import (
	"math"

	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/physics"
	"github.com/annel0/realm-server/internal/protocol"
)

// dtMismatchTolerance — относительное отклонение dt, после которого
// ставится тег dt_mismatch
const dtMismatchTolerance = 0.25

// Predictor ведёт локальную предсказанную копию управляемой сущности.
// Update никогда не блокируется и не зависит от состояния сети —
// это путь нулевой задержки отклика.
type Predictor struct {
	predicted *entity.Kinematic
	mountID   uint64

	ring       *InputRing
	params     physics.Params
	expectedDt float64 // Ожидаемая длительность серверного тика, с

	lastDiag Diagnostics
	metrics  *Metrics
}

// New создаёт предиктор с буфером стандартной ёмкости
func New(params physics.Params, expectedDt float64) *Predictor {
	return &Predictor{
		ring:       NewInputRing(DefaultRingCapacity),
		params:     params,
		expectedDt: expectedDt,
	}
}

// SetMetrics подключает экспорт диагностики (опционально)
func (p *Predictor) SetMetrics(m *Metrics) { p.metrics = m }

// SetParams обновляет параметры физики (после Sync концерна physics)
func (p *Predictor) SetParams(params physics.Params) { p.params = params }

// Params возвращает текущие параметры физики предиктора
func (p *Predictor) Params() physics.Params { return p.params }

// Predicted возвращает предсказанную сущность (nil до первого Reset)
func (p *Predictor) Predicted() *entity.Kinematic { return p.predicted }

// MountID возвращает текущий предсказываемый маунт (0 — пешком)
func (p *Predictor) MountID() uint64 { return p.mountID }

// LastDiagnostics возвращает диагностику последнего reconcile
func (p *Predictor) LastDiagnostics() Diagnostics { return p.lastDiag }

// Reset клонирует авторитетную сущность в предсказанную копию
// и очищает буфер вводов
func (p *Predictor) Reset(server *entity.Kinematic, mountID uint64) {
	p.predicted = server.Clone()
	p.mountID = mountID
	p.ring.Reset()
}

// StoreInput сохраняет ввод для последующего replay
func (p *Predictor) StoreInput(seq uint32, cmd protocol.Command, dt float64) {
	before := p.ring.Dropped()
	p.ring.Push(BufferedInput{
		Seq:      seq,
		Cmd:      cmd,
		Dt:       dt,
		Revision: p.params.Revision,
	})
	if p.metrics != nil && p.ring.Dropped() > before {
		p.metrics.droppedInputs.Inc()
	}
}

// Update выполняет один шаг ядра на предсказанной сущности.
// Вызывается каждый локальный кадр независимо от сети.
func (p *Predictor) Update(dt float64, cmd protocol.Command, q physics.WorldQuery) physics.Outcome {
	if p.predicted == nil {
		return physics.Outcome{}
	}
	return physics.Step(&p.predicted.Body, cmd.Input(), dt, q, p.params)
}

// Reconcile корректирует предсказание по авторитетному состоянию:
//  1. фиксируется ошибка предсказания;
//  2. позиция, скорость и состояние прыжка перезаписываются (скорость
//     именно перезаписывается: модель трения зависит от пути);
//  3. подтверждённые вводы отбрасываются;
//  4. оставшиеся проигрываются через ядро в исходном порядке;
//  5. при смещении больше порога ставится флаг сброса интерполяции.
func (p *Predictor) Reconcile(server *entity.Kinematic, lastProcessedSeq uint32, q physics.WorldQuery, mountID uint64) Diagnostics {
	if p.predicted == nil {
		p.Reset(server, mountID)
		p.lastDiag = Diagnostics{}
		return p.lastDiag
	}

	var diag Diagnostics

	// Смена маунта посреди reconcile: переключаем предсказываемую
	// сущность и пересчитываем смещение всадника
	if mountID != p.mountID {
		p.mountID = mountID
		p.predicted = server.Clone()
		diag.AnchorReset = true
	}

	prePos := p.predicted.Pos

	wasGrounded := p.predicted.Grounded()
	if wasGrounded != server.Grounded() {
		diag.Tags = append(diag.Tags, TagGroundFlip)
	}

	diag.Correction = prePos.DistanceTo(server.Pos)

	// Перезапись авторитетным состоянием
	p.predicted.Body.CopyFrom(&server.Body)
	p.predicted.Parent = server.Parent
	p.predicted.Offset = server.Offset

	// Отбрасываем подтверждённое, проигрываем остаток
	p.ring.DropThrough(lastProcessedSeq)
	pending := p.ring.All()

	diag.ReplaySize = len(pending)
	if len(pending) > 0 {
		first, last := p.ring.Span()
		diag.ReplaySpan = last - first + 1
	}
	if len(pending) > ReplayBacklogThreshold {
		diag.Tags = append(diag.Tags, TagReplayBacklog)
	}

	revisionMismatch := false
	dtMismatch := false
	for _, in := range pending {
		if in.Revision != p.params.Revision {
			revisionMismatch = true
		}
		if p.expectedDt > 0 && math.Abs(in.Dt-p.expectedDt) > p.expectedDt*dtMismatchTolerance {
			dtMismatch = true
		}
		physics.Step(&p.predicted.Body, in.Cmd.Input(), in.Dt, q, p.params)
	}
	if revisionMismatch {
		diag.Tags = append(diag.Tags, TagParamRevisionMismatch)
	}
	if dtMismatch {
		diag.Tags = append(diag.Tags, TagDtMismatch)
	}

	// Порог snap: большая коррекция (телепорт, отбрасывание) не должна
	// размазываться интерполяцией
	if p.predicted.Pos.DistanceTo(prePos) > physics.SnapThreshold {
		diag.AnchorReset = true
	}

	p.lastDiag = diag
	p.metrics.Observe(diag)
	return diag
}
