package realm

import "github.com/annel0/realm-server/internal/vec"

// Ярусы тика. Сущности рядом с игроками симулируются каждый тик,
// средняя дистанция — через тик, дальние — раз в несколько тиков.
// Пропущенное время накапливается, так что суммарный симулированный
// dt совпадает с реальным.

type tickTier uint8

const (
	tierNear tickTier = iota
	tierMid
	tierFar
)

const (
	tierNearRadius = 12.0 * vec.TileSize
	tierMidRadius  = 32.0 * vec.TileSize

	tierMidPeriod = 2
	tierFarPeriod = 5
)

type tierAcc struct {
	pending float64
	since   int
}

type tierState struct {
	accs map[uint64]*tierAcc
}

func newTierState() *tierState {
	return &tierState{accs: make(map[uint64]*tierAcc)}
}

// advance накапливает dt сущности и возвращает время к симуляции в
// этом тике (0 — тик пропускается).
func (ts *tierState) advance(id uint64, tier tickTier, dt float64) float64 {
	period := 1
	switch tier {
	case tierMid:
		period = tierMidPeriod
	case tierFar:
		period = tierFarPeriod
	}

	acc := ts.accs[id]
	if acc == nil {
		acc = &tierAcc{}
		ts.accs[id] = acc
	}
	acc.pending += dt
	acc.since++
	if acc.since < period {
		return 0
	}
	out := acc.pending
	acc.pending = 0
	acc.since = 0
	return out
}

// forget удаляет накопитель исчезнувшей сущности
func (ts *tierState) forget(id uint64) {
	delete(ts.accs, id)
}

// tierFor классифицирует дистанцию до ближайшего игрока
func tierFor(dist float64) tickTier {
	switch {
	case dist <= tierNearRadius:
		return tierNear
	case dist <= tierMidRadius:
		return tierMid
	default:
		return tierFar
	}
}
