package realm

import "github.com/annel0/realm-server/internal/entity"

// Крючки расширения. Вместо динамической регистрации модов — явные
// упорядоченные списки колбэков с узкой областью действия. Порядок
// вызова совпадает с порядком регистрации.

// SimHook вызывается до или после фазы общей симуляции
type SimHook func(tick uint64, dt float64)

// OverlapHook вызывается при столкновении двух твёрдых сущностей
// на богатом пути коллизий (когда одна вытолкнула другую)
type OverlapHook func(mover, pushed *entity.Kinematic)

// TagChangeHook вызывается при смене игрового тега сущности,
// например "ridden" при посадке и спешивании
type TagChangeHook func(e *entity.Kinematic, tag string, on bool)

// Hooks хранит списки зарегистрированных колбэков одного Realm.
// Регистрация до запуска тика; вызовы — только из горутины тика.
type Hooks struct {
	preSim    []SimHook
	postSim   []SimHook
	overlap   []OverlapHook
	tagChange []TagChangeHook
}

// OnPreSim регистрирует колбэк перед фазой общей симуляции
func (h *Hooks) OnPreSim(f SimHook) { h.preSim = append(h.preSim, f) }

// OnPostSim регистрирует колбэк после фаз симуляции и обслуживания
func (h *Hooks) OnPostSim(f SimHook) { h.postSim = append(h.postSim, f) }

// OnOverlap регистрирует колбэк столкновения сущностей
func (h *Hooks) OnOverlap(f OverlapHook) { h.overlap = append(h.overlap, f) }

// OnTagChange регистрирует колбэк смены тега
func (h *Hooks) OnTagChange(f TagChangeHook) { h.tagChange = append(h.tagChange, f) }

func (h *Hooks) runPreSim(tick uint64, dt float64) {
	for _, f := range h.preSim {
		f(tick, dt)
	}
}

func (h *Hooks) runPostSim(tick uint64, dt float64) {
	for _, f := range h.postSim {
		f(tick, dt)
	}
}

func (h *Hooks) runOverlap(mover, pushed *entity.Kinematic) {
	for _, f := range h.overlap {
		f(mover, pushed)
	}
}

func (h *Hooks) runTagChange(e *entity.Kinematic, tag string, on bool) {
	for _, f := range h.tagChange {
		f(e, tag, on)
	}
}
