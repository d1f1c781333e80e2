package storage

import (
	"context"
	"encoding/json"

	"github.com/annel0/realm-server/internal/eventbus"
	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/vec"
)

// Flusher переносит события мира в долговременные хранилища.
// Подписывается на шину и сохраняет грязные чанки в WorldStore, а
// позиции отключившихся игроков — в PositionRepo. Горутина тика при
// этом никогда не касается диска: она публикует событие и идёт дальше.
type Flusher struct {
	bus   eventbus.EventBus
	world *WorldStore
	repo  PositionRepo
	sub   eventbus.Subscription
}

// NewFlusher создаёт новый Flusher. world и repo могут быть nil по
// отдельности: тогда соответствующие события игнорируются.
func NewFlusher(bus eventbus.EventBus, world *WorldStore, repo PositionRepo) *Flusher {
	return &Flusher{
		bus:   bus,
		world: world,
		repo:  repo,
	}
}

// Start подписывается на события мира.
func (f *Flusher) Start(ctx context.Context) error {
	sub, err := f.bus.Subscribe(ctx, eventbus.Filter{
		Types: []string{eventbus.EventChunkDirty, eventbus.EventPlayerPosition},
	}, f.handle)
	if err != nil {
		return err
	}

	f.sub = sub
	return nil
}

// Stop отписывается от шины. Уже начатые записи завершаются.
func (f *Flusher) Stop() {
	if f.sub != nil {
		f.sub.Unsubscribe()
		f.sub = nil
	}
}

func (f *Flusher) handle(ctx context.Context, ev *eventbus.Envelope) {
	switch ev.EventType {
	case eventbus.EventChunkDirty:
		f.handleChunkDirty(ev)
	case eventbus.EventPlayerPosition:
		f.handlePlayerPosition(ctx, ev)
	}
}

func (f *Flusher) handleChunkDirty(ev *eventbus.Envelope) {
	if f.world == nil {
		return
	}

	var p eventbus.ChunkDirtyPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logging.Warn("Flusher: некорректный payload события %s: %v", ev.EventType, err)
		return
	}

	if err := f.world.SaveChunk(p.Realm, p.Revision, p.Chunk); err != nil {
		logging.Error("Flusher: не удалось сохранить чанк %d:%d мира %s: %v",
			p.Chunk.CX, p.Chunk.CY, p.Realm, err)
	}
}

func (f *Flusher) handlePlayerPosition(ctx context.Context, ev *eventbus.Envelope) {
	if f.repo == nil {
		return
	}

	var p eventbus.PlayerPositionPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logging.Warn("Flusher: некорректный payload события %s: %v", ev.EventType, err)
		return
	}

	pos := vec.Vec2Float{X: p.X, Y: p.Y}
	if err := f.repo.Save(ctx, p.Realm, p.Client, pos); err != nil {
		logging.Error("Flusher: не удалось сохранить позицию клиента %d мира %s: %v",
			p.Client, p.Realm, err)
	}
}
