package realm

import (
	"fmt"
	"sort"

	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/vec"
)

// Фаза рассылки. Каждой сессии уходит минимальный кадр: baseline для
// сущностей, которые этот клиент ещё не видел, дельты для знакомых,
// список ушедших из зоны видимости. Baseline всегда предшествует
// дельте — клиент вправе считать дельту по незнакомому id нарушением
// протокола. Sync-сообщения уходят только при смене ревизии концерна
// относительно того, что уже отправлялось этому клиенту.

func (r *Realm) broadcastTo(s *Session) {
	if s.Dormant() {
		return
	}
	player := r.entities[s.PlayerID]
	if player == nil {
		return
	}

	// Редактор смотрит глазами камеры, а не своей сущности
	center := player.Pos
	if s.editor && s.hasCamera {
		center = s.CameraPose
	}
	visible := r.visibleFrom(center, s)

	frame := protocol.Frame{
		ServerTick:            uint32(r.tick),
		LastProcessedInputSeq: s.ack,
		PlayerEntityID:        s.PlayerID,
	}

	// Снимки накапливаются отдельно и попадают в lastSent только после
	// успешной отправки: по неотправленному кадру дельты считать нельзя
	staged := make(map[uint64]protocol.Snapshot, len(visible))
	for _, id := range visible {
		snap := protocol.Serialize(r.entities[id])
		if prev, known := s.lastSent[id]; !known {
			frame.EntityBaselines = append(frame.EntityBaselines, snap)
		} else if d := protocol.Diff(prev, snap); d != nil {
			frame.EntityDeltas = append(frame.EntityDeltas, *d)
		}
		staged[id] = snap
	}

	inView := make(map[uint64]bool, len(visible))
	for _, id := range visible {
		inView[id] = true
	}
	for id := range s.lastSent {
		if !inView[id] {
			frame.EntityExits = append(frame.EntityExits, id)
		}
	}
	sort.Slice(frame.EntityExits, func(i, j int) bool {
		return frame.EntityExits[i] < frame.EntityExits[j]
	})

	if err := s.send(protocol.MsgFrame, frame); err != nil {
		logging.Warn("Realm %s: кадр клиенту %d не отправлен: %v", r.id, s.ClientID, err)
		return
	}
	for id, snap := range staged {
		s.lastSent[id] = snap
	}
	for _, id := range frame.EntityExits {
		delete(s.lastSent, id)
	}
	r.metrics.addFrame(r.id)

	r.sendSyncs(s)
}

// visibleFrom возвращает отсортированные id сущностей в зоне видимости.
// Собственная сущность и маунт сессии видимы всегда.
func (r *Realm) visibleFrom(center vec.Vec2Float, s *Session) []uint64 {
	var out []uint64
	for _, id := range r.sortedEntityIDs() {
		e := r.entities[id]
		if id == s.PlayerID || id == s.MountID || e.Pos.DistanceTo(center) <= r.viewRadius {
			out = append(out, id)
		}
	}
	return out
}

func (r *Realm) sendSyncs(s *Session) {
	r.pushSync(s, protocol.ConcernPhysics, uint64(r.params.Revision),
		protocol.PhysicsSync{Params: r.params})
	r.pushSync(s, protocol.ConcernMount, s.mountRev,
		protocol.MountSync{MountID: s.MountID})
	r.pushSync(s, protocol.ConcernGems, s.gemsRev,
		protocol.GemsSync{Gems: s.gems})
	r.pushSync(s, protocol.ConcernEditor, s.editorRev,
		protocol.EditorSync{Editor: s.editor})
	r.pushSync(s, protocol.ConcernProps, r.world.propsRev,
		r.world.PropsPayload())
	r.pushSync(s, protocol.ConcernNames, r.namesRev, r.namesPayload())

	if s.editor {
		r.pushSync(s, protocol.ConcernCursors, r.cursorsRev, r.cursorsPayload(s.ClientID))
	}

	for _, cc := range r.sortedChunkCoords() {
		key := fmt.Sprintf("%s:%d:%d", protocol.ConcernChunk, cc.X, cc.Y)
		r.pushSyncKeyed(s, key, protocol.ConcernChunk, r.world.chunkRevs[cc],
			r.world.ChunkPayload(cc))
	}
}

// pushSync отправляет концерн, если клиент ещё не видел эту ревизию
func (r *Realm) pushSync(s *Session, concern string, rev uint64, payload interface{}) {
	r.pushSyncKeyed(s, concern, concern, rev, payload)
}

func (r *Realm) pushSyncKeyed(s *Session, key, concern string, rev uint64, payload interface{}) {
	if s.sentRev[key] >= rev {
		return
	}
	data, err := protocol.MarshalPayload(payload)
	if err != nil {
		logging.Error("Realm %s: сериализация концерна %s: %v", r.id, concern, err)
		return
	}
	msg := protocol.Sync{Concern: concern, Revision: rev, Payload: data}
	if err := s.send(protocol.MsgSync, msg); err != nil {
		logging.Warn("Realm %s: sync %s клиенту %d не отправлен: %v", r.id, concern, s.ClientID, err)
		return
	}
	s.sentRev[key] = rev
}

func (r *Realm) namesPayload() protocol.NamesSync {
	out := protocol.NamesSync{Names: make(map[uint64]string)}
	for _, s := range r.sortedSessions() {
		out.Names[s.PlayerID] = s.Name
	}
	return out
}

// cursorsPayload собирает курсоры редактора остальных клиентов
func (r *Realm) cursorsPayload(exclude uint64) protocol.CursorsSync {
	out := protocol.CursorsSync{Cursors: make(map[uint64]protocol.CursorState)}
	for _, s := range r.sortedSessions() {
		if s.ClientID != exclude && s.editor {
			out.Cursors[s.ClientID] = s.cursor
		}
	}
	return out
}

func (r *Realm) sortedChunkCoords() []vec.Vec2 {
	out := make([]vec.Vec2, 0, len(r.world.chunkRevs))
	for cc := range r.world.chunkRevs {
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}
