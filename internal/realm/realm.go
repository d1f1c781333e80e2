package realm

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/realm-server/internal/config"
	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/eventbus"
	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/physics"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/vec"
)

// Realm — один независимо тикающий мир: сущности, сессии, тайлы.
// Весь тик выполняется одной логической горутиной от начала до конца,
// поэтому внутри тика нет блокировок; независимые миры работают
// параллельно и не разделяют изменяемое состояние.

// Options задаёт параметры создаваемого мира
type Options struct {
	ID              string
	TickRate        int
	PhysicsMult     int
	ViewRadiusTiles int
	GraceWindow     time.Duration
	MaxQueuedCmd    int
	SpawnPoint      vec.Vec2Float
	Params          physics.Params
	Bus             eventbus.EventBus
	Metrics         *Metrics
}

// OptionsFromConfig собирает Options из конфигурации сервера
func OptionsFromConfig(id string, cfg *config.Config) Options {
	return Options{
		ID:              id,
		TickRate:        cfg.Realm.GetTickRate(),
		PhysicsMult:     cfg.Realm.GetPhysicsMult(),
		ViewRadiusTiles: cfg.Realm.GetViewRadius(),
		GraceWindow:     cfg.Realm.GetGraceWindow(),
		MaxQueuedCmd:    cfg.Realm.GetMaxQueuedCmd(),
		Params:          cfg.Physics.Params(),
	}
}

// Realm владеет состоянием одного мира
type Realm struct {
	id          string
	tickDur     time.Duration
	physicsMult int
	viewRadius  float64
	graceTicks  uint64
	maxQueued   int
	spawnPoint  vec.Vec2Float

	world    *World
	params   physics.Params
	entities map[uint64]*entity.Kinematic

	sessionsMu sync.RWMutex
	sessions   map[uint64]*Session

	nextEntityID uint64
	tick         uint64

	hooks   Hooks
	tiers   *tierState
	spawner *Spawner
	ctrl    chan func()

	bus     eventbus.EventBus
	metrics *Metrics

	// Ревизии realm-уровневых sync-концернов
	namesRev   uint64
	cursorsRev uint64
}

// New создаёт мир с указанными параметрами
func New(world *World, opts Options) *Realm {
	if opts.TickRate <= 0 {
		opts.TickRate = 20
	}
	if opts.PhysicsMult <= 0 {
		opts.PhysicsMult = 2
	}
	if opts.ViewRadiusTiles <= 0 {
		opts.ViewRadiusTiles = 24
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 60 * time.Second
	}
	if opts.MaxQueuedCmd <= 0 {
		opts.MaxQueuedCmd = 64
	}
	if opts.SpawnPoint == (vec.Vec2Float{}) {
		opts.SpawnPoint = vec.Vec2Float{X: 8 * vec.TileSize, Y: 8 * vec.TileSize}
	}
	if opts.Params == (physics.Params{}) {
		opts.Params = physics.DefaultParams()
	}

	tickDur := time.Second / time.Duration(opts.TickRate)
	r := &Realm{
		id:           opts.ID,
		tickDur:      tickDur,
		physicsMult:  opts.PhysicsMult,
		viewRadius:   float64(opts.ViewRadiusTiles) * vec.TileSize,
		graceTicks:   uint64(opts.GraceWindow / tickDur),
		maxQueued:    opts.MaxQueuedCmd,
		spawnPoint:   opts.SpawnPoint,
		world:        world,
		params:       opts.Params,
		entities:     make(map[uint64]*entity.Kinematic),
		sessions:     make(map[uint64]*Session),
		nextEntityID: 1000,
		tiers:        newTierState(),
		spawner:      NewSpawner(),
		ctrl:         make(chan func(), 256),
		bus:          opts.Bus,
		metrics:      opts.Metrics,
		namesRev:     1,
		cursorsRev:   1,
	}
	return r
}

// ID возвращает идентификатор мира
func (r *Realm) ID() string { return r.id }

// World возвращает тайловый мир
func (r *Realm) World() *World { return r.world }

// Hooks возвращает списки колбэков для регистрации расширений
func (r *Realm) Hooks() *Hooks { return &r.hooks }

// Params возвращает текущие параметры кинематики
func (r *Realm) Params() physics.Params { return r.params }

// Tick возвращает номер последнего завершённого тика
func (r *Realm) Tick() uint64 { return r.tick }

// TickDuration возвращает длительность тика
func (r *Realm) TickDuration() time.Duration { return r.tickDur }

// SetParams заменяет параметры кинематики и поднимает ревизию.
// Вызывать только из горутины тика (или через Post).
func (r *Realm) SetParams(p physics.Params) {
	p.Revision = r.params.Revision
	p.Bump()
	r.params = p
}

// Post ставит функцию в очередь на исполнение горутиной тика.
// Единственный способ мутировать мир снаружи.
func (r *Realm) Post(fn func()) {
	r.ctrl <- fn
}

// Info — срез состояния мира для админки и health-check
type Info struct {
	ID       string  `json:"id"`
	Tick     uint64  `json:"tick"`
	TickRate float64 `json:"tick_rate"`
	Entities int     `json:"entities"`
	Sessions int     `json:"sessions"`
}

// Snapshot собирает Info через горутину тика. Блокирует до ответа
// или отмены контекста (мир может ещё не быть запущен).
func (r *Realm) Snapshot(ctx context.Context) (Info, error) {
	done := make(chan Info, 1)
	fn := func() {
		done <- Info{
			ID:       r.id,
			Tick:     r.tick,
			TickRate: 1.0 / r.tickDur.Seconds(),
			Entities: len(r.entities),
			Sessions: r.sessionCount(),
		}
	}

	select {
	case r.ctrl <- fn:
	case <-ctx.Done():
		return Info{}, ctx.Err()
	}

	select {
	case info := <-done:
		return info, nil
	case <-ctx.Done():
		return Info{}, ctx.Err()
	}
}

// SessionInfo — срез состояния одной сессии для REST-инспекции
type SessionInfo struct {
	ClientID uint64 `json:"client_id"`
	Name     string `json:"name"`
	PlayerID uint64 `json:"player_id"`
	Dormant  bool   `json:"dormant"`
	Queue    int    `json:"queue"`
	Ack      uint32 `json:"last_processed_seq"`
	Gems     int    `json:"gems"`
	Editor   bool   `json:"editor"`
}

// SessionList собирает состояние всех сессий через горутину тика
func (r *Realm) SessionList(ctx context.Context) ([]SessionInfo, error) {
	done := make(chan []SessionInfo, 1)
	fn := func() {
		out := make([]SessionInfo, 0, len(r.sessions))
		for _, s := range r.sortedSessions() {
			out = append(out, SessionInfo{
				ClientID: s.ClientID,
				Name:     s.Name,
				PlayerID: s.PlayerID,
				Dormant:  s.Dormant(),
				Queue:    s.QueueLen(),
				Ack:      s.LastProcessedInputSeq(),
				Gems:     s.gems,
				Editor:   s.editor,
			})
		}
		done <- out
	}

	select {
	case r.ctrl <- fn:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case list := <-done:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run крутит цикл тика до отмены контекста
func (r *Realm) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tickDur)
	defer ticker.Stop()

	logging.Info("Realm %s: запуск цикла тика (%v, x%d физики)", r.id, r.tickDur, r.physicsMult)
	for {
		select {
		case <-ctx.Done():
			logging.Info("Realm %s: остановка", r.id)
			return
		case fn := <-r.ctrl:
			fn()
		case <-ticker.C:
			r.Step(r.tickDur.Seconds())
		}
	}
}

// Entity возвращает сущность по id (nil — нет такой)
func (r *Realm) Entity(id uint64) *entity.Kinematic {
	return r.entities[id]
}

// EntityCount возвращает количество сущностей
func (r *Realm) EntityCount() int { return len(r.entities) }

// ForEachEntity обходит сущности в порядке возрастания id.
// Вызывать только из горутины тика (через Post).
func (r *Realm) ForEachEntity(fn func(*entity.Kinematic)) {
	for _, id := range r.sortedEntityIDs() {
		fn(r.entities[id])
	}
}

// SpawnEntity создаёт сущность указанного типа
func (r *Realm) SpawnEntity(t entity.Type, pos vec.Vec2Float) *entity.Kinematic {
	r.nextEntityID++
	e := entity.New(r.nextEntityID, t, pos)
	r.entities[e.ID] = e
	r.publish(eventbus.EventEntitySpawn, eventbus.EntityPayload{
		Realm: r.id, ID: e.ID, Type: uint16(t), X: pos.X, Y: pos.Y,
	})
	return e
}

// DespawnEntity удаляет сущность из мира
func (r *Realm) DespawnEntity(id uint64) {
	e := r.entities[id]
	if e == nil {
		return
	}
	delete(r.entities, id)
	r.tiers.forget(id)
	r.publish(eventbus.EventEntityDespawn, eventbus.EntityPayload{Realm: r.id, ID: id})
}

// Session возвращает сессию клиента. Безопасен для сетевых горутин.
func (r *Realm) Session(clientID uint64) *Session {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	return r.sessions[clientID]
}

// Join создаёт сессию и сущность игрока в точке спавна мира
func (r *Realm) Join(clientID uint64, name string, sender Sender) *Session {
	return r.JoinAt(clientID, name, sender, r.spawnPoint)
}

// JoinAt создаёт сессию с сущностью в указанной позиции
// (например, восстановленной из хранилища позиций)
func (r *Realm) JoinAt(clientID uint64, name string, sender Sender, pos vec.Vec2Float) *Session {
	player := r.SpawnEntity(entity.TypePlayer, pos)
	s := newSession(clientID, name, player.ID, sender, r.maxQueued)

	r.sessionsMu.Lock()
	r.sessions[clientID] = s
	r.sessionsMu.Unlock()

	r.namesRev++
	r.publish(eventbus.EventSessionJoin, eventbus.SessionPayload{Realm: r.id, Client: clientID, Name: name})
	logging.Info("Realm %s: клиент %d (%s) вошёл, сущность %d", r.id, clientID, name, player.ID)
	return s
}

// Resume пробуждает dormant-сессию при реконнекте в пределах окна.
// Состояние игрока сохранено точно таким, каким было при обрыве.
func (r *Realm) Resume(clientID uint64, sender Sender) (*Session, bool) {
	s := r.Session(clientID)
	if s == nil || !s.Dormant() {
		return nil, false
	}
	s.wake(sender)
	logging.Info("Realm %s: клиент %d возобновил сессию", r.id, clientID)
	return s, true
}

// Disconnect переводит сессию в dormant на время окна реконнекта.
// Очередь ввода замораживается, сущность игрока не симулируется.
func (r *Realm) Disconnect(clientID uint64) {
	s := r.Session(clientID)
	if s == nil {
		return
	}
	s.sleep(r.tick)
	r.publishPosition(s)
	logging.Info("Realm %s: клиент %d отключился, окно %d тиков", r.id, clientID, r.graceTicks)
}

// DisconnectFrom переводит сессию в dormant, только если она всё ещё
// привязана к каналу snd. Запоздалый обрыв старого соединения не
// усыпляет сессию, уже возобновлённую с нового.
func (r *Realm) DisconnectFrom(clientID uint64, snd Sender) {
	s := r.Session(clientID)
	if s == nil || !s.usesSender(snd) {
		return
	}
	s.sleep(r.tick)
	r.publishPosition(s)
	logging.Info("Realm %s: клиент %d отключился, окно %d тиков", r.id, clientID, r.graceTicks)
}

// publishPosition отдаёт позицию игрока подписчику персистентности
func (r *Realm) publishPosition(s *Session) {
	player := r.entities[s.PlayerID]
	if player == nil {
		return
	}
	r.publish(eventbus.EventPlayerPosition, eventbus.PlayerPositionPayload{
		Realm: r.id, Client: s.ClientID, X: player.Pos.X, Y: player.Pos.Y,
	})
}

// SetEditor переключает режим редактора сессии.
// Вход в редактор принудительно спешивает.
func (r *Realm) SetEditor(clientID uint64, on bool) {
	s := r.Session(clientID)
	if s == nil || s.editor == on {
		return
	}
	if on && s.MountID != 0 {
		r.dismount(s)
	}
	s.editor = on
	s.editorRev++
}

// AddGems изменяет счётчик кристаллов сессии
func (r *Realm) AddGems(clientID uint64, delta int) {
	s := r.Session(clientID)
	if s == nil {
		return
	}
	s.gems += delta
	s.gemsRev++
}

// SetCursor обновляет курсор редактора клиента.
// Ревизия концерна растёт только при реальном изменении, иначе поток
// камеры от одного клиента заставлял бы рассылать курсоры каждый тик.
func (r *Realm) SetCursor(clientID uint64, c protocol.CursorState) {
	s := r.Session(clientID)
	if s == nil || s.cursor == c {
		return
	}
	s.cursor = c
	r.cursorsRev++
}

// SetCameraPose запоминает позицию камеры клиента. Вызывать только из
// горутины тика (через Post).
func (r *Realm) SetCameraPose(clientID uint64, pos vec.Vec2Float) {
	s := r.Session(clientID)
	if s == nil {
		return
	}
	s.CameraPose = pos
	s.hasCamera = true
}

// Step выполняет один тик мира. Фиксированный порядок фаз:
// приём ввода, общая симуляция, спавнер, рассылка.
func (r *Realm) Step(dt float64) {
	start := time.Now()
	r.tick++

	r.expireDormant()

	r.hooks.runPreSim(r.tick, dt)

	// Фаза 1: приём ввода по сессиям
	touched := make(map[uint64]bool)
	for _, s := range r.sortedSessions() {
		r.intake(s, dt, touched)
	}

	// Фаза 2: общая симуляция нетронутых сущностей
	r.simulate(dt, touched)

	// Фаза 3: спавнер и обслуживание
	r.spawner.Maintain(r)

	r.hooks.runPostSim(r.tick, dt)

	// Фаза 4: рассылка кадров и sync-сообщений
	for _, s := range r.sortedSessions() {
		r.broadcastTo(s)
	}
	r.flushDirtyChunks()

	// Исключение повторной посадки живёт один тик
	for _, id := range r.sortedEntityIDs() {
		r.entities[id].LastDismount = 0
	}

	r.metrics.observeTick(r.id, time.Since(start).Seconds(), len(r.entities), r.sessionCount())
}

// intake обрабатывает очередь команд одной сессии.
// Все команды, кроме последней, идут по упрощённому пути коллизий
// (тайлы, пропы и твёрдые сущности без выталкивания); последняя — по
// богатому, с выталкиванием перекрытых сущностей. Асимметрия — осознанный
// компромисс: между двумя тиками может накопиться несколько команд, и
// терять их нельзя, а выталкивание нужно лишь итоговой позиции.
func (r *Realm) intake(s *Session, dt float64, touched map[uint64]bool) {
	if s.Dormant() {
		// Замороженная сессия: ни дренажа, ни затухания
		if e := r.entities[s.PlayerID]; e != nil {
			touched[e.ID] = true
		}
		if s.MountID != 0 {
			touched[s.MountID] = true
		}
		return
	}

	player := r.entities[s.PlayerID]
	if player == nil {
		return
	}

	// Защитное спешивание: маунт мог исчезнуть между тиками
	if s.MountID != 0 && r.entities[s.MountID] == nil {
		entity.Detach(player, nil)
		s.MountID = 0
		s.mountRev++
	}

	cmds := s.drain()
	driven := player
	if s.MountID != 0 {
		driven = r.entities[s.MountID]
	}

	if len(cmds) == 0 {
		// Пустая очередь: затухание без смещения — точный паритет
		// с предсказанием простаивающего клиента
		out := physics.Step(&driven.Body, physics.Input{}, dt, r.queryFor(driven), r.params)
		if out.Landed && s.MountID == 0 && !s.editor {
			r.tryMount(s, player)
		}
		r.markTouched(s, touched)
		r.syncRider(s)
		return
	}

	for i, cmd := range cmds {
		in := cmd.Input()
		cdt := cmd.Dt(r.tickDur)

		if s.MountID != 0 && in.JumpPressed {
			// Фронт прыжка верхом — спешивание
			r.dismount(s)
			driven = player
			in.JumpPressed = false
		}

		out := physics.Step(&driven.Body, in, cdt, r.queryFor(driven), r.params)
		r.updateSprite(driven, in)
		if i == len(cmds)-1 {
			r.pushOverlapping(driven)
		}

		if out.Landed && s.MountID == 0 && !s.editor {
			if mount := r.tryMount(s, player); mount != nil {
				driven = mount
			}
		}

		s.Ack(cmd.Seq)
	}
	r.metrics.addCommands(r.id, len(cmds))

	r.markTouched(s, touched)
	r.syncRider(s)
}

func (r *Realm) markTouched(s *Session, touched map[uint64]bool) {
	touched[s.PlayerID] = true
	if s.MountID != 0 {
		touched[s.MountID] = true
	}
}

func (r *Realm) syncRider(s *Session) {
	if s.MountID == 0 {
		return
	}
	player := r.entities[s.PlayerID]
	mount := r.entities[s.MountID]
	if player != nil && mount != nil {
		entity.SyncRider(player, mount)
	}
}

// tryMount ищет ездовую сущность под приземлившимся игроком
func (r *Realm) tryMount(s *Session, player *entity.Kinematic) *entity.Kinematic {
	for _, id := range r.sortedEntityIDs() {
		cand := r.entities[id]
		if !entity.CanMount(player, cand) {
			continue
		}
		entity.Attach(player, cand)
		s.MountID = cand.ID
		s.mountRev++
		r.hooks.runTagChange(cand, "ridden", true)
		logging.Debug("Realm %s: игрок %d сел на %d", r.id, player.ID, cand.ID)
		return cand
	}
	return nil
}

// dismount спешивает сессию с текущего маунта
func (r *Realm) dismount(s *Session) {
	player := r.entities[s.PlayerID]
	mount := r.entities[s.MountID]
	entity.Detach(player, mount)
	s.MountID = 0
	s.mountRev++
	if mount != nil {
		r.hooks.runTagChange(mount, "ridden", false)
	}
}

// simulate — общая фаза: AI и кинематика всех сущностей, не тронутых
// в фазе приёма ввода, с дроблением на суб-шаги физики.
func (r *Realm) simulate(dt float64, touched map[uint64]bool) {
	for _, id := range r.sortedEntityIDs() {
		e := r.entities[id]
		if e == nil || touched[id] || e.Type == entity.TypeProp {
			continue
		}

		if e.Attached() {
			// Всадник выводится из маунта, отдельно не симулируется
			if mount := r.entities[e.Parent]; mount != nil {
				entity.SyncRider(e, mount)
			}
			continue
		}

		if e.DeathTimer != nil {
			*e.DeathTimer -= dt
			if *e.DeathTimer <= 0 {
				r.DespawnEntity(id)
				continue
			}
		}

		step := r.tiers.advance(id, tierFor(r.nearestPlayerDist(e.Pos)), dt)
		if step == 0 {
			continue
		}

		var in physics.Input
		if e.Brain != nil {
			in = entity.Think(e, worldAPI{r}, step)
		}

		sub := step / float64(r.physicsMult)
		for k := 0; k < r.physicsMult; k++ {
			physics.Step(&e.Body, in, sub, r.queryFor(e), r.params)
			in.JumpPressed = false // Фронт действует только в первом суб-шаге
		}
		r.updateSprite(e, in)
	}
}

// expireDormant уничтожает dormant-сессии с истёкшим окном
func (r *Realm) expireDormant() {
	for _, s := range r.sortedSessions() {
		if !s.Dormant() || r.tick-s.dormantSince <= r.graceTicks {
			continue
		}
		if s.MountID != 0 {
			r.dismount(s)
		}
		r.publishPosition(s)
		r.DespawnEntity(s.PlayerID)
		r.sessionsMu.Lock()
		delete(r.sessions, s.ClientID)
		r.sessionsMu.Unlock()
		r.namesRev++
		r.metrics.addExpired(r.id)
		r.publish(eventbus.EventSessionExpire, eventbus.SessionPayload{Realm: r.id, Client: s.ClientID})
		logging.Info("Realm %s: dormant-сессия клиента %d истекла", r.id, s.ClientID)
	}
}

// pushOverlapping выталкивает твёрдые сущности из коллайдера движущегося
func (r *Realm) pushOverlapping(mover *entity.Kinematic) {
	box := mover.Box()
	for _, id := range r.sortedEntityIDs() {
		other := r.entities[id]
		if id == mover.ID || !other.Solid || other.Attached() {
			continue
		}
		if id == mover.Parent || other.RiddenBy == mover.ID || mover.RiddenBy == id {
			continue
		}
		if !box.Overlaps(other.Box()) {
			continue
		}
		physics.ResolvePenetration(&other.Body, []physics.AABB{box})
		r.hooks.runOverlap(mover, other)
	}
}

func (r *Realm) updateSprite(e *entity.Kinematic, in physics.Input) {
	moving := in.DX != 0 || in.DY != 0
	e.Sprite.Moving = moving
	if moving {
		e.Sprite.Direction = entity.DirectionFor(vec.Vec2Float{X: in.DX, Y: in.DY})
	}
}

func (r *Realm) queryFor(e *entity.Kinematic) physics.WorldQuery {
	return collisionQuery{r: r, exclude: [3]uint64{e.ID, e.Parent, e.RiddenBy}}
}

func (r *Realm) nearestPlayerDist(pos vec.Vec2Float) float64 {
	best := tierMidRadius * 10
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	for _, s := range r.sessions {
		if p := r.entities[s.PlayerID]; p != nil {
			if d := p.Pos.DistanceTo(pos); d < best {
				best = d
			}
		}
	}
	return best
}

func (r *Realm) sortedEntityIDs() []uint64 {
	ids := make([]uint64, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Realm) sortedSessions() []*Session {
	r.sessionsMu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessionsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (r *Realm) sessionCount() int {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	return len(r.sessions)
}

// flushDirtyChunks публикует грязные чанки в шину событий.
// Чанк уходит целиком: персистентность сохраняет его из события,
// не обращаясь к горутине тика и никогда не блокируя её.
func (r *Realm) flushDirtyChunks() {
	for _, cc := range r.world.DrainDirty() {
		r.publish(eventbus.EventChunkDirty, eventbus.ChunkDirtyPayload{
			Realm:    r.id,
			Revision: r.world.chunkRevs[cc],
			Chunk:    r.world.ChunkPayload(cc),
		})
	}
}

func (r *Realm) publish(eventType string, payload interface{}) {
	if r.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ev := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "realm/" + r.id,
		EventType: eventType,
		Version:   1,
		Payload:   data,
	}
	if err := r.bus.Publish(context.Background(), ev); err != nil {
		logging.Warn("Realm %s: событие %s не опубликовано: %v", r.id, eventType, err)
	}
}
