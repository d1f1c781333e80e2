package realm

import (
	"sync"

	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/vec"
)

// Sender отправляет сообщение клиенту сессии.
// Реализуется сетевым слоем; кодирование выполняет он же.
type Sender interface {
	Send(t protocol.MsgType, payload interface{}) error
}

// Session — привязка одного клиента к миру: его сущность, очередь
// ввода и состояние рассылки. Очередь защищена мьютексом, потому что
// пополняется из сетевых горутин; всё остальное трогает только
// горутина тика владеющего Realm.
type Session struct {
	ClientID uint64
	Name     string
	PlayerID uint64

	// MountID — сущность, которую сейчас ведёт ввод сессии (0 — игрок)
	MountID uint64

	// CameraPose — последняя позиция камеры, присланная клиентом.
	// Для сессии в режиме редактора служит центром зоны видимости.
	CameraPose vec.Vec2Float
	hasCamera  bool

	mu       sync.Mutex
	queue    []protocol.Command
	maxQueue int

	ack uint32 // lastProcessedInputSeq; только растёт

	dormant      bool
	dormantSince uint64 // Тик, на котором сессия уснула

	editor bool
	gems   int
	cursor protocol.CursorState

	sender Sender

	// Состояние рассылки: что этот клиент уже видел
	lastSent map[uint64]protocol.Snapshot
	sentRev  map[string]uint64

	// Ревизии per-session концернов; растут при каждом изменении
	mountRev  uint64
	gemsRev   uint64
	editorRev uint64
}

func newSession(clientID uint64, name string, playerID uint64, sender Sender, maxQueue int) *Session {
	return &Session{
		ClientID:  clientID,
		Name:      name,
		PlayerID:  playerID,
		sender:    sender,
		maxQueue:  maxQueue,
		lastSent:  make(map[uint64]protocol.Snapshot),
		sentRev:   make(map[string]uint64),
		mountRev:  1,
		gemsRev:   1,
		editorRev: 1,
	}
}

// Enqueue добавляет команду в очередь сессии.
// Безопасен для вызова из сетевых горутин. У dormant-сессии очередь
// заморожена: новые команды отбрасываются до возобновления.
// При переполнении вытесняется самая старая команда.
func (s *Session) Enqueue(cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dormant {
		return
	}
	if s.maxQueue > 0 && len(s.queue) >= s.maxQueue {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
	}
	s.queue = append(s.queue, cmd)
}

// drain забирает всю очередь разом
func (s *Session) drain() []protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// QueueLen возвращает текущий размер очереди
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Ack продвигает lastProcessedInputSeq. Монотонен: устаревшие и
// повторные значения игнорируются, отката не бывает.
func (s *Session) Ack(seq uint32) {
	if seq > s.ack {
		s.ack = seq
	}
}

// LastProcessedInputSeq возвращает текущий ack сессии
func (s *Session) LastProcessedInputSeq() uint32 {
	return s.ack
}

// Dormant сообщает, спит ли сессия
func (s *Session) Dormant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dormant
}

// sleep замораживает сессию на время окна реконнекта
func (s *Session) sleep(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dormant = true
	s.dormantSince = tick
	s.sender = nil
}

// wake возобновляет сессию с новым отправителем.
// Кэш рассылки сбрасывается: новому соединению нужны baseline-снимки.
func (s *Session) wake(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dormant = false
	s.sender = sender
	s.lastSent = make(map[uint64]protocol.Snapshot)
	s.sentRev = make(map[string]uint64)
}

// usesSender сообщает, привязана ли сессия именно к этому отправителю
func (s *Session) usesSender(snd Sender) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender == snd
}

// send отправляет сообщение клиенту; у спящей сессии отправителя нет
func (s *Session) send(t protocol.MsgType, payload interface{}) error {
	s.mu.Lock()
	snd := s.sender
	s.mu.Unlock()
	if snd == nil {
		return nil
	}
	return snd.Send(t, payload)
}

// Gems возвращает счётчик кристаллов сессии
func (s *Session) Gems() int { return s.gems }

// Editor сообщает, в режиме ли редактора сессия
func (s *Session) Editor() bool { return s.editor }
