package network

import (
	"errors"
	"sync"

	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/protocol"
)

// sendQueueSize — ёмкость исходящей очереди одного соединения
const sendQueueSize = 256

var (
	errSenderClosed = errors.New("отправитель закрыт")
	errSendOverflow = errors.New("очередь отправки переполнена")
)

// connSender — реализация realm.Sender поверх NetChannel. Горутина
// тика кладёт кадры в буферизованный канал и не блокируется; писатель
// выталкивает их в сеть в своём темпе. Переполнение очереди (клиент
// не успевает читать) роняет кадр, а не тик.
type connSender struct {
	ch      NetChannel
	ser     *protocol.Serializer
	metrics *Metrics

	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newConnSender(ch NetChannel, ser *protocol.Serializer, m *Metrics) *connSender {
	cs := &connSender{
		ch:      ch,
		ser:     ser,
		metrics: m,
		out:     make(chan []byte, sendQueueSize),
		closed:  make(chan struct{}),
	}
	go cs.writeLoop()
	return cs
}

// Send кодирует сообщение и ставит его в очередь отправки.
// Переполнение очереди возвращает ошибку: мир не должен считать
// уроненный кадр доставленным, иначе клиент получит дельту без baseline.
func (cs *connSender) Send(t protocol.MsgType, payload interface{}) error {
	frame, err := cs.ser.Marshal(t, payload)
	if err != nil {
		return err
	}

	select {
	case <-cs.closed:
		return errSenderClosed
	default:
	}

	select {
	case cs.out <- frame:
		return nil
	default:
		cs.metrics.FrameDropped()
		return errSendOverflow
	}
}

func (cs *connSender) writeLoop() {
	for {
		select {
		case frame := <-cs.out:
			if err := cs.ch.Send(frame); err != nil {
				logging.Debug("Запись в %s прервана: %v", cs.ch.RemoteAddr(), err)
				cs.close()
				return
			}
			cs.metrics.FrameOut()
		case <-cs.closed:
			return
		}
	}
}

// close останавливает писателя; сама сеть закрывается владельцем канала
func (cs *connSender) close() {
	cs.closeOnce.Do(func() { close(cs.closed) })
}
