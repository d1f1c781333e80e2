package eventbus

import (
	"context"

	"github.com/annel0/realm-server/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// Неблокирующий; полезен при отладке межмодульных потоков.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s size=%dB", ev.ID, ev.EventType, ev.Source, len(ev.Payload))
	})
	if err != nil {
		return err
	}
	logging.Info("LoggingListener: подписка на все события активирована")
	return nil
}
