// event-cli — утилита для наблюдения за шиной событий работающего
// кластера: подключается к NATS JetStream и печатает события мира.
//
// Примеры:
//
//	event-cli -nats nats://localhost:4222 -types chunk_dirty,player_position
//	event-cli -sources realm/main
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/realm-server/internal/eventbus"
)

func main() {
	var (
		natsURL = flag.String("nats", "nats://localhost:4222", "адрес NATS-сервера")
		stream  = flag.String("stream", "", "имя JetStream-стрима (пусто — по умолчанию)")
		types   = flag.String("types", "", "фильтр типов событий через запятую")
		sources = flag.String("sources", "", "фильтр источников через запятую, например realm/main")
		raw     = flag.Bool("raw", false, "печатать полезную нагрузку без декодирования")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("Подключение к NATS: %v", err)
	}
	defer bus.Close()

	filter := eventbus.Filter{
		Types:   splitList(*types),
		Sources: splitList(*sources),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(ev, *raw)
	})
	if err != nil {
		log.Fatalf("Подписка: %v", err)
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(os.Stderr, "Слушаю %s (types=%v sources=%v), Ctrl+C для выхода\n",
		*natsURL, filter.Types, filter.Sources)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printEvent(ev *eventbus.Envelope, raw bool) {
	ts := ev.Timestamp.Format(time.RFC3339)
	if raw {
		fmt.Printf("%s %-16s %-12s %s\n", ts, ev.EventType, ev.Source, ev.Payload)
		return
	}

	// Компактное представление: полезная нагрузка в одну строку
	var compact json.RawMessage
	payload := string(ev.Payload)
	if json.Unmarshal(ev.Payload, &compact) == nil {
		if b, err := json.Marshal(compact); err == nil {
			payload = string(b)
		}
	}
	fmt.Printf("%s %-16s %-12s prio=%d %s\n", ts, ev.EventType, ev.Source, ev.Priority, payload)
}
