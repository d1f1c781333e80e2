// Тестовый клиент для ручной проверки игрового протокола: входит на
// сервер, шлёт ввод и печатает кадры и sync-сообщения.
//
//	go run test_client.go -addr localhost:7777 -user test -pass test
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/annel0/realm-server/internal/network"
	"github.com/annel0/realm-server/internal/protocol"
)

func main() {
	var (
		addr     = flag.String("addr", "localhost:7777", "адрес игрового сервера")
		useKCP   = flag.Bool("kcp", false, "подключаться по KCP вместо TCP")
		username = flag.String("user", "test", "имя пользователя")
		password = flag.String("pass", "test", "пароль")
		duration = flag.Duration("t", 5*time.Second, "сколько бегать")
	)
	flag.Parse()

	var (
		ch  network.NetChannel
		err error
	)
	if *useKCP {
		ch, err = network.DialKCP(*addr)
	} else {
		ch, err = network.DialTCP(*addr, 3*time.Second)
	}
	if err != nil {
		log.Fatalf("Подключение: %v", err)
	}
	defer ch.Close()
	fmt.Println("✅ Подключен к", *addr)

	ser, err := protocol.NewSerializer()
	if err != nil {
		log.Fatalf("Сериализатор: %v", err)
	}

	send := func(t protocol.MsgType, payload interface{}) {
		frame, err := ser.Marshal(t, payload)
		if err != nil {
			log.Fatalf("Кодирование %s: %v", t, err)
		}
		if err := ch.Send(frame); err != nil {
			log.Fatalf("Отправка %s: %v", t, err)
		}
	}

	// === Вход ===
	send(protocol.MsgLogin, protocol.Login{Username: *username, Password: *password})

	var ack protocol.LoginAck
	deadline := time.Now().Add(*duration)
	loggedIn := make(chan struct{})

	go func() {
		<-loggedIn
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		var seq uint32
		for range ticker.C {
			seq++
			send(protocol.MsgPlayerInput, protocol.PlayerInput{
				Commands: []protocol.Command{{Seq: seq, DX: 1}},
			})
		}
	}()

	for time.Now().Before(deadline) {
		ch.SetReadDeadline(deadline)
		frame, err := ch.Receive()
		if err != nil {
			break
		}
		env, err := ser.Unmarshal(frame)
		if err != nil {
			log.Printf("Повреждённый кадр: %v", err)
			continue
		}

		switch env.Type {
		case protocol.MsgLoginAck:
			if err := protocol.DecodePayload(env, &ack); err != nil || !ack.OK {
				log.Fatalf("Вход отклонён: %s", ack.Error)
			}
			fmt.Printf("✅ Вход: client=%s entity=%d realm=%s\n",
				ack.ClientID, ack.PlayerEntityID, ack.RealmID)
			close(loggedIn)

		case protocol.MsgFrame:
			var f protocol.Frame
			if protocol.DecodePayload(env, &f) == nil {
				fmt.Printf("frame tick=%d ack=%d baselines=%d deltas=%d exits=%d\n",
					f.ServerTick, f.LastProcessedInputSeq,
					len(f.EntityBaselines), len(f.EntityDeltas), len(f.EntityExits))
			}

		case protocol.MsgSync:
			var s protocol.Sync
			if protocol.DecodePayload(env, &s) == nil {
				fmt.Printf("sync  %s rev=%d (%d байт)\n", s.Concern, s.Revision, len(s.Payload))
			}
		}
	}

	stats := ch.Stats()
	fmt.Printf("Итого: отправлено %d кадров (%d байт), принято %d (%d байт)\n",
		stats.FramesSent, stats.BytesSent, stats.FramesReceived, stats.BytesReceived)
}
