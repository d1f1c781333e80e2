package network

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/realm-server/internal/auth"
	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/realm"
	"github.com/annel0/realm-server/internal/vec"
	"github.com/xtaci/kcp-go/v5"
)

// handshakeTimeout — сколько ждём MsgLogin после установления соединения
const handshakeTimeout = 10 * time.Second

// PositionLoader отдаёт сохранённую позицию игрока для точки входа.
// Реализуется репозиторием позиций; nil допустим (всегда точка спавна).
type PositionLoader interface {
	Load(ctx context.Context, realm string, clientID uint64) (vec.Vec2Float, bool, error)
}

// Config задаёт параметры игрового сервера
type Config struct {
	TCPAddr       string // например :7777; пусто — не слушать TCP
	KCPAddr       string // например :7778; пусто — не слушать KCP
	DefaultRealm  string // мир для клиентов без realmId в login
	Registry      *realm.Registry
	Authenticator *auth.Authenticator
	Positions     PositionLoader
	Metrics       *Metrics
}

// GameServer принимает игровые соединения по TCP и KCP, выполняет
// handshake входа и дальше гоняет кадры между клиентом и его миром.
// Присоединение и отключение сессий проходят через горутину тика
// мира; поток ввода пишется в очередь сессии напрямую.
type GameServer struct {
	cfg        Config
	serializer *protocol.Serializer

	tcpLn net.Listener
	kcpLn *kcp.Listener

	connsMu sync.Mutex
	conns   map[NetChannel]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGameServer создаёт игровой сервер
func NewGameServer(cfg Config) (*GameServer, error) {
	ser, err := protocol.NewSerializer()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GameServer{
		cfg:        cfg,
		serializer: ser,
		conns:      make(map[NetChannel]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start открывает слушатели и запускает accept-циклы
func (gs *GameServer) Start() error {
	if gs.cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", gs.cfg.TCPAddr)
		if err != nil {
			return err
		}
		gs.tcpLn = ln
		gs.wg.Add(1)
		go gs.acceptTCP()
		logging.Info("Игровой сервер слушает TCP %s", ln.Addr())
	}

	if gs.cfg.KCPAddr != "" {
		ln, err := kcp.ListenWithOptions(gs.cfg.KCPAddr, nil, 0, 0)
		if err != nil {
			if gs.tcpLn != nil {
				gs.tcpLn.Close()
			}
			return err
		}
		gs.kcpLn = ln
		gs.wg.Add(1)
		go gs.acceptKCP()
		logging.Info("Игровой сервер слушает KCP %s", ln.Addr())
	}

	return nil
}

// Stop закрывает слушатели и активные соединения, дожидается обработчиков
func (gs *GameServer) Stop() {
	gs.cancel()
	if gs.tcpLn != nil {
		gs.tcpLn.Close()
	}
	if gs.kcpLn != nil {
		gs.kcpLn.Close()
	}

	gs.connsMu.Lock()
	for ch := range gs.conns {
		ch.Close()
	}
	gs.connsMu.Unlock()

	gs.wg.Wait()
}

// TCPAddr возвращает фактический адрес TCP-слушателя (для тестов с :0)
func (gs *GameServer) TCPAddr() string {
	if gs.tcpLn == nil {
		return ""
	}
	return gs.tcpLn.Addr().String()
}

func (gs *GameServer) acceptTCP() {
	defer gs.wg.Done()
	for {
		conn, err := gs.tcpLn.Accept()
		if err != nil {
			select {
			case <-gs.ctx.Done():
				return
			default:
				logging.Warn("TCP accept: %v", err)
				continue
			}
		}
		gs.wg.Add(1)
		go gs.handleConn(NewTCPChannel(conn))
	}
}

func (gs *GameServer) acceptKCP() {
	defer gs.wg.Done()
	for {
		sess, err := gs.kcpLn.AcceptKCP()
		if err != nil {
			select {
			case <-gs.ctx.Done():
				return
			default:
				logging.Warn("KCP accept: %v", err)
				continue
			}
		}
		gs.wg.Add(1)
		go gs.handleConn(NewKCPChannel(sess))
	}
}

// handleConn обслуживает одно соединение от handshake до разрыва
func (gs *GameServer) handleConn(ch NetChannel) {
	defer gs.wg.Done()
	defer ch.Close()

	gs.connsMu.Lock()
	gs.conns[ch] = struct{}{}
	gs.connsMu.Unlock()
	defer func() {
		gs.connsMu.Lock()
		delete(gs.conns, ch)
		gs.connsMu.Unlock()
	}()

	gs.cfg.Metrics.ConnOpened()
	defer gs.cfg.Metrics.ConnClosed()

	user, r, ackToken, ok := gs.handshake(ch)
	if !ok {
		return
	}

	sender := newConnSender(ch, gs.serializer, gs.cfg.Metrics)
	defer sender.close()

	sess, err := gs.attach(r, user, sender)
	if err != nil {
		gs.sendAck(ch, protocol.LoginAck{OK: false, Error: "мир не отвечает"})
		return
	}

	gs.sendAck(ch, protocol.LoginAck{
		OK:             true,
		ClientID:       strconv.FormatUint(user.ID, 10),
		PlayerEntityID: sess.PlayerID,
		RealmID:        r.ID(),
		Token:          ackToken,
	})

	gs.readLoop(ch, r, sess, sender)
}

// handshake ждёт MsgLogin и аутентифицирует клиента
func (gs *GameServer) handshake(ch NetChannel) (*auth.User, *realm.Realm, string, bool) {
	ch.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer ch.SetReadDeadline(time.Time{})

	frame, err := ch.Receive()
	if err != nil {
		logging.Debug("Handshake %s: обрыв до login: %v", ch.RemoteAddr(), err)
		return nil, nil, "", false
	}

	env, err := gs.serializer.Unmarshal(frame)
	if err != nil || env.Type != protocol.MsgLogin {
		gs.sendAck(ch, protocol.LoginAck{OK: false, Error: "ожидался login"})
		return nil, nil, "", false
	}

	var login protocol.Login
	if err := protocol.DecodePayload(env, &login); err != nil {
		gs.sendAck(ch, protocol.LoginAck{OK: false, Error: "некорректный login"})
		return nil, nil, "", false
	}

	var (
		user  *auth.User
		token string
	)
	if login.Token != "" {
		user, err = gs.cfg.Authenticator.UserFromToken(login.Token)
		token = login.Token
	} else {
		user, token, _, err = gs.cfg.Authenticator.Login(login.Username, login.Password)
	}
	if err != nil {
		gs.cfg.Metrics.Login("rejected")
		gs.sendAck(ch, protocol.LoginAck{OK: false, Error: "неверные учетные данные"})
		return nil, nil, "", false
	}

	realmID := login.RealmID
	if realmID == "" {
		realmID = gs.cfg.DefaultRealm
	}
	r := gs.cfg.Registry.Get(realmID)
	if r == nil {
		gs.cfg.Metrics.Login("no_realm")
		gs.sendAck(ch, protocol.LoginAck{OK: false, Error: "мир не найден: " + realmID})
		return nil, nil, "", false
	}

	gs.cfg.Metrics.Login("ok")
	return user, r, token, true
}

// attach присоединяет клиента к миру через горутину тика:
// живая dormant-сессия возобновляется, иначе создаётся новая
// в сохранённой позиции (или в точке спавна при первом входе).
func (gs *GameServer) attach(r *realm.Realm, user *auth.User, sender *connSender) (*realm.Session, error) {
	// Позицию читаем заранее: диск и сеть не для горутины тика
	var (
		savedPos vec.Vec2Float
		havePos  bool
	)
	if gs.cfg.Positions != nil {
		ctx, cancel := context.WithTimeout(gs.ctx, 2*time.Second)
		pos, found, err := gs.cfg.Positions.Load(ctx, r.ID(), user.ID)
		cancel()
		if err != nil {
			logging.Warn("Позиция клиента %d не загрузилась: %v", user.ID, err)
		} else if found {
			savedPos, havePos = pos, true
		}
	}

	var sess *realm.Session
	done := make(chan struct{})
	r.Post(func() {
		defer close(done)
		if s, ok := r.Resume(user.ID, sender); ok {
			sess = s
			return
		}
		if havePos {
			sess = r.JoinAt(user.ID, user.Username, sender, savedPos)
		} else {
			sess = r.Join(user.ID, user.Username, sender)
		}
	})

	select {
	case <-done:
		return sess, nil
	case <-time.After(5 * time.Second):
		return nil, context.DeadlineExceeded
	case <-gs.ctx.Done():
		return nil, gs.ctx.Err()
	}
}

// readLoop гоняет входящие кадры до разрыва соединения
func (gs *GameServer) readLoop(ch NetChannel, r *realm.Realm, sess *realm.Session, sender *connSender) {
	clientID := sess.ClientID

	for {
		frame, err := ch.Receive()
		if err != nil {
			select {
			case <-gs.ctx.Done():
				// Сервер останавливается, dormant-переход не нужен
			default:
				r.Post(func() { r.DisconnectFrom(clientID, sender) })
			}
			return
		}
		gs.cfg.Metrics.FrameIn()

		env, err := gs.serializer.Unmarshal(frame)
		if err != nil {
			logging.Warn("Клиент %d: повреждённый кадр: %v", clientID, err)
			continue
		}

		switch env.Type {
		case protocol.MsgPlayerInput:
			var in protocol.PlayerInput
			if err := protocol.DecodePayload(env, &in); err != nil {
				logging.Warn("Клиент %d: некорректный ввод: %v", clientID, err)
				continue
			}
			for _, cmd := range in.Commands {
				sess.Enqueue(cmd)
			}

		case protocol.MsgCameraPose:
			var pose protocol.CameraPose
			if err := protocol.DecodePayload(env, &pose); err != nil {
				logging.Warn("Клиент %d: некорректная поза камеры: %v", clientID, err)
				continue
			}
			r.Post(func() {
				r.SetCameraPose(clientID, vec.Vec2Float{X: pose.X, Y: pose.Y})
				if pose.Cursor != nil {
					r.SetCursor(clientID, *pose.Cursor)
				}
			})

		case protocol.MsgPing:
			_ = sender.Send(protocol.MsgPong, env.Payload)

		default:
			logging.Debug("Клиент %d: неожиданное сообщение %s", clientID, env.Type)
		}
	}
}

func (gs *GameServer) sendAck(ch NetChannel, ack protocol.LoginAck) {
	frame, err := gs.serializer.Marshal(protocol.MsgLoginAck, ack)
	if err != nil {
		return
	}
	_ = ch.Send(frame)
}
