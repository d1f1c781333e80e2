package network

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/realm-server/internal/auth"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/realm"
	"github.com/annel0/realm-server/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*GameServer, *realm.Realm) {
	t.Helper()

	repo, err := auth.NewMemoryUserRepo()
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(repo, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	r := realm.New(realm.NewWorld(), realm.Options{ID: "main", TickRate: 50})
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)

	reg := realm.NewRegistry()
	require.NoError(t, reg.Register(r))

	gs, err := NewGameServer(Config{
		TCPAddr:       "127.0.0.1:0",
		DefaultRealm:  "main",
		Registry:      reg,
		Authenticator: authn,
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	require.NoError(t, gs.Start())
	t.Cleanup(gs.Stop)

	return gs, r
}

type testClient struct {
	t   *testing.T
	ch  *TCPChannel
	ser *protocol.Serializer
}

func dialTestClient(t *testing.T, gs *GameServer) *testClient {
	t.Helper()
	ch, err := DialTCP(gs.TCPAddr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	ser, err := protocol.NewSerializer()
	require.NoError(t, err)
	return &testClient{t: t, ch: ch, ser: ser}
}

func (c *testClient) send(tp protocol.MsgType, payload interface{}) {
	c.t.Helper()
	frame, err := c.ser.Marshal(tp, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ch.Send(frame))
}

// waitFor читает входящие, пока не встретит сообщение нужного типа.
// Попутные frame- и sync-сообщения пропускаются.
func (c *testClient) waitFor(want protocol.MsgType) *protocol.Envelope {
	c.t.Helper()
	c.ch.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer c.ch.SetReadDeadline(time.Time{})
	for {
		frame, err := c.ch.Receive()
		require.NoError(c.t, err, "не дождались %s", want)
		env, err := c.ser.Unmarshal(frame)
		require.NoError(c.t, err)
		if env.Type == want {
			return env
		}
	}
}

func (c *testClient) login(login protocol.Login) protocol.LoginAck {
	c.t.Helper()
	c.send(protocol.MsgLogin, login)
	env := c.waitFor(protocol.MsgLoginAck)
	var ack protocol.LoginAck
	require.NoError(c.t, protocol.DecodePayload(env, &ack))
	return ack
}

func TestGameServer_LoginSuccess(t *testing.T) {
	gs, _ := startTestServer(t)
	c := dialTestClient(t, gs)

	ack := c.login(protocol.Login{Username: "test", Password: "test"})
	require.True(t, ack.OK, "вход должен пройти: %s", ack.Error)
	assert.Equal(t, "1", ack.ClientID)
	assert.NotZero(t, ack.PlayerEntityID)
	assert.Equal(t, "main", ack.RealmID)
	assert.NotEmpty(t, ack.Token, "в ответе должен быть JWT для REST")

	// После входа мир начинает слать кадры
	frame := c.waitFor(protocol.MsgFrame)
	var f protocol.Frame
	require.NoError(t, protocol.DecodePayload(frame, &f))
	assert.Equal(t, ack.PlayerEntityID, f.PlayerEntityID)
}

func TestGameServer_LoginWrongPassword(t *testing.T) {
	gs, _ := startTestServer(t)
	c := dialTestClient(t, gs)

	ack := c.login(protocol.Login{Username: "test", Password: "нет"})
	assert.False(t, ack.OK)
	assert.NotEmpty(t, ack.Error)
}

func TestGameServer_LoginUnknownRealm(t *testing.T) {
	gs, _ := startTestServer(t)
	c := dialTestClient(t, gs)

	ack := c.login(protocol.Login{Username: "test", Password: "test", RealmID: "void"})
	assert.False(t, ack.OK)
}

func TestGameServer_FirstMessageMustBeLogin(t *testing.T) {
	gs, _ := startTestServer(t)
	c := dialTestClient(t, gs)

	c.send(protocol.MsgPing, nil)
	env := c.waitFor(protocol.MsgLoginAck)
	var ack protocol.LoginAck
	require.NoError(t, protocol.DecodePayload(env, &ack))
	assert.False(t, ack.OK)
}

func TestGameServer_InputReachesRealm(t *testing.T) {
	gs, _ := startTestServer(t)
	c := dialTestClient(t, gs)

	ack := c.login(protocol.Login{Username: "test", Password: "test"})
	require.True(t, ack.OK)

	c.send(protocol.MsgPlayerInput, protocol.PlayerInput{Commands: []protocol.Command{
		{Seq: 1, DX: 1},
		{Seq: 2, DX: 1},
	}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "ввод не был обработан миром")
		env := c.waitFor(protocol.MsgFrame)
		var f protocol.Frame
		require.NoError(t, protocol.DecodePayload(env, &f))
		if f.LastProcessedInputSeq >= 2 {
			break
		}
	}
}

func TestGameServer_CameraPoseReachesRealm(t *testing.T) {
	gs, r := startTestServer(t)
	c := dialTestClient(t, gs)

	require.True(t, c.login(protocol.Login{Username: "test", Password: "test"}).OK)

	c.send(protocol.MsgCameraPose, protocol.CameraPose{
		X: 123, Y: 45,
		Cursor: &protocol.CursorState{X: 1, Y: 2},
	})

	require.Eventually(t, func() bool {
		var pose vec.Vec2Float
		done := make(chan struct{})
		r.Post(func() {
			if s := r.Session(1); s != nil {
				pose = s.CameraPose
			}
			close(done)
		})
		<-done
		return pose == (vec.Vec2Float{X: 123, Y: 45})
	}, 2*time.Second, 20*time.Millisecond, "поза камеры должна дойти до мира")
}

func TestGameServer_PingPong(t *testing.T) {
	gs, _ := startTestServer(t)
	c := dialTestClient(t, gs)

	require.True(t, c.login(protocol.Login{Username: "test", Password: "test"}).OK)

	c.send(protocol.MsgPing, map[string]int{"nonce": 7})
	env := c.waitFor(protocol.MsgPong)

	var echo map[string]int
	require.NoError(t, protocol.DecodePayload(env, &echo))
	assert.Equal(t, 7, echo["nonce"], "pong должен вернуть полезную нагрузку ping")
}

func TestGameServer_ReconnectResumesSession(t *testing.T) {
	gs, r := startTestServer(t)

	c1 := dialTestClient(t, gs)
	ack1 := c1.login(protocol.Login{Username: "test", Password: "test"})
	require.True(t, ack1.OK)

	c1.ch.Close()
	require.Eventually(t, func() bool {
		s := r.Session(1)
		return s != nil && s.Dormant()
	}, 2*time.Second, 10*time.Millisecond, "после обрыва сессия должна уснуть")

	c2 := dialTestClient(t, gs)
	ack2 := c2.login(protocol.Login{Token: ack1.Token})
	require.True(t, ack2.OK, "реконнект по токену: %s", ack2.Error)
	assert.Equal(t, ack1.ClientID, ack2.ClientID)
	assert.Equal(t, ack1.PlayerEntityID, ack2.PlayerEntityID,
		"возобновлённая сессия сохраняет сущность игрока")
}

func TestGameServer_KCPLogin(t *testing.T) {
	repo, err := auth.NewMemoryUserRepo()
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(repo, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	r := realm.New(realm.NewWorld(), realm.Options{ID: "main", TickRate: 50})
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)

	reg := realm.NewRegistry()
	require.NoError(t, reg.Register(r))

	gs, err := NewGameServer(Config{
		KCPAddr:       "127.0.0.1:0",
		DefaultRealm:  "main",
		Registry:      reg,
		Authenticator: authn,
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	require.NoError(t, gs.Start())
	t.Cleanup(gs.Stop)

	ch, err := DialKCP(gs.kcpLn.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	ser, err := protocol.NewSerializer()
	require.NoError(t, err)
	c := &testClient{t: t, ch: ch.TCPChannel, ser: ser}

	ack := c.login(protocol.Login{Username: "test", Password: "test"})
	require.True(t, ack.OK, "вход по KCP: %s", ack.Error)
	assert.Equal(t, "main", ack.RealmID)
}
