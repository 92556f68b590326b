package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/pkg/protocol"
)

var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type peer struct {
	conn   *mockConn
	client *chat.Client
	done   chan struct{}
}

func connect(t *testing.T, ctx context.Context, hub *chat.Hub, addr string) *peer {
	t.Helper()
	conn := newMockConn(addr)
	client := chat.NewClient(conn, 10)
	hub.Register(client)

	p := &peer{conn: conn, client: client, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		hub.HandleClient(ctx, client)
	}()
	return p
}

func (p *peer) send(t *testing.T, env protocol.Envelope) {
	t.Helper()
	text, err := protocol.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	p.conn.readCh <- []byte(text)
}

func (p *peer) expect(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case data := <-p.client.Outgoing:
		env, err := protocol.Decode(string(data))
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", data, err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return protocol.Envelope{}
	}
}

func (p *peer) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case data := <-p.client.Outgoing:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectUsers(t *testing.T, env protocol.Envelope, want ...string) {
	t.Helper()
	if env.Kind != protocol.KindUsers {
		t.Fatalf("Kind = %v, want users", env.Kind)
	}
	if len(env.Items) != len(want) {
		t.Fatalf("Items = %v, want %v", env.Items, want)
	}
	for i := range want {
		if env.Items[i] != want[i] {
			t.Errorf("Items = %v, want %v", env.Items, want)
		}
	}
}

func expectError(t *testing.T, env protocol.Envelope, reason string) {
	t.Helper()
	if env.Kind != protocol.KindError {
		t.Fatalf("Kind = %v, want error", env.Kind)
	}
	if got := env.PayloadOr(""); got != reason {
		t.Errorf("reason = %q, want %q", got, reason)
	}
}

func TestHub_Register(t *testing.T) {
	hub := chat.NewHub()
	client := chat.NewClient(&mockConn{remoteAddr: "127.0.0.1:1234"}, 10)

	hub.Register(client)

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
	if got := hub.Participants(); len(got) != 0 {
		t.Errorf("Participants() = %v, want none before register frame", got)
	}
}

func TestHub_Register_MultipleClients(t *testing.T) {
	hub := chat.NewHub()

	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		client := chat.NewClient(&mockConn{remoteAddr: "127.0.0.1:1234"}, 10)
		ids[client.ID] = true
		hub.Register(client)
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
	if len(ids) != 3 {
		t.Errorf("client IDs not unique: %v", ids)
	}
}

func TestHub_JoinBroadcastsRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := chat.NewHub()

	alice := connect(t, ctx, hub, "a")
	alice.send(t, protocol.NewRegister("alice"))
	expectUsers(t, alice.expect(t), "alice")

	bob := connect(t, ctx, hub, "b")
	bob.send(t, protocol.NewRegister("bob"))
	expectUsers(t, alice.expect(t), "alice", "bob")
	expectUsers(t, bob.expect(t), "alice", "bob")

	if got := hub.Participants(); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("Participants() = %v, want [alice bob]", got)
	}
}

func TestHub_RelaysMessagesWithSender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := chat.NewHub(chat.WithClock(func() time.Time { return fixedTime }))

	alice := connect(t, ctx, hub, "a")
	alice.send(t, protocol.NewRegister("alice"))
	alice.expect(t)
	bob := connect(t, ctx, hub, "b")
	bob.send(t, protocol.NewRegister("bob"))
	alice.expect(t)
	bob.expect(t)

	bob.send(t, protocol.NewText("hi"))

	for _, p := range []*peer{alice, bob} {
		env := p.expect(t)
		if env.Kind != protocol.KindMessage {
			t.Fatalf("Kind = %v, want message", env.Kind)
		}
		msg, err := protocol.DecodeChatMessage(env.PayloadOr(""))
		if err != nil {
			t.Fatalf("DecodeChatMessage() error = %v", err)
		}
		want := protocol.ChatMessage{Sender: "bob", Body: "hi", SentAt: "2024-05-06T07:08:09Z"}
		if msg != want {
			t.Errorf("message = %+v, want %+v", msg, want)
		}
	}
}

func TestHub_DropsBlankMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := chat.NewHub()

	alice := connect(t, ctx, hub, "a")
	alice.send(t, protocol.NewRegister("alice"))
	alice.expect(t)

	alice.send(t, protocol.NewText("   "))
	alice.expectNothing(t)
}

func TestHub_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := chat.NewHub(chat.WithMaxParticipants(2))

	alice := connect(t, ctx, hub, "a")
	alice.send(t, protocol.NewText("too early"))
	expectError(t, alice.expect(t), chat.ReasonRegisterFirst)

	alice.send(t, protocol.NewRegister("  "))
	expectError(t, alice.expect(t), chat.ReasonNameRequired)

	alice.send(t, protocol.NewRegister("alice"))
	alice.expect(t)
	alice.send(t, protocol.NewRegister("alice"))
	expectError(t, alice.expect(t), chat.ReasonRegistered)

	alice.send(t, protocol.NewUsers([]string{"x"}))
	expectError(t, alice.expect(t), chat.ReasonUnexpectedFrame)

	alice.conn.readCh <- []byte("not json")
	expectError(t, alice.expect(t), "invalid frame: malformed: not a JSON object")

	alice.conn.readCh <- []byte(`{"messageType":"typing"}`)
	expectError(t, alice.expect(t), `invalid frame: unknown message type: "typing"`)

	dup := connect(t, ctx, hub, "d")
	dup.send(t, protocol.NewRegister("alice"))
	expectError(t, dup.expect(t), chat.ReasonNameTaken)

	bob := connect(t, ctx, hub, "b")
	bob.send(t, protocol.NewRegister("bob"))
	bob.expect(t)
	alice.expect(t)

	carol := connect(t, ctx, hub, "c")
	carol.send(t, protocol.NewRegister("carol"))
	expectError(t, carol.expect(t), chat.ReasonRoomFull)
}

func TestHub_LeaveBroadcastsRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := chat.NewHub()

	alice := connect(t, ctx, hub, "a")
	alice.send(t, protocol.NewRegister("alice"))
	alice.expect(t)
	bob := connect(t, ctx, hub, "b")
	bob.send(t, protocol.NewRegister("bob"))
	alice.expect(t)
	bob.expect(t)

	close(bob.conn.readCh)
	<-bob.done

	expectUsers(t, alice.expect(t), "alice")
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestHub_HandleClientStopsOnReadError(t *testing.T) {
	hub := chat.NewHub()
	conn := newMockConn("a")
	conn.readErr = errors.New("connection reset by peer")
	client := chat.NewClient(conn, 10)
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.HandleClient(context.Background(), client)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleClient did not return after read error")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHub_HandleClientStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := chat.NewHub()
	p := connect(t, ctx, hub, "a")

	cancel()
	select {
	case <-p.done:
	case <-time.After(time.Second):
		t.Fatal("HandleClient did not return after cancel")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHub_WireFormat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := chat.NewHub()

	alice := connect(t, ctx, hub, "a")
	alice.send(t, protocol.NewRegister("alice"))

	select {
	case data := <-alice.client.Outgoing:
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("invalid JSON %s: %v", data, err)
		}
		if raw["messageType"] != "users" {
			t.Errorf("messageType = %v, want users", raw["messageType"])
		}
		if _, ok := raw["dataArray"]; !ok {
			t.Error("dataArray field missing")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
}
