package tcp_test

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/internal/transport/tcp"
)

func startServer(t *testing.T) *tcp.Server {
	t.Helper()
	srv := tcp.New("127.0.0.1:0", chat.NewHub(), nil)
	go srv.Start()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	return srv
}

func TestServer_Start(t *testing.T) {
	srv := startServer(t)
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	conn.Close()
}

func TestServer_Register(t *testing.T) {
	srv := startServer(t)
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"messageType":"register","dataArray":null,"data":"alice"}` + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !strings.Contains(line, `"messageType":"users"`) || !strings.Contains(line, `"alice"`) {
		t.Errorf("unexpected frame %q", line)
	}
}

func TestServer_Stop(t *testing.T) {
	srv := startServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return with a client connected")
	}

	if _, err := net.Dial("tcp", srv.Addr()); err == nil {
		t.Error("expected error after stop, got nil")
	}
}
