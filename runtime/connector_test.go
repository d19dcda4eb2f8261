//go:build linux
// +build linux

package runtime

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/packet"
)

func TestDialLocalSocketConnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bsp-test.sock")
	lfd, err := Listen(api.AFLocal, api.SockStream, path, 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer unix.Close(lfd)

	fd, connected, err := Dial(api.AFLocal, api.SockStream, path, 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer unix.Close(fd)

	if !connected {
		// A unix-domain connect with backlog room completes synchronously;
		// EINPROGRESS would still be valid, but a listener must exist.
		soerr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil || soerr != 0 {
			t.Fatalf("connect did not complete: soerr=%d err=%v", soerr, gerr)
		}
	}
}

func TestDialWithoutListenerFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nobody-home.sock")
	if _, _, err := Dial(api.AFLocal, api.SockStream, path, 0); err == nil {
		t.Fatalf("expected connect to a missing socket to fail")
	}
}

func TestConnectorPacketModeDecodes(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[1])

	var gotRaw []byte
	cnt := NewConnector(fds[0], false, 1024, &packet.Codec{}, func(ev api.EventType, _ int32, raw []byte, _ any) {
		if ev == api.DataRaw {
			gotRaw = append([]byte(nil), raw...)
		}
	})
	cnt.DataType = api.DataTypePacket
	defer cnt.Socket.Teardown()

	frame, err := cnt.codec.EncodeRAW(packet.Header{}, []byte("from-server"))
	if err != nil {
		t.Fatalf("EncodeRAW: %v", err)
	}
	consumed := cnt.onData(cnt.Socket, frame)
	if consumed != len(frame) {
		t.Fatalf("expected %d consumed, got %d", len(frame), consumed)
	}
	if string(gotRaw) != "from-server" {
		t.Fatalf("expected RAW dispatch, got %q", gotRaw)
	}
}

func TestConnectorCloseCallbackFires(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	closed := false
	cnt := NewConnector(fds[1], false, 1024, &packet.Codec{}, nil)
	cnt.OnConnectorClose = func(*Connector) { closed = true }
	defer cnt.Socket.Teardown()

	unix.Close(fds[0]) // peer goes away
	cnt.Socket.ApplyReadiness(true, false, false, false, false)
	cnt.Socket.Drive(make([]byte, 256))

	if !closed {
		t.Fatalf("expected on_close(cnt) after peer EOF")
	}
}
