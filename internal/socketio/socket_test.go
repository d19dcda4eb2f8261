//go:build linux
// +build linux

package socketio

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/drnp/bsp/api"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func TestDriveReadsIntoBufferAndInvokesOnData(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	var got []byte
	s := New(local, false, 64, 4096)
	s.OnData = func(_ *Socket, data []byte) int {
		got = append(got[:0], data...)
		return len(data)
	}
	defer s.Teardown()

	if _, err := unix.Write(peer, []byte("hello")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	s.ApplyReadiness(true, false, false, false, false)
	s.Drive(make([]byte, 256))

	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("expected on_data with %q, got %q", "hello", got)
	}
}

func TestDriveEchoWrittenInCallbackReachesPeer(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	s := New(local, false, 64, 4096)
	s.OnData = func(sock *Socket, data []byte) int {
		sock.AppendSend(data)
		return len(data)
	}
	defer s.Teardown()

	if _, err := unix.Write(peer, []byte("ping")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	s.ApplyReadiness(true, false, false, false, false)
	s.Drive(make([]byte, 256))

	buf := make([]byte, 16)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("ping")) {
		t.Fatalf("expected echo %q, got %q", "ping", buf[:n])
	}
	if !s.send.Empty() {
		t.Fatalf("expected send queue drained after echo")
	}
}

func TestUnconsumedBytesStayBuffered(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	s := New(local, false, 64, 4096)
	s.OnData = func(_ *Socket, data []byte) int { return 0 } // need more data
	defer s.Teardown()

	_, _ = unix.Write(peer, []byte("partial"))
	s.ApplyReadiness(true, false, false, false, false)
	s.Drive(make([]byte, 256))

	if !bytes.Equal(s.read.Unread(), []byte("partial")) {
		t.Fatalf("expected bytes retained for the next readiness event, got %q", s.read.Unread())
	}
}

func TestZeroReadOnStreamPromotesToClose(t *testing.T) {
	local, peer := socketPair(t)

	closed := false
	s := New(local, false, 64, 4096)
	s.OnClose = func(*Socket) { closed = true }
	defer s.Teardown()

	unix.Close(peer) // EOF on the next read
	s.ApplyReadiness(true, false, false, false, false)
	s.Drive(make([]byte, 256))

	if !s.State().Has(api.StateClose) {
		t.Fatalf("expected CLOSE after EOF with an empty send queue, state=%b", s.State())
	}
	if !closed {
		t.Fatalf("expected on_close to have fired")
	}
}

func TestAppendSendAfterCloseIsDropped(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	s := New(local, false, 64, 4096)
	defer s.Teardown()

	s.Close()
	s.AppendSend([]byte("late"))
	if !s.send.Empty() {
		t.Fatalf("expected write-after-close to be silently dropped")
	}
}

func TestDatagramAppendSendSplitsAtPacketMax(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)
	defer unix.Close(local)

	s := New(local, true, 64, 4096)
	s.AppendSend(make([]byte, UDPPacketMax+1))
	if s.send.Len() != 2 {
		t.Fatalf("expected payload split into 2 MTU-sized segments, got %d", s.send.Len())
	}
}

func TestPreCloseWaitsForSendQueueDrain(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	closed := false
	s := New(local, false, 64, 4096)
	s.OnClose = func(*Socket) { closed = true }
	defer s.Teardown()

	s.AppendSend([]byte("flush me"))
	s.SetPreClose()

	s.ApplyReadiness(false, true, false, false, false)
	s.Drive(make([]byte, 256))

	if !closed || !s.State().Has(api.StateClose) {
		t.Fatalf("expected close after the queue drained, closed=%v state=%b", closed, s.State())
	}

	buf := make([]byte, 16)
	n, _ := unix.Read(peer, buf)
	if !bytes.Equal(buf[:n], []byte("flush me")) {
		t.Fatalf("expected pending output flushed before close, got %q", buf[:n])
	}
}
