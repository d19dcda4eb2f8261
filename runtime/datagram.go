// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// File: runtime/datagram.go
//
// The datagram server loop: a SOCK_DGRAM listen fd never becomes
// "acceptable" the way a stream socket does, so readiness is drained with
// a recvfrom loop that fabricates one logical client (a DatagramPeer) per
// remote address instead of per accepted fd, reusing the same packet
// codec and scripting dispatch a stream Client uses. The per-fd
// socketio.Socket state machine does not apply because many peers share
// one fd, so output goes straight through sendto.
package runtime

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/packet"
	"github.com/drnp/bsp/control"
	"github.com/drnp/bsp/internal/socketio"
	"github.com/drnp/bsp/script"
)

const udpPacketMax = socketio.UDPPacketMax

// DatagramPeer is one remote endpoint multiplexed over a shared
// SOCK_DGRAM listen fd.
type DatagramPeer struct {
	ListenFD int
	Addr     unix.Sockaddr
	AddrKey  string

	DataType api.DataType

	hdr          packet.Header
	maxPacketLen int

	lastHB time.Time

	Coroutine    script.CoroutineRef
	hasCoroutine bool

	codec   *packet.Codec
	events  script.EventTable
	interp  script.Interpreter
	metrics *control.Metrics

	lastErr error
}

// Header implements packet.State.
func (p *DatagramPeer) Header() packet.Header { return p.hdr }

// SetHeader implements packet.State.
func (p *DatagramPeer) SetHeader(h packet.Header) { p.hdr = h }

// MaxPacketLength implements packet.State.
func (p *DatagramPeer) MaxPacketLength() int { return p.maxPacketLen }

// AppendSend implements packet.State. Unlike the stream Client, there is
// no per-peer send queue to back up behind: the listen fd is shared by
// every peer, so output goes straight to the kernel via one sendto per
// call, splitting oversized payloads into MTU-sized packets without an
// intermediate queue, so no single peer can starve another's writes.
func (p *DatagramPeer) AppendSend(b []byte) {
	for off := 0; off < len(b); off += udpPacketMax {
		end := off + udpPacketMax
		if end > len(b) {
			end = len(b)
		}
		_ = unix.Sendto(p.ListenFD, b[off:end], 0, p.Addr)
	}
}

// TouchHeartbeat implements packet.State.
func (p *DatagramPeer) TouchHeartbeat() { p.lastHB = time.Now() }

// LastHeartbeat returns the last time a REP/HEARTBEAT frame refreshed
// this peer's liveness timestamp.
func (p *DatagramPeer) LastHeartbeat() time.Time { return p.lastHB }

// ProtocolError implements packet.State. A datagram peer has no
// connection to tear down; the malformed packet is simply
// dropped and the cause recorded for diagnostics.
func (p *DatagramPeer) ProtocolError(err error) {
	p.lastErr = err
	if p.metrics != nil {
		p.metrics.PacketsDropped.Inc()
	}
}

// LastError returns the most recent ProtocolError cause, if any.
func (p *DatagramPeer) LastError() error { return p.lastErr }

// Dispatch implements packet.State: resolves event -> entry via the
// Server's callback table and calls into the scripting coroutine,
// identical in shape to Client.Dispatch.
func (p *DatagramPeer) Dispatch(ev api.EventType, cmdID int32, raw []byte, obj any) {
	if p.interp == nil || p.events == nil || !p.hasCoroutine {
		return
	}
	entry, ok := p.events.Entry(script.EventData)
	if !ok {
		return
	}
	var params []api.Value
	switch ev {
	case api.DataRaw:
		params = []api.Value{api.NewBytesValue(raw)}
	case api.DataObj:
		params = []api.Value{api.NewObjectValue(obj, false)}
	case api.DataCmd:
		params = []api.Value{api.NewInt32Value(cmdID), api.NewObjectValue(obj, false)}
	}
	status, _ := p.interp.Call(p.Coroutine, entry, params)
	if status == script.CallFailed && p.metrics != nil {
		p.metrics.ScriptFailures.Inc()
	}
}

// onDatagram feeds one recvfrom'd packet through the framing codec (or
// straight to on_data for STREAM-mode servers), looping in case a peer
// concatenated more than one frame into a single UDP payload.
func (p *DatagramPeer) onDatagram(data []byte) {
	if p.DataType == api.DataTypeStream {
		p.Dispatch(api.DataRaw, 0, data, nil)
		return
	}
	for len(data) > 0 {
		consumed := p.codec.Decode(p, data)
		if consumed <= 0 {
			break
		}
		data = data[consumed:]
	}
}

// PeerFor returns the DatagramPeer for a remote address, creating and
// admitting one on first sight. Returns nil if the
// server is already at max_clients, mirroring the stream path's
// immediate-close-over-capacity rule by simply never admitting the peer.
func (s *Server) PeerFor(listenFD int, addr unix.Sockaddr) *DatagramPeer {
	key := sockaddrKey(addr)

	s.mu.RLock()
	p, ok := s.peers[key]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[key]; ok {
		return p
	}
	if s.MaxClients > 0 && len(s.peers) >= s.MaxClients {
		return nil
	}
	if s.peers == nil {
		s.peers = make(map[string]*DatagramPeer)
	}
	p = &DatagramPeer{
		ListenFD:     listenFD,
		Addr:         addr,
		AddrKey:      key,
		DataType:     s.DefaultDataType,
		maxPacketLen: s.MaxPacketLength,
		codec:        s.Codec,
		events:       s.EventTable,
		interp:       s.Interpreter,
		metrics:      s.Metrics,
	}
	s.peers[key] = p
	if s.Interpreter != nil {
		if ref, err := s.Interpreter.NewCoroutine(); err == nil {
			p.Coroutine = ref
			p.hasCoroutine = true
		}
	}
	if s.EventTable != nil && s.Interpreter != nil {
		if entry, ok := s.EventTable.Entry(script.EventConnect); ok {
			status, _ := s.Interpreter.Call(p.Coroutine, entry, nil)
			if status == script.CallFailed && s.Metrics != nil {
				s.Metrics.ScriptFailures.Inc()
			}
		}
	}
	s.refreshOnlineMetric()
	return p
}

// sockaddrKey renders a unix.Sockaddr into a stable map key; the three
// families Listen (runtime/listen.go) can build are the only ones
// expected here.
func sockaddrKey(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("4:%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("6:%x:%d", a.Addr, a.Port)
	case *unix.SockaddrUnix:
		return "u:" + a.Name
	default:
		return fmt.Sprintf("%v", sa)
	}
}
