// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/packet"
	"github.com/drnp/bsp/control"
	"github.com/drnp/bsp/online"
	"github.com/drnp/bsp/script"
)

// Server is a listening socket plus its accept policy.
type Server struct {
	Name string
	Sock api.SockKind
	Inet api.AddressFamily

	ListenFD int

	DefaultClientType api.ClientType
	DefaultDataType   api.DataType

	MaxClients      int
	MaxPacketLength int
	HeartbeatCheck  int
	WebSocket       bool

	Codec       *packet.Codec
	EventTable  script.EventTable
	Interpreter script.Interpreter
	Online      *online.Registry
	Metrics     *control.Metrics
	Probes      *control.DebugProbes

	mu       sync.RWMutex
	clients  map[int]*Client
	nclients int64
	peers    map[string]*DatagramPeer
}

// NewServer constructs a Server bound to an already-created+bound+
// listening fd (socket/bind/listen are a thin syscall wrapper left to the
// runtime's bootstrap sequence, not repeated here).
func NewServer(name string, listenFD int) *Server {
	return &Server{
		Name:     name,
		ListenFD: listenFD,
		clients:  make(map[int]*Client),
	}
}

// NClients returns the current live client count.
func (s *Server) NClients() int { return int(atomic.LoadInt64(&s.nclients)) }

// AdmitClient registers an accepted Client. Accept is still performed
// past max_clients but the new client is immediately closed rather than
// rejected at the listen backlog.
func (s *Server) AdmitClient(c *Client) {
	s.mu.Lock()
	s.clients[c.FD] = c
	s.mu.Unlock()
	atomic.AddInt64(&s.nclients, 1)

	if s.MaxClients > 0 && s.NClients() > s.MaxClients {
		c.Close()
		return
	}
	if s.Interpreter != nil {
		if ref, err := s.Interpreter.NewCoroutine(); err == nil {
			c.BindCoroutine(ref)
		}
	}
	if s.EventTable != nil && s.Interpreter != nil {
		if entry, ok := s.EventTable.Entry(script.EventConnect); ok {
			status, _ := s.Interpreter.Call(c.Coroutine, entry, nil)
			if status == script.CallFailed && s.Metrics != nil {
				s.Metrics.ScriptFailures.Inc()
			}
		}
	}
	s.refreshOnlineMetric()
}

// refreshOnlineMetric snapshots the online registry's live entry count into
// the ClientsOnline gauge, a no-op
// when no Metrics was configured.
func (s *Server) refreshOnlineMetric() {
	if s.Metrics == nil || s.Online == nil {
		return
	}
	s.Metrics.ClientsOnline.Set(float64(s.Online.Count()))
}

// RemoveClient unregisters fd after its Socket has torn down, releasing
// its online-registry entry and decrementing nclients; the Client's
// OnlineEntry back-pointer is cleared in the same call.
func (s *Server) RemoveClient(fd int) {
	s.mu.Lock()
	c, ok := s.clients[fd]
	if ok {
		delete(s.clients, fd)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	atomic.AddInt64(&s.nclients, -1)
	if s.Online != nil {
		s.Online.RemoveByFD(fd)
	}
	c.OnlineEntry = nil
	s.refreshOnlineMetric()
}

// Client looks up a live client by fd.
func (s *Server) Client(fd int) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[fd]
	return c, ok
}
