// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package runtime

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/packet"
	"github.com/drnp/bsp/control"
	"github.com/drnp/bsp/internal/bsperr"
	"github.com/drnp/bsp/internal/fdregistry"
	"github.com/drnp/bsp/internal/ioreactor"
	"github.com/drnp/bsp/internal/socketio"
	"github.com/drnp/bsp/online"
	"github.com/drnp/bsp/worker"
)

// Runtime is the top-level assembly: fd registry + worker pool + packet
// codec + online registry + signal housekeeping + PID file.
type Runtime struct {
	InstanceID int
	Log        *logrus.Logger

	Registry *fdregistry.Registry
	Pool     *worker.Pool
	Online   *online.Registry
	Codec    *packet.Codec
	Metrics  *control.Metrics
	Probes   *control.DebugProbes

	mu      sync.RWMutex
	servers map[int]*Server

	onStop []func()

	pidPath string
}

// New assembles a Runtime: sizes the fd registry to RLIMIT_NOFILE, and
// builds a worker pool bound to it.
func New(instanceID, workerCount int, log *logrus.Logger, codec *packet.Codec) (*Runtime, error) {
	var rlim unix.Rlimit
	cap := 65536
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err == nil && rlim.Cur > 0 {
		cap = int(rlim.Cur)
	}

	rt := &Runtime{
		InstanceID: instanceID,
		Log:        log,
		Registry:   fdregistry.New(cap),
		Online:     online.New(),
		Codec:      codec,
		servers:    make(map[int]*Server),
	}

	pool, err := worker.NewPool(workerCount, rt.Registry, rt)
	if err != nil {
		return nil, bsperr.Fatal("runtime.New: worker pool", err)
	}
	rt.Pool = pool
	return rt, nil
}

// AddServer registers a listening Server with the runtime and dispatches
// its listen fd to the acceptor worker.
func (rt *Runtime) AddServer(srv *Server) error {
	srv.Online = rt.Online
	srv.Metrics = rt.Metrics
	if srv.Probes == nil {
		srv.Probes = rt.Probes
	}
	if srv.Codec == nil {
		srv.Codec = rt.Codec
	}
	rt.mu.Lock()
	rt.servers[srv.ListenFD] = srv
	rt.mu.Unlock()

	acceptor := rt.Pool.Acceptor()
	if err := rt.Registry.Register(srv.ListenFD, api.KindServer, srv); err != nil {
		return err
	}
	rt.refreshFDMetric()
	return acceptor.Bind(srv.ListenFD, api.KindServer, false)
}

// refreshFDMetric snapshots the fd registry's live count into the
// FDsRegistered gauge, a no-op when
// no Metrics was configured.
func (rt *Runtime) refreshFDMetric() {
	if rt.Metrics == nil {
		return
	}
	rt.Metrics.FDsRegistered.Set(float64(rt.Registry.Count()))
}

// OnServerReady implements worker.Handler: accept in a loop until EAGAIN,
// building a Client per connection and dispatching it to the least-loaded
// I/O worker.
func (rt *Runtime) OnServerReady(fd int) {
	rt.mu.RLock()
	srv, ok := rt.servers[fd]
	rt.mu.RUnlock()
	if !ok {
		return
	}

	if srv.Sock == api.SockDgram {
		rt.onDatagramReady(fd, srv)
		return
	}

	for {
		connFD, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			if rt.Log != nil {
				rt.Log.WithError(err).Warn("accept failed")
			}
			return
		}

		c := NewClient(connFD, false, srv)

		w, derr := rt.Pool.Dispatch(connFD, api.KindClient, c, -1, false)
		if derr != nil {
			_ = unix.Close(connFD)
			continue
		}
		c.Socket.WantWrite = func(writable bool) { _ = w.Modify(connFD, writable) }
		c.Socket.Wake = w.Wake

		srv.AdmitClient(c)
		rt.refreshFDMetric()
	}
}

// onDatagramReady drains a SOCK_DGRAM listen fd with recvfrom in a loop
// until EAGAIN, dispatching each datagram to the logical peer (by remote
// address) it belongs to instead of accepting a new fd per connection.
func (rt *Runtime) onDatagramReady(fd int, srv *Server) {
	w := rt.workerFor(fd)
	var scratch []byte
	if w != nil {
		scratch = w.ScratchBuffer()
	}
	if len(scratch) == 0 {
		scratch = make([]byte, 65536)
	}

	for {
		n, from, err := unix.Recvfrom(fd, scratch, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			if rt.Log != nil {
				rt.Log.WithError(err).Warn("recvfrom failed")
			}
			return
		}
		if from == nil {
			continue
		}
		peer := srv.PeerFor(fd, from)
		if peer == nil {
			continue // over max_clients: drop, mirroring the stream path's immediate-close rule
		}
		data := make([]byte, n)
		copy(data, scratch[:n])
		peer.onDatagram(data)
	}
}

// OnSocketReady implements worker.Handler: map epoll bits onto the
// socket's state and drive it once.
func (rt *Runtime) OnSocketReady(fd int, ev ioreactor.Event) {
	var kind api.Kind
	handle, err := rt.Registry.Lookup(fd, api.KindUnknown, &kind)
	if err != nil {
		return
	}

	switch v := handle.(type) {
	case *Client:
		v.ApplyReadiness(ev.In, ev.Out, ev.Hup, ev.RDHup, ev.Err)
		w := rt.workerFor(fd)
		var scratch []byte
		if w != nil {
			scratch = w.ScratchBuffer()
		}
		v.Drive(scratch)
		if v.State().Has(api.StateClose) {
			rt.teardownClient(fd, v)
		}
	case *Connector:
		if v.State().Has(api.StateConnecting) && (ev.Out || ev.Err) {
			rt.finishConnect(v)
		}
		v.ApplyReadiness(ev.In, ev.Out, ev.Hup, ev.RDHup, ev.Err)
		w := rt.workerFor(fd)
		var scratch []byte
		if w != nil {
			scratch = w.ScratchBuffer()
		}
		v.Drive(scratch)
		if v.State().Has(api.StateClose) {
			rt.teardownSocket(fd, v.Socket)
		}
	}
}

func (rt *Runtime) workerFor(fd int) *worker.Worker {
	wid := rt.Registry.GetWorker(fd)
	if wid < 0 {
		return nil
	}
	return rt.Pool.Worker(wid)
}

func (rt *Runtime) teardownClient(fd int, c *Client) {
	if srv := rt.findServerOf(c); srv != nil {
		srv.RemoveClient(fd)
	}
	rt.teardownSocket(fd, c.Socket)
}

func (rt *Runtime) findServerOf(c *Client) *Server {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, s := range rt.servers {
		if s.Name == c.ServerName {
			return s
		}
	}
	return nil
}

func (rt *Runtime) teardownSocket(fd int, s *socketio.Socket) {
	if w := rt.workerFor(fd); w != nil {
		_ = w.Unbind(fd)
	}
	rt.Registry.Unregister(fd)
	rt.refreshFDMetric()
	_ = s.Teardown()
}

// Start launches the worker pool's I/O workers and runs the acceptor loop
// on the calling goroutine, blocking until Stop is
// called from a signal handler or another goroutine.
func (rt *Runtime) Start() {
	rt.Pool.Start()
	rt.Pool.Acceptor().Run()
}

// Stop requests every worker to exit, waits for them, and releases all
// epoll/eventfd resources.
func (rt *Runtime) Stop() {
	rt.Pool.Stop()
	rt.Pool.Close()
	for _, fn := range rt.onStop {
		fn()
	}
	if rt.pidPath != "" {
		_ = os.Remove(rt.pidPath)
	}
}

// OnStop registers a hook run once during Stop.
func (rt *Runtime) OnStop(fn func()) { rt.onStop = append(rt.onStop, fn) }

// WritePIDFile writes the ASCII decimal PID to <runtimeDir>/bsp.<id>.pid.
func (rt *Runtime) WritePIDFile(runtimeDir string) error {
	path := fmt.Sprintf("%s/bsp.%d.pid", runtimeDir, rt.InstanceID)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return bsperr.Fatal("runtime.WritePIDFile", err)
	}
	rt.pidPath = path
	return nil
}

// InstallSignalHandlers wires SIGINT/SIGTERM/SIGQUIT to graceful exit,
// SIGTSTP/SIGUSR1/SIGUSR2 to user hooks, and ignores SIGPIPE.
func (rt *Runtime) InstallSignalHandlers(onUser1, onUser2, onTstp func()) {
	signal.Ignore(syscall.SIGPIPE)

	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-exitCh
		rt.Stop()
	}()

	userCh := make(chan os.Signal, 1)
	signal.Notify(userCh, syscall.SIGTSTP, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range userCh {
			switch sig {
			case syscall.SIGTSTP:
				if onTstp != nil {
					onTstp()
				}
			case syscall.SIGUSR1:
				if onUser1 != nil {
					onUser1()
				}
			case syscall.SIGUSR2:
				if onUser2 != nil {
					onUser2()
				}
			}
		}
	}()
}
