// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package runtime assembles the fd registry, worker pool, socket engine,
// packet/WebSocket codecs, online registry, and scripting dispatch into
// the Server/Client/Connector/Runtime types: a Server owns a listening
// socket plus its accept policy, and every accepted or dialed fd hangs
// off the runtime with its own framing state and coroutine.
package runtime

import (
	"bytes"
	"sync"
	"time"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/packet"
	"github.com/drnp/bsp/control"
	"github.com/drnp/bsp/internal/socketio"
	"github.com/drnp/bsp/online"
	"github.com/drnp/bsp/script"
	"github.com/drnp/bsp/wsshim"
)

// Client is a connected socket attached to a Server.
type Client struct {
	*socketio.Socket

	ServerName string

	ClientType api.ClientType
	DataType   api.DataType

	hdr          packet.Header
	MaxPacketLen int

	LastHeartbeat time.Time

	OnlineEntry *online.Entry
	Coroutine   script.CoroutineRef
	hasCoroutine bool

	codec   *packet.Codec
	events  script.EventTable
	interp  script.Interpreter
	metrics *control.Metrics
	probes  *control.DebugProbes

	errMu   sync.Mutex
	lastErr error
}

// NewClient wraps an accepted fd in a Client ready for packet framing.
func NewClient(fd int, datagram bool, srv *Server) *Client {
	c := &Client{
		Socket:       socketio.New(fd, datagram, 4096, srv.MaxPacketLength*2+8192),
		ServerName:   srv.Name,
		ClientType:   srv.DefaultClientType,
		DataType:     srv.DefaultDataType,
		MaxPacketLen: srv.MaxPacketLength,
		codec:        srv.Codec,
		events:       srv.EventTable,
		interp:       srv.Interpreter,
		metrics:      srv.Metrics,
		probes:       srv.Probes,
	}
	c.Socket.OnData = c.onData
	c.Socket.OnClose = func(*socketio.Socket) { c.onClose() }
	c.Socket.OnIOError = func(*socketio.Socket, error) {
		if c.metrics != nil {
			c.metrics.IOErrors.Inc()
		}
	}
	return c
}

// Header implements packet.State.
func (c *Client) Header() packet.Header { return c.hdr }

// SetHeader implements packet.State.
func (c *Client) SetHeader(h packet.Header) { c.hdr = h }

// MaxPacketLength implements packet.State.
func (c *Client) MaxPacketLength() int { return c.MaxPacketLen }

// AppendSend implements packet.State. When the client has completed a
// WebSocket upgrade, outbound bytes are wrapped in one unmasked BINARY
// frame before queuing.
func (c *Client) AppendSend(b []byte) {
	if c.probes != nil {
		c.probes.TraceOutput(c.ServerName, b)
	}
	if c.ClientType == api.ClientTypeWebSocketData {
		c.Socket.AppendSend(wsshim.EncodeBinary(b))
		return
	}
	c.Socket.AppendSend(b)
}

// TouchHeartbeat implements packet.State.
func (c *Client) TouchHeartbeat() { c.LastHeartbeat = time.Now() }

// ProtocolError implements packet.State: a malformed/oversized/unknown
// frame closes the connection after logging
// through the script layer's on_close path rather than an exception.
func (c *Client) ProtocolError(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
	if c.metrics != nil {
		c.metrics.PacketsDropped.Inc()
	}
	c.Socket.SetPreClose()
}

// LastError returns the most recent ProtocolError cause, if any.
func (c *Client) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Dispatch implements packet.State: resolves event -> entry via the
// Server's callback table and calls into the scripting coroutine.
func (c *Client) Dispatch(ev api.EventType, cmdID int32, raw []byte, obj any) {
	if c.interp == nil || c.events == nil || !c.hasCoroutine {
		return
	}
	var eventName string
	switch ev {
	case api.DataRaw, api.DataObj:
		eventName = script.EventData
	case api.DataCmd:
		eventName = script.EventData
	}
	entry, ok := c.events.Entry(eventName)
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
	status, _ := c.interp.Call(c.Coroutine, entry, params)
	if status == script.CallFailed && c.metrics != nil {
		c.metrics.ScriptFailures.Inc()
	}
}

// onData routes the read buffer's unread bytes according to ClientType
// and DataType.
func (c *Client) onData(_ *socketio.Socket, data []byte) int {
	if c.probes != nil {
		c.probes.TraceInput(c.ServerName, data)
	}
	switch c.ClientType {
	case api.ClientTypeWebSocketHandshake:
		return c.handleHandshake(data)
	case api.ClientTypeWebSocketData:
		return c.handleWSFrame(data)
	default:
		return c.handleFramed(data)
	}
}

// handleFramed routes a non-WebSocket client's bytes: STREAM delivers
// them verbatim, PACKET runs the framing codec.
func (c *Client) handleFramed(data []byte) int {
	if c.DataType == api.DataTypeStream {
		entry, ok := c.eventEntry(script.EventData)
		if !ok || c.interp == nil || !c.hasCoroutine {
			return len(data)
		}
		status, _ := c.interp.Call(c.Coroutine, entry, []api.Value{api.NewBytesValue(data)})
		if status == script.CallFailed && c.metrics != nil {
			c.metrics.ScriptFailures.Inc()
		}
		return len(data)
	}
	return c.codec.Decode(c, data)
}

// handleHandshake parses and answers the HTTP/1.1 upgrade request.
func (c *Client) handleHandshake(data []byte) int {
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx < 0 {
		return 0
	}
	headerLen := idx + 4
	resp, err := wsshim.Upgrade(data[:headerLen])
	if err != nil {
		c.ProtocolError(err)
		return len(data)
	}
	c.Socket.AppendSend(resp)
	c.ClientType = api.ClientTypeWebSocketData
	return headerLen
}

// handleWSFrame decodes one RFC 6455 frame and dispatches by opcode.
func (c *Client) handleWSFrame(data []byte) int {
	f, n, err := wsshim.Decode(data)
	if err != nil {
		c.ProtocolError(err)
		return len(data)
	}
	if f == nil {
		return 0
	}
	switch f.Opcode {
	case wsshim.OpcodeText, wsshim.OpcodeBinary:
		if c.DataType == api.DataTypeStream {
			c.handleFramed(f.Payload)
		} else {
			rest := f.Payload
			for len(rest) > 0 {
				consumed := c.codec.Decode(c, rest)
				if consumed <= 0 {
					break
				}
				rest = rest[consumed:]
			}
		}
	case wsshim.OpcodePing:
		c.Socket.AppendSend(wsshim.EncodePong(f.Payload))
		c.TouchHeartbeat()
	case wsshim.OpcodePong:
		// ignored
	case wsshim.OpcodeClose:
		c.Socket.AppendSend(wsshim.EncodeClose(f.Payload))
		c.Socket.SetPreClose()
	}
	return n
}

func (c *Client) eventEntry(event string) (string, bool) {
	if c.events == nil {
		return "", false
	}
	return c.events.Entry(event)
}

// BindCoroutine attaches the per-client scripting coroutine, called once right after accept.
func (c *Client) BindCoroutine(ref script.CoroutineRef) {
	c.Coroutine = ref
	c.hasCoroutine = true
}

func (c *Client) onClose() {
	if c.OnlineEntry != nil && c.Socket != nil {
		// Runtime.teardownClient (via Server.RemoveClient) removes from the
		// online registry; this hook only exists so future extensions have a
		// single place to hang per-client teardown logic.
	}
	if c.interp != nil && c.hasCoroutine {
		if entry, ok := c.eventEntry(script.EventClose); ok {
			status, _ := c.interp.Call(c.Coroutine, entry, nil)
			if status == script.CallFailed && c.metrics != nil {
				c.metrics.ScriptFailures.Inc()
			}
		}
		c.interp.ReleaseCoroutine(c.Coroutine)
		c.hasCoroutine = false
	}
}
