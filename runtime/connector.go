// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package runtime

import (
	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/packet"
	"github.com/drnp/bsp/control"
	"github.com/drnp/bsp/internal/socketio"
)

// Connector is a client-role socket initiated locally: same layout as
// Client minus server linkage, plus an on_close(cnt) callback.
type Connector struct {
	*socketio.Socket

	DataType api.DataType
	hdr      packet.Header

	MaxPacketLen int
	Probes       *control.DebugProbes
	codec        *packet.Codec

	OnConnectorClose func(*Connector)
	OnConnected      func(*Connector)

	dispatch func(ev api.EventType, cmdID int32, raw []byte, obj any)
}

// NewConnector wraps a locally-initiated (connect()ed) fd.
func NewConnector(fd int, datagram bool, maxPacketLen int, codec *packet.Codec, onDispatch func(api.EventType, int32, []byte, any)) *Connector {
	c := &Connector{
		Socket:       socketio.New(fd, datagram, 4096, maxPacketLen*2+8192),
		MaxPacketLen: maxPacketLen,
		codec:        codec,
		dispatch:     onDispatch,
	}
	c.Socket.OnData = c.onData
	c.Socket.OnClose = func(*socketio.Socket) {
		if c.OnConnectorClose != nil {
			c.OnConnectorClose(c)
		}
	}
	return c
}

func (c *Connector) Header() packet.Header       { return c.hdr }
func (c *Connector) SetHeader(h packet.Header)    { c.hdr = h }
func (c *Connector) MaxPacketLength() int         { return c.MaxPacketLen }
func (c *Connector) AppendSend(b []byte)          { c.Socket.AppendSend(b) }
func (c *Connector) TouchHeartbeat()              {}
func (c *Connector) ProtocolError(err error)      { c.Socket.SetPreClose() }

func (c *Connector) Dispatch(ev api.EventType, cmdID int32, raw []byte, obj any) {
	if c.dispatch != nil {
		c.dispatch(ev, cmdID, raw, obj)
	}
}

func (c *Connector) onData(_ *socketio.Socket, data []byte) int {
	if c.Probes != nil {
		c.Probes.TraceConnectorInput("connector", data)
	}
	if c.DataType == api.DataTypeStream {
		c.Dispatch(api.DataRaw, 0, data, nil)
		return len(data)
	}
	return c.codec.Decode(c, data)
}
