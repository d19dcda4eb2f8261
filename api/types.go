// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package api holds the type vocabulary shared by every subsystem of the
// bsp core runtime: fd kinds, socket state flags, the scripting-layer
// value union, and the Serializer/Compressor leaf-codec contracts.
package api

import "errors"

// Kind identifies what a registered file descriptor represents in the
// fd registry.
type Kind int

const (
	KindUnknown Kind = iota
	KindGeneral
	KindPipe
	KindEpoll
	KindEvent
	KindSignal
	KindTimer
	KindLog
	KindServer
	KindConnector
	KindClient
	KindDBMySQL
	KindDBSQLite
	KindDBMongo
	KindSHM
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindGeneral:
		return "GENERAL"
	case KindPipe:
		return "PIPE"
	case KindEpoll:
		return "EPOLL"
	case KindEvent:
		return "EVENT"
	case KindSignal:
		return "SIGNAL"
	case KindTimer:
		return "TIMER"
	case KindLog:
		return "LOG"
	case KindServer:
		return "SERVER"
	case KindConnector:
		return "CONNECTOR"
	case KindClient:
		return "CLIENT"
	case KindDBMySQL:
		return "DB_MYSQL"
	case KindDBSQLite:
		return "DB_SQLITE"
	case KindDBMongo:
		return "DB_MONGO"
	case KindSHM:
		return "SHM"
	case KindExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// SocketState is a bitset of per-socket lifecycle flags; transitions are
// monotonic toward Close.
type SocketState uint32

const (
	StateListening SocketState = 1 << iota
	StateConnecting
	StateReadReady
	StateWriteReady
	StatePreClose
	StateClose
	StateError
)

func (s SocketState) Has(f SocketState) bool { return s&f != 0 }
func (s *SocketState) Set(f SocketState)      { *s |= f }
func (s *SocketState) Clear(f SocketState)    { *s &^= f }

// AddressFamily mirrors the "inet" server setting.
type AddressFamily int

const (
	AFInet4 AddressFamily = iota
	AFInet6
	AFLocal
)

// SockKind mirrors the "sock" server setting.
type SockKind int

const (
	SockStream SockKind = iota
	SockDgram
)

// ClientType tracks whether a Client is a raw/packet endpoint or mid/post
// WebSocket upgrade.
type ClientType int

const (
	ClientTypeData ClientType = iota
	ClientTypeWebSocketHandshake
	ClientTypeWebSocketData
)

// DataType selects whether a Client's read buffer is framed or
// delivered verbatim.
type DataType int

const (
	DataTypeStream DataType = iota
	DataTypePacket
)

// EventType is the dispatch kind handed to on_events.
type EventType int

const (
	DataRaw EventType = iota
	DataObj
	DataCmd
)

var (
	ErrRegistryFull     = errors.New("bsp: fd registry exhausted (RLIMIT_NOFILE)")
	ErrNotFound         = errors.New("bsp: fd not registered")
	ErrKindMismatch     = errors.New("bsp: fd registered under a different kind")
	ErrMaxClients       = errors.New("bsp: server at max concurrent clients")
	ErrPacketTooLarge   = errors.New("bsp: packet length exceeds max_packet_length")
	ErrUnknownFrameType = errors.New("bsp: unknown packet header type")
	ErrClosed           = errors.New("bsp: socket closed")
	ErrSerializerUnset  = errors.New("bsp: no serializer registered for requested ser id")
	ErrAMFUnsupported   = errors.New("bsp: AMF serialization is not implemented in this build")
	ErrBadHandshake     = errors.New("bsp: invalid websocket handshake")
	ErrWSFragmented     = errors.New("bsp: fragmented / extended websocket frames are not supported")
	ErrWSOpcode         = errors.New("bsp: unsupported websocket opcode")
)
