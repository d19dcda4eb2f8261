// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package wsshim implements a thin WebSocket shim: an HTTP/1.1 upgrade
// handshake and a single-frame-only (FIN=1, RSV=0) frame codec, so upper
// layers see the same byte stream a raw TCP client would produce.
package wsshim

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"net/textproto"
	"strings"

	"github.com/drnp/bsp/api"
)

const (
	acceptGUID      = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	maxUpgradeBytes = 8192
	wsVersion       = "13"
	switchingStatus = "HTTP/1.1 101 Switching Protocols\r\n"
)

// Upgrade consumes one complete, CRLF-CRLF-terminated HTTP/1.1 request
// head (the caller's read-buffer pre-filter has already located the
// terminator) and returns the 101 Switching Protocols response to queue
// back verbatim. The request must be a GET carrying the RFC 6455 upgrade
// headers; anything else fails with api.ErrBadHandshake.
func Upgrade(head []byte) ([]byte, error) {
	if len(head) > maxUpgradeBytes {
		return nil, api.ErrBadHandshake
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(head)))
	reqLine, err := tp.ReadLine()
	if err != nil {
		return nil, api.ErrBadHandshake
	}
	method, rest, ok := strings.Cut(reqLine, " ")
	if !ok || method != "GET" {
		return nil, api.ErrBadHandshake
	}
	if _, proto, ok := strings.Cut(rest, " "); !ok || proto != "HTTP/1.1" {
		return nil, api.ErrBadHandshake
	}

	mh, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, api.ErrBadHandshake
	}
	if !hasToken(mh["Connection"], "upgrade") || !hasToken(mh["Upgrade"], "websocket") {
		return nil, api.ErrBadHandshake
	}
	if mh.Get("Sec-Websocket-Version") != wsVersion {
		return nil, api.ErrBadHandshake
	}
	key := mh.Get("Sec-Websocket-Key")
	if key == "" {
		return nil, api.ErrBadHandshake
	}

	var resp strings.Builder
	resp.WriteString(switchingStatus)
	resp.WriteString("Upgrade: websocket\r\n")
	resp.WriteString("Connection: Upgrade\r\n")
	resp.WriteString("Sec-WebSocket-Accept: ")
	resp.WriteString(acceptKey(key))
	resp.WriteString("\r\n")
	if proto := firstToken(mh.Get("Sec-Websocket-Protocol")); proto != "" {
		resp.WriteString("Sec-WebSocket-Protocol: ")
		resp.WriteString(proto)
		resp.WriteString("\r\n")
	}
	resp.WriteString("\r\n")
	return []byte(resp.String()), nil
}

// acceptKey derives the Sec-WebSocket-Accept value for a client key; the
// GUID suffix and SHA1+base64 derivation are fixed by RFC 6455.
func acceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// hasToken reports whether any of the comma-separated header values
// contains the token, case-insensitively.
func hasToken(values []string, want string) bool {
	for _, v := range values {
		for v != "" {
			var tok string
			tok, v, _ = strings.Cut(v, ",")
			if strings.EqualFold(strings.TrimSpace(tok), want) {
				return true
			}
		}
	}
	return false
}

// firstToken returns the first comma-separated token of v, trimmed.
func firstToken(v string) string {
	tok, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(tok)
}
