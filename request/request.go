/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package request implements the Request Normaliser (C5): it turns a raw
// HTTP/1 or HTTP/2 exchange plus its Connection metadata into a single
// OngoingRequest shape the rule matcher and step executor can work with
// regardless of which protocol or transport the client actually used.
package request

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/httptoolkit/mockttp-sub002/connection"
)

// Role distinguishes a plain request from a WebSocket upgrade attempt.
type Role string

const (
	RoleHTTP      Role = "http"
	RoleWebSocket Role = "websocket"
)

// OngoingRequest is the normalised view of a single request handed to the
// rule matcher and step executor.
type OngoingRequest struct {
	ID          string
	Method      string
	Destination Destination
	Path        string
	RawPath     string
	Headers     Headers
	Body        *Body
	Role        Role
	HTTPVersion string
	Received    time.Time
	Conn        *connection.Connection
	// SocketMetadata is request-scoped metadata decoded from a
	// Proxy-Authorization header, merged on top of (never persisted into)
	// the connection's own socket-metadata.
	SocketMetadata map[string]interface{}
}

// Input collects everything Normalise needs from a single HTTP/1 or HTTP/2
// exchange, already separated from wire-format concerns by the caller
// (the combo listener's H1/H2 handlers).
type Input struct {
	Method         string
	RequestURI     string // absolute-form target, if the request line carried one
	RawHeaders     []RawHeader
	Body           io.Reader
	MaxBodyBytes   int64
	HTTPVersion    string
	IsWebSocketReq bool
	Conn           *connection.Connection
}

// Normalise turns a raw captured request into an OngoingRequest end to end:
// destination resolution, proxy-header stripping with request-scoped
// metadata, and header cooking. When in.Body is non-nil it is captured here,
// bounded by MaxBodyBytes; with a nil in.Body the caller may capture later
// via OngoingRequest.Body.Capture.
func Normalise(in Input) (*OngoingRequest, error) {
	headers := NewHeaders(in.RawHeaders)

	var abs *url.URL
	if in.RequestURI != "" {
		u, err := url.Parse(in.RequestURI)
		if err == nil && u.IsAbs() {
			abs = u
		}
	}

	role := RoleHTTP
	if in.IsWebSocketReq {
		role = RoleWebSocket
	}

	var socketMeta map[string]interface{}
	if abs != nil {
		if auth := StripProxyHeaders(&headers); auth != "" {
			socketMeta = decodeProxyAuthJSON(auth)
		}
	}

	dest := Resolve(ResolveInput{
		AbsoluteURL:        abs,
		TunnelAddress:      in.Conn.TunnelAddress(),
		Authority:          PseudoHeader(in.RawHeaders, ":authority"),
		Host:               headers.Cooked.Get("Host"),
		SNI:                sniOf(in.Conn),
		LastHopEncrypted:   in.Conn.LastHopEncrypted(),
		SchemePseudoHeader: PseudoHeader(in.RawHeaders, ":scheme"),
		IsWebSocket:        in.IsWebSocketReq,
	})

	path := PseudoHeader(in.RawHeaders, ":path")
	if path == "" && abs != nil {
		path = abs.RequestURI()
	}
	if path == "" {
		path = in.RequestURI
	}

	req := &OngoingRequest{
		Method:         in.Method,
		Destination:    dest,
		Path:           path,
		RawPath:        in.RequestURI,
		Headers:        headers,
		Body:           NewBody(in.MaxBodyBytes),
		Role:           role,
		HTTPVersion:    in.HTTPVersion,
		Conn:           in.Conn,
		SocketMetadata: socketMeta,
	}

	if in.Body != nil {
		if err := req.Body.Capture(in.Body); err != nil {
			return nil, err
		}
	}

	in.Conn.MarkRequest()
	return req, nil
}

// decodeProxyAuthJSON mirrors the listener's own CONNECT-time metadata
// decoding for plain-HTTP proxy requests carrying Proxy-Authorization:
// "Basic base64(user:pass)" where pass is optionally base64url-encoded JSON.
func decodeProxyAuthJSON(auth string) map[string]interface{} {
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, prefix))
	if err != nil {
		return nil
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return nil
	}

	payload := []byte(parts[1])
	if b, err := base64.RawURLEncoding.DecodeString(parts[1]); err == nil {
		payload = b
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(payload, &meta); err == nil {
		return meta
	}
	return map[string]interface{}{"proxy-auth-username": parts[0], "proxy-auth-password": parts[1]}
}

func sniOf(c *connection.Connection) string {
	if m := c.TLSMetadata(); m != nil {
		return m.SNI
	}
	return ""
}
