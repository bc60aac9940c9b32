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

// Package listener implements the combo listener (C4): it binds a single TCP
// port, peeks the first bytes of every accepted socket to dispatch between
// plain HTTP/1, HTTP/2, TLS, SOCKS and unknown protocols, and re-emits the
// post-CONNECT/post-SOCKS stream as a fresh connection through a
// channel-backed net.Listener so the HTTP server can treat a tunnelled
// stream exactly like a fresh accept.
package listener

import (
	"bufio"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/httptoolkit/mockttp-sub002/ca"
	"github.com/httptoolkit/mockttp-sub002/connection"
	liblog "github.com/httptoolkit/mockttp-sub002/log"
	"github.com/httptoolkit/mockttp-sub002/socks"
	"github.com/httptoolkit/mockttp-sub002/tlshello"
)

// Handlers wires the combo listener to the components downstream of C4,
// which is wired up by the top-level Server (C13) once they exist.
type Handlers struct {
	// ServeH1 and ServeH2 hand an intercepted, cleartext-equivalent
	// connection (TLS already peeled off, if any) to the HTTP stack.
	ServeH1 func(conn net.Conn, c *connection.Connection)
	ServeH2 func(conn net.Conn, c *connection.Connection)
	// Passthrough hands a raw, unread socket to the Passthrough Pump
	// (C9) for the given destination and transport mode.
	Passthrough func(conn net.Conn, c *connection.Connection, destination string, isTLS bool)
	// ClientError hands malformed leading bytes to the Client-Error
	// Collator (C11).
	ClientError func(conn net.Conn, c *connection.Connection, leading []byte)
}

// Options configures the combo listener.
type Options struct {
	Address                     string
	CA                          *ca.Authority
	ALPNPreference              string
	EnableSOCKS                 bool
	PassthroughUnknownProtocols bool
	TLSPassthroughHosts         []string
	TLSInterceptOnlyHosts       []string
	WatchdogFloor               time.Duration
	WatchdogCeiling             time.Duration
	Log                         liblog.FuncLog
}

// Listener is the combo listener: one bound TCP socket feeding both the
// outer accept loop and the tunnel re-emission loop.
type Listener struct {
	opt      Options
	ln       net.Listener
	tunnel   *tunnelListener
	closeMu  sync.Mutex
	closed   bool
	handlers Handlers
}

// New binds Options.Address and returns a ready Listener; call Serve to
// start accepting.
func New(opt Options, h Handlers) (*Listener, error) {
	ln, err := net.Listen("tcp", opt.Address)
	if err != nil {
		return nil, ErrorListen.Error(err)
	}
	return &Listener{
		opt:      opt,
		ln:       ln,
		tunnel:   newTunnelListener(ln.Addr()),
		handlers: h,
	}, nil
}

// Addr returns the bound outer socket address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting new sockets and unblocks any pending tunnel Accept.
func (l *Listener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.tunnel.shutdown()
	return l.ln.Close()
}

// Serve runs the accept loop until the listener is closed. It never
// returns nil; callers should treat net.ErrClosed as a clean shutdown.
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go l.handle(connection.New(conn), conn)
	}
}

func (l *Listener) log() liblog.Logger {
	if l.opt.Log != nil {
		return l.opt.Log()
	}
	return liblog.New()
}

// handle implements §6.1 steps 1-6 for a single freshly accepted socket
// (either a genuine outer accept, or a re-emitted post-tunnel stream).
func (l *Listener) handle(c *connection.Connection, raw net.Conn) {
	pc := newPeek(raw)

	b, err := pc.Peek(1)
	if err != nil || len(b) == 0 {
		l.handlers.ClientError(pc, c, nil)
		return
	}

	switch {
	case b[0] == 0x16:
		l.handleTLS(pc, c)
	case l.opt.EnableSOCKS && (b[0] == 0x04 || b[0] == 0x05):
		l.handleSocks(pc, c, b[0])
	case isHTTPLeadByte(b[0]):
		l.handleHTTPPlain(pc, c)
	default:
		if l.opt.PassthroughUnknownProtocols && c.TunnelAddress() != "" {
			l.handlers.Passthrough(pc, c, c.TunnelAddress(), false)
			return
		}
		lead, _ := pc.Peek(peekBudget(pc))
		l.handlers.ClientError(pc, c, lead)
	}
}

// handleHTTPPlain dispatches cleartext HTTP/1 (including CONNECT) and the
// HTTP/2 client preface.
func (l *Listener) handleHTTPPlain(pc *peekConn, c *connection.Connection) {
	head, err := pc.Peek(len(http2Preface))
	if err == nil && string(head) == http2Preface {
		l.handlers.ServeH2(pc, c)
		return
	}

	line, err := pc.peekLine()
	if err != nil {
		lead, _ := pc.Peek(peekBudget(pc))
		l.handlers.ClientError(pc, c, lead)
		return
	}

	if isConnectLine(line) {
		l.handleConnect(pc, c)
		return
	}

	l.handlers.ServeH1(pc, c)
}

// handleConnect implements §6.1 step 3: reply 200 OK, stamp the tunnel
// address, and re-emit the raw stream as a fresh connection on the
// tunnel-backed net.Listener so the combo dispatch runs again on the
// decrypted/plain bytes that follow.
func (l *Listener) handleConnect(pc *peekConn, c *connection.Connection) {
	target, auth, err := pc.parseConnectHeaders()
	if err != nil {
		lead, _ := pc.Peek(peekBudget(pc))
		l.handlers.ClientError(pc, c, lead)
		return
	}

	if _, err := pc.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	c.SetTunnelAddress(target)
	c.SetLastHopEncrypted(false)
	if auth != "" {
		applyProxyAuthMetadata(c, auth)
	}

	child := c.Retunnel(pc)
	l.tunnel.accept(pc, child)
	go l.drainTunnel()
}

// handleSocks implements §6.1 step 4 for SOCKS4/4a and SOCKS5 CONNECT.
func (l *Listener) handleSocks(pc *peekConn, c *connection.Connection, version byte) {
	var (
		target socks.Target
		err    error
	)

	switch version {
	case 0x04:
		target, err = socks.HandleV4(pc)
	case 0x05:
		target, err = socks.HandleV5(pc)
	}
	if err != nil {
		lead, _ := pc.Peek(peekBudget(pc))
		l.handlers.ClientError(pc, c, lead)
		return
	}

	c.SetTunnelAddress(target.Address())
	c.SetLastHopEncrypted(false)
	if len(target.Metadata) > 0 {
		c.Meta().Store("socket-metadata-raw", target.Metadata)
	}

	child := c.Retunnel(pc)
	l.tunnel.accept(pc, child)
	go l.drainTunnel()
}

// handleTLS implements §6.2: peek the ClientHello, decide passthrough vs
// intercept, and either hand the raw socket to the pump or replay the
// peeked bytes into a real TLS handshake using CA-minted certificates.
func (l *Listener) handleTLS(pc *peekConn, c *connection.Connection) {
	head, err := pc.Peek(5)
	if err != nil {
		l.handlers.ClientError(pc, c, head)
		return
	}

	full, err := pc.peekRecord(head)
	if err != nil {
		lead, _ := pc.Peek(peekBudget(pc))
		l.handlers.ClientError(pc, c, lead)
		return
	}

	hello, err := tlshello.ParseClientHello(full)
	if err != nil {
		l.handlers.ClientError(pc, c, full)
		return
	}

	destination := tlshello.Destination(c.TunnelAddress(), hello.SNI)
	route := tlshello.Decide(destination, l.opt.TLSPassthroughHosts, l.opt.TLSInterceptOnlyHosts)

	c.SetTLSMetadata(&connection.TLSMetadata{SNI: hello.SNI, ALPN: hello.ALPN, JA3: hello.JA3Hash, JA4: hello.JA4})

	if route == tlshello.RoutePassthrough {
		l.handlers.Passthrough(pc, c, destination, true)
		return
	}

	start := time.Now()
	tlsConn := tls.Server(pc, &tls.Config{
		GetCertificate: l.opt.CA.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	})
	if err := tlsConn.Handshake(); err != nil {
		l.handlers.ClientError(pc, c, nil)
		return
	}
	handshake := time.Since(start)

	c.SetLastHopEncrypted(true)
	l.startWatchdog(c, tlsConn, handshake)

	state := tlsConn.ConnectionState()
	negotiated := tlshello.NegotiateALPN(l.opt.ALPNPreference, hello.ALPN)
	if state.NegotiatedProtocol == "h2" || negotiated == "h2" {
		l.handlers.ServeH2(tlsConn, c)
		return
	}
	l.handlers.ServeH1(tlsConn, c)
}

// startWatchdog enforces §6.1 step 5's TLS-dropped watchdog:
// max(10x handshake-duration, floor), capped at ceiling.
func (l *Listener) startWatchdog(c *connection.Connection, conn net.Conn, handshake time.Duration) {
	d := handshake * 10
	if d < l.opt.WatchdogFloor {
		d = l.opt.WatchdogFloor
	}
	if l.opt.WatchdogCeiling > 0 && d > l.opt.WatchdogCeiling {
		d = l.opt.WatchdogCeiling
	}
	timer := time.AfterFunc(d, func() {
		l.log().Entry(5, "tls handshake completed without data, closing").FieldAdd("connection", c.ID()).Log()
		_ = conn.Close()
	})
	c.AbortOnce(func() { timer.Stop() })
}

// drainTunnel re-emits the tunnelled stream through the combo dispatch
// exactly as if it had just been accepted, satisfying §6.1 steps 3/4's
// "fresh connection on the same listener" requirement. Each call dequeues
// one stream and one call is started per queued stream; since each
// tunnelled stream carries its own cloned Connection, it does not matter
// which call picks up which stream.
func (l *Listener) drainTunnel() {
	conn, c, err := l.tunnel.next()
	if err != nil {
		return
	}
	l.handle(c, conn)
}

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

func isHTTPLeadByte(b byte) bool {
	switch b {
	case 'G', 'H', 'P', 'D', 'C', 'O', 'T':
		return true
	}
	return false
}

func peekBudget(pc *peekConn) int {
	if n := pc.Buffered(); n > 0 {
		return n
	}
	return 1
}

type peekConn struct {
	net.Conn
	r *bufio.Reader
}

func newPeek(conn net.Conn) *peekConn {
	return &peekConn{Conn: conn, r: bufio.NewReaderSize(conn, 16384)}
}

func (p *peekConn) Peek(n int) ([]byte, error) {
	return p.r.Peek(n)
}

func (p *peekConn) Discard(n int) (int, error) {
	return p.r.Discard(n)
}

func (p *peekConn) Buffered() int {
	return p.r.Buffered()
}

func (p *peekConn) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *peekConn) peekLine() ([]byte, error) {
	for n := 512; n <= 16384; n *= 2 {
		b, err := p.r.Peek(n)
		if idx := indexCRLF(b); idx >= 0 {
			return b[:idx], nil
		}
		if err != nil {
			if len(b) == 0 {
				return nil, err
			}
			return nil, ErrorLineTooLong.Error(err)
		}
	}
	return nil, ErrorLineTooLong.Error()
}

// parseConnectHeaders peeks the full CONNECT request header block,
// extracts the request-line target and any Proxy-Authorization value, then
// discards the consumed bytes so the following bytes are the raw tunnel
// stream.
func (p *peekConn) parseConnectHeaders() (target, auth string, err error) {
	for n := 512; n <= 65536; n *= 2 {
		b, perr := p.r.Peek(n)
		if idx := indexDoubleCRLF(b); idx >= 0 {
			block := b[:idx]
			target, err = connectTargetFromLine(firstLine(block))
			if err != nil {
				return "", "", err
			}
			auth = headerValue(block, "Proxy-Authorization")
			_, derr := p.r.Discard(idx + 4)
			return target, auth, derr
		}
		if perr != nil {
			return "", "", perr
		}
	}
	return "", "", ErrorLineTooLong.Error()
}

// peekRecord peeks the full TLS record described by the 5-byte header
// already peeked in head.
func (p *peekConn) peekRecord(head []byte) ([]byte, error) {
	recLen := int(head[3])<<8 | int(head[4])
	total := 5 + recLen
	return p.r.Peek(total)
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func indexDoubleCRLF(b []byte) int {
	for i := 0; i+3 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return i
		}
	}
	return -1
}
