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

// Package connection implements the per-socket metadata store (C1): the
// Connection entity that owns a net.Conn plus the tunnel/TLS/timing
// attributes layered on top of it as the traffic plane processes it.
package connection

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	libctx "github.com/httptoolkit/mockttp-sub002/context"
)

// TLSMetadata holds the ClientHello-derived attributes of a TLS connection.
type TLSMetadata struct {
	SNI  string
	ALPN []string
	JA3  string
	JA4  string
}

// Timing records the monotonic milestones of a Connection's life plus one
// wall-clock start time.
type Timing struct {
	WallStart time.Time

	InitialSocket time.Time
	TunnelSetup   time.Time
	TLSConnected  time.Time
	LastRequest   time.Time
}

// Connection is a long-lived entity attached to one TCP socket plus any
// TLS/HTTP-2 layering on top of it. Tunnel layering (CONNECT/SOCKS) creates
// a child Connection via Retunnel, inheriting the parent's metadata.
type Connection struct {
	mu sync.RWMutex

	id   string
	conn net.Conn

	localAddr  net.Addr
	remoteAddr net.Addr

	lastHopEncrypted bool
	lastTunnelAddr   string

	tls *TLSMetadata

	meta libctx.Config[string]

	timing Timing

	tags []string

	closeOnce sync.Once
	abortOnce sync.Once
}

// New wraps an accepted net.Conn into a fresh root Connection.
func New(conn net.Conn) *Connection {
	now := time.Now()
	c := &Connection{
		id:   uuid.NewString(),
		conn: conn,
		meta: libctx.New[string](nil),
		timing: Timing{
			WallStart:     now,
			InitialSocket: now,
		},
	}
	if conn != nil {
		c.localAddr = conn.LocalAddr()
		c.remoteAddr = conn.RemoteAddr()
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c
}

// Retunnel produces a child Connection representing a new protocol layer
// (post-CONNECT or post-TLS) over the same logical client, inheriting
// address/timing/socket-metadata/tunnel-address from the parent.
func (c *Connection) Retunnel(conn net.Conn) *Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	child := &Connection{
		id:               uuid.NewString(),
		conn:             conn,
		meta:             c.meta.Clone(nil),
		localAddr:        c.localAddr,
		remoteAddr:       c.remoteAddr,
		lastHopEncrypted: c.lastHopEncrypted,
		lastTunnelAddr:   c.lastTunnelAddr,
		tags:             append([]string(nil), c.tags...),
		timing: Timing{
			WallStart:     c.timing.WallStart,
			InitialSocket: c.timing.InitialSocket,
			TunnelSetup:   c.timing.TunnelSetup,
			TLSConnected:  c.timing.TLSConnected,
		},
	}
	if conn != nil {
		child.localAddr = conn.LocalAddr()
		child.remoteAddr = conn.RemoteAddr()
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return child
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Conn() net.Conn { return c.conn }

func (c *Connection) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localAddr
}

func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddr
}

func (c *Connection) SetLastHopEncrypted(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHopEncrypted = v
	if v {
		c.timing.TLSConnected = time.Now()
	}
}

func (c *Connection) LastHopEncrypted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHopEncrypted
}

// SetTunnelAddress stamps the authority captured from the most recent
// CONNECT or SOCKS tunnel step.
func (c *Connection) SetTunnelAddress(hostPort string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTunnelAddr = hostPort
	c.timing.TunnelSetup = time.Now()
}

func (c *Connection) TunnelAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTunnelAddr
}

func (c *Connection) SetTLSMetadata(m *TLSMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tls = m
}

func (c *Connection) TLSMetadata() *TLSMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tls
}

func (c *Connection) Timing() Timing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timing
}

func (c *Connection) MarkRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timing.LastRequest = time.Now()
}

// AddTags appends arbitrary per-connection tags, e.g. decoded from
// Proxy-Authorization socket-metadata.
func (c *Connection) AddTags(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tags...)
}

func (c *Connection) Tags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tags...)
}

// Meta exposes the generic key/value store backing socket-metadata and any
// other side-channel annotation.
func (c *Connection) Meta() libctx.Config[string] {
	return c.meta
}

// Close closes the underlying socket exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// AbortOnce runs fn the first time it is called for this connection and
// ignores later calls, enforcing the "abort exactly once" invariant.
func (c *Connection) AbortOnce(fn func()) {
	c.abortOnce.Do(fn)
}
