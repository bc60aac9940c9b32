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

// Package tlshello implements the TLS Hello Analyser (C3): it peeks the TLS
// ClientHello on an accepted socket without completing the handshake,
// extracts SNI/ALPN/JA3/JA4, and lets the caller decide between passthrough
// and interception before replaying the peeked bytes into a real
// tls.Server handshake.
package tlshello

import (
	"bufio"
	"net"
)

// PeekConn wraps a net.Conn so that bytes consumed while probing the
// ClientHello can be replayed to a subsequent real reader (e.g.
// tls.Server(conn, cfg).Handshake()).
type PeekConn struct {
	net.Conn
	r *bufio.Reader
}

// NewPeekConn returns a PeekConn ready for Peek/Read; all reads, peeked or
// not, go through the same buffered reader so nothing is lost.
func NewPeekConn(conn net.Conn) *PeekConn {
	return &PeekConn{Conn: conn, r: bufio.NewReaderSize(conn, 8192)}
}

// Peek returns the next n bytes without advancing the read position.
func (p *PeekConn) Peek(n int) ([]byte, error) {
	return p.r.Peek(n)
}

// Read satisfies net.Conn by reading through the buffered reader, so bytes
// already peeked are replayed before any new bytes from the socket.
func (p *PeekConn) Read(b []byte) (int, error) {
	return p.r.Read(b)
}
