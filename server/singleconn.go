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

package server

import (
	"net"
	"sync"
)

// singleConnListener adapts one already-accepted net.Conn (handed to us by
// the combo listener, possibly after TLS/tunnel peeling) into the
// net.Listener shape net/http.Serve expects, so the standard library's
// HTTP/1 request loop, keep-alive handling and Hijacker support (needed by
// the WebSocket upgrade) all come for free on a connection the combo
// listener already owns instead of an http.Server-owned socket.
type singleConnListener struct {
	conn net.Conn
	addr net.Addr
	once sync.Once
	done chan struct{}
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	return &singleConnListener{conn: conn, addr: conn.LocalAddr(), done: make(chan struct{})}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if l.conn != nil {
		c := &closeNotifyConn{Conn: l.conn, onClose: l.Close}
		l.conn = nil
		return c, nil
	}
	<-l.done
	return nil, net.ErrClosed
}

func (l *singleConnListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *singleConnListener) Addr() net.Addr {
	return l.addr
}

// closeNotifyConn unblocks the listener's pending second Accept once
// net/http is done with the one connection it was handed, so the Serve
// goroutine (and its caller) can return instead of leaking.
type closeNotifyConn struct {
	net.Conn
	closeOnce sync.Once
	onClose   func() error
}

func (c *closeNotifyConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() { _ = c.onClose() })
	return err
}
