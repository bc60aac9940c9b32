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

package listener

import (
	"net"
	"sync"

	"github.com/httptoolkit/mockttp-sub002/connection"
)

// tunnelStream pairs a re-emitted net.Conn with the Connection metadata
// that was cloned for it by Connection.Retunnel.
type tunnelStream struct {
	conn net.Conn
	meta *connection.Connection
}

// tunnelListener is a net.Listener fed by a channel instead of a socket.
// A post-CONNECT/post-SOCKS stream is pushed onto the channel so it can be
// re-dispatched through the same combo-listener logic as a fresh accept,
// without a second TCP handshake. The channel is buffered so that pushing a
// tunnelled stream never has to rendezvous with a waiting reader.
type tunnelListener struct {
	addr    net.Addr
	ch      chan tunnelStream
	once    sync.Once
	closeCh chan struct{}
}

func newTunnelListener(addr net.Addr) *tunnelListener {
	return &tunnelListener{
		addr:    addr,
		ch:      make(chan tunnelStream, 256),
		closeCh: make(chan struct{}),
	}
}

// accept queues a tunnelled stream for re-dispatch.
func (t *tunnelListener) accept(conn net.Conn, meta *connection.Connection) {
	select {
	case t.ch <- tunnelStream{conn: conn, meta: meta}:
	case <-t.closeCh:
	}
}

// next is the internal dequeue used by the combo listener's own
// re-dispatch loop, returning both the stream and its Connection.
func (t *tunnelListener) next() (net.Conn, *connection.Connection, error) {
	select {
	case s := <-t.ch:
		return s.conn, s.meta, nil
	case <-t.closeCh:
		return nil, nil, net.ErrClosed
	}
}

// Accept implements net.Listener, for callers (e.g. an http.Server) that
// only need the raw stream.
func (t *tunnelListener) Accept() (net.Conn, error) {
	conn, _, err := t.next()
	return conn, err
}

func (t *tunnelListener) Close() error {
	t.shutdown()
	return nil
}

func (t *tunnelListener) shutdown() {
	t.once.Do(func() { close(t.closeCh) })
}

func (t *tunnelListener) Addr() net.Addr {
	return t.addr
}
