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

// Package wsocket implements the WebSocket lifecycle (C12): a thin wrapper
// around gorilla/websocket's Upgrader that publishes websocket-accepted when
// the handshake succeeds (a failed handshake publishes no event), and
// post-upgrade instrumentation of the resulting *websocket.Conn so every
// message and the eventual close reach the event bus.
package wsocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/httptoolkit/mockttp-sub002/events"
)

// AcceptedPayload is the websocket-accepted event payload.
type AcceptedPayload struct {
	Subprotocol string
}

// MessagePayload is the websocket-message-received/sent event payload.
type MessagePayload struct {
	Binary  bool
	Content []byte
	At      time.Time
}

// ClosePayload is the websocket-close event payload. Code is 0 when the
// peer closed without a well-formed close frame (RFC 6455 1005, "no status
// received"). When the connection dropped unexpectedly (1006, "abnormal
// closure") the payload is published with Kind abort instead of
// websocket-close.
type ClosePayload struct {
	Code   int
	Reason string
	At     time.Time
}

var upgrader = websocket.Upgrader{
	// The module mocks arbitrary upstream traffic; it is not itself the
	// origin policy boundary, so every origin is accepted and left to the
	// matched rule to reject if desired (ws-reject).
	CheckOrigin:     func(*http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func publish(bus *events.Bus, connID string, build func() events.Event) {
	if bus == nil {
		return
	}
	bus.PublishFunc(func() events.Event {
		e := build()
		e.ConnectionID = connID
		return e
	})
}

// upgrade performs the handshake and, on success, publishes
// websocket-accepted. Rejection (handshake error) is left to the caller,
// since gorilla's Upgrader already writes the HTTP error response itself.
func upgrade(w http.ResponseWriter, r *http.Request, bus *events.Bus, connID string) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, ErrorUpgradeFailed.Error(err)
	}
	publish(bus, connID, func() events.Event {
		return events.Event{
			Kind:    events.KindWebSocketAccepted,
			Payload: AcceptedPayload{Subprotocol: conn.Subprotocol()},
		}
	})
	return conn, nil
}

// pumpRecv reads messages off conn until it closes, invoking onMessage for
// each one and publishing websocket-message-received / websocket-close (or
// an abort) as appropriate. It returns once the peer has gone away.
func pumpRecv(conn *websocket.Conn, bus *events.Bus, connID string, onMessage func(messageType int, data []byte)) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			publishClose(bus, connID, err)
			return
		}
		publish(bus, connID, func() events.Event {
			return events.Event{
				Kind: events.KindWebSocketMessageRecv,
				Payload: MessagePayload{
					Binary:  mt == websocket.BinaryMessage,
					Content: data,
					At:      time.Now(),
				},
			}
		})
		if onMessage != nil {
			onMessage(mt, data)
		}
	}
}

func sendMessage(conn *websocket.Conn, bus *events.Bus, connID string, messageType int, data []byte) error {
	if err := conn.WriteMessage(messageType, data); err != nil {
		return err
	}
	publish(bus, connID, func() events.Event {
		return events.Event{
			Kind: events.KindWebSocketMessageSent,
			Payload: MessagePayload{
				Binary:  messageType == websocket.BinaryMessage,
				Content: data,
				At:      time.Now(),
			},
		}
	})
	return nil
}

// publishClose classifies a ReadMessage error and emits the matching
// terminal event: 1006 (abnormal closure, no close frame at all) surfaces
// as abort; 1005 (no status received) and any clean close frame surface as
// websocket-close with the frame's code/reason (0 for 1005).
func publishClose(bus *events.Bus, connID string, err error) {
	code := websocket.CloseNoStatusReceived
	reason := err.Error()

	if ce, ok := err.(*websocket.CloseError); ok {
		code = ce.Code
		reason = ce.Text
	}

	if websocket.IsUnexpectedCloseError(err) && code == websocket.CloseAbnormalClosure {
		publish(bus, connID, func() events.Event {
			return events.Event{Kind: events.KindAbort, Payload: ClosePayload{Code: code, Reason: reason, At: time.Now()}}
		})
		return
	}

	if code == websocket.CloseNoStatusReceived {
		code = 0
	}

	publish(bus, connID, func() events.Event {
		return events.Event{Kind: events.KindWebSocketClose, Payload: ClosePayload{Code: code, Reason: reason, At: time.Now()}}
	})
}
