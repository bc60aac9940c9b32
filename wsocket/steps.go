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

package wsocket

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/httptoolkit/mockttp-sub002/rules"
)

func connIDOf(env rules.StepEnv) string {
	if env.Request != nil && env.Request.Conn != nil {
		return env.Request.Conn.ID()
	}
	return ""
}

// WSReject answers the upgrade attempt with a fixed HTTP status/body
// instead of completing the handshake, for rules that model a server
// actively refusing WebSocket traffic on an endpoint.
type WSReject struct {
	Status int
	Body   []byte
}

func (WSReject) Kind() string   { return "ws-reject" }
func (WSReject) IsFinal() bool  { return true }
func (WSReject) Explain() string { return "reject the websocket upgrade" }

func (w WSReject) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil {
		return rules.StepResult{}, ErrorUpgradeFailed.Error()
	}
	status := w.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	env.ResponseWriter.WriteHeader(status)
	if len(w.Body) > 0 {
		_, _ = env.ResponseWriter.Write(w.Body)
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// WSListen completes the handshake and then only drains incoming messages
// (publishing websocket-message-received for each), never writing back.
// Useful for asserting what a client sends without shaping a response.
type WSListen struct{}

func (WSListen) Kind() string   { return "ws-listen" }
func (WSListen) IsFinal() bool  { return true }
func (WSListen) Explain() string { return "accept and silently listen" }

func (WSListen) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil || env.HTTPRequest == nil {
		return rules.StepResult{}, ErrorUpgradeFailed.Error()
	}
	connID := connIDOf(env)
	conn, err := upgrade(env.ResponseWriter, env.HTTPRequest, env.Bus, connID)
	if err != nil {
		return rules.StepResult{Continue: false, Final: true}, err
	}
	defer conn.Close()

	pumpRecv(conn, env.Bus, connID, nil)
	return rules.StepResult{Continue: false, Final: true}, nil
}

// WSEcho completes the handshake and echoes every received message back
// verbatim, preserving its binary/text framing.
type WSEcho struct{}

func (WSEcho) Kind() string   { return "ws-echo" }
func (WSEcho) IsFinal() bool  { return true }
func (WSEcho) Explain() string { return "accept and echo every message" }

func (WSEcho) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil || env.HTTPRequest == nil {
		return rules.StepResult{}, ErrorUpgradeFailed.Error()
	}
	connID := connIDOf(env)
	conn, err := upgrade(env.ResponseWriter, env.HTTPRequest, env.Bus, connID)
	if err != nil {
		return rules.StepResult{Continue: false, Final: true}, err
	}
	defer conn.Close()

	pumpRecv(conn, env.Bus, connID, func(mt int, data []byte) {
		_ = sendMessage(conn, env.Bus, connID, mt, data)
	})
	return rules.StepResult{Continue: false, Final: true}, nil
}

// WSPassthrough completes the handshake, dials TargetHost/TargetPort as a
// WebSocket client, and relays messages bidirectionally until either side
// closes. It is the message-level counterpart of passthrough.Pump.
type WSPassthrough struct {
	TargetScheme string // "ws" or "wss", defaults to "ws"
	TargetHost   string
	TargetPort   int
	TargetPath   string
	Dialer       *websocket.Dialer
}

func (WSPassthrough) Kind() string  { return "ws-passthrough" }
func (WSPassthrough) IsFinal() bool { return true }
func (w WSPassthrough) Explain() string {
	return fmt.Sprintf("pass the websocket through to %s:%d", w.TargetHost, w.TargetPort)
}

func (w WSPassthrough) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil || env.HTTPRequest == nil {
		return rules.StepResult{}, ErrorUpgradeFailed.Error()
	}
	connID := connIDOf(env)

	scheme := w.TargetScheme
	if scheme == "" {
		scheme = "ws"
	}
	path := w.TargetPath
	if path == "" {
		path = "/"
	}
	target := fmt.Sprintf("%s://%s:%d%s", scheme, w.TargetHost, w.TargetPort, path)

	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	upstream, _, derr := dialer.Dial(target, nil)
	if derr != nil {
		return rules.StepResult{Continue: false, Final: true}, ErrorPassthroughDial.Error(derr)
	}
	defer upstream.Close()

	downstream, err := upgrade(env.ResponseWriter, env.HTTPRequest, env.Bus, connID)
	if err != nil {
		return rules.StepResult{Continue: false, Final: true}, err
	}
	defer downstream.Close()

	done := make(chan struct{}, 2)
	go func() {
		pumpRecv(downstream, env.Bus, connID, func(mt int, data []byte) {
			_ = sendMessage(upstream, env.Bus, connID, mt, data)
		})
		_ = upstream.Close()
		done <- struct{}{}
	}()
	go func() {
		pumpRecv(upstream, env.Bus, connID, func(mt int, data []byte) {
			_ = sendMessage(downstream, env.Bus, connID, mt, data)
		})
		_ = downstream.Close()
		done <- struct{}{}
	}()
	<-done
	<-done

	return rules.StepResult{Continue: false, Final: true}, nil
}
