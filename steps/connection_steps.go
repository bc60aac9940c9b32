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

package steps

import (
	"net"
	"time"

	"github.com/httptoolkit/mockttp-sub002/passthrough"
	"github.com/httptoolkit/mockttp-sub002/rules"
)

// PassThrough tunnels the raw connection through to an upstream host/port
// for the remainder of the socket's life, using the passthrough pump.
type PassThrough struct {
	TargetHost string
	TargetPort int
	Mode       passthrough.Mode
	Registry   *passthrough.Registry
}

func (p PassThrough) Kind() string  { return "pass-through" }
func (p PassThrough) IsFinal() bool { return true }
func (p PassThrough) Explain() string {
	return "pass the raw connection through upstream"
}

func (p PassThrough) Execute(env rules.StepEnv) (rules.StepResult, error) {
	conn, ok := env.RawConn.(net.Conn)
	if !ok {
		return rules.StepResult{Continue: false, Final: true}, ErrorPassthroughFailed.Error()
	}

	connID := ""
	if env.Request != nil && env.Request.Conn != nil {
		connID = env.Request.Conn.ID()
	}

	err := passthrough.Pump(passthrough.Options{
		Downstream:   conn,
		UpstreamHost: p.TargetHost,
		UpstreamPort: p.TargetPort,
		Mode:         p.Mode,
		ConnectionID: connID,
		Registry:     p.Registry,
		Bus:          env.Bus,
	})
	if err != nil {
		return rules.StepResult{Continue: false, Final: true}, ErrorPassthroughFailed.Error(err)
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// CloseConnection ends the response/connection cleanly without writing a
// response body.
type CloseConnection struct{}

func (CloseConnection) Kind() string   { return "close-connection" }
func (CloseConnection) IsFinal() bool  { return true }
func (CloseConnection) Explain() string { return "close the connection" }

func (CloseConnection) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.Request != nil && env.Request.Conn != nil {
		_ = env.Request.Conn.Close()
	} else if conn, ok := env.RawConn.(net.Conn); ok {
		_ = conn.Close()
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// ResetConnection forcibly resets the TCP connection (RST) rather than
// performing a clean FIN close.
type ResetConnection struct{}

func (ResetConnection) Kind() string   { return "reset-connection" }
func (ResetConnection) IsFinal() bool  { return true }
func (ResetConnection) Explain() string { return "reset the connection" }

func (ResetConnection) Execute(env rules.StepEnv) (rules.StepResult, error) {
	var raw net.Conn
	if env.Request != nil && env.Request.Conn != nil {
		raw = env.Request.Conn.Conn()
	} else if c, ok := env.RawConn.(net.Conn); ok {
		raw = c
	}
	if tc, ok := raw.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	if raw != nil {
		_ = raw.Close()
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// Timeout holds the connection open without responding until Duration
// elapses, then ends it without a response (simulating an unresponsive
// upstream).
type Timeout struct {
	Duration time.Duration
}

func (Timeout) Kind() string   { return "timeout" }
func (Timeout) IsFinal() bool  { return true }
func (Timeout) Explain() string { return "time out without responding" }

func (t Timeout) Execute(env rules.StepEnv) (rules.StepResult, error) {
	time.Sleep(t.Duration)
	if env.Request != nil && env.Request.Conn != nil {
		_ = env.Request.Conn.Close()
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// Delay pauses for Duration then continues to the next step.
type Delay struct {
	Duration time.Duration
}

func (Delay) Kind() string   { return "delay" }
func (Delay) IsFinal() bool  { return false }
func (Delay) Explain() string { return "delay before continuing" }

func (d Delay) Execute(rules.StepEnv) (rules.StepResult, error) {
	time.Sleep(d.Duration)
	return rules.StepResult{Continue: true}, nil
}
