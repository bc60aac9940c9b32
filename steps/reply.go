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
	"encoding/json"
	"io"
	"net/http"

	"github.com/httptoolkit/mockttp-sub002/rules"
)

// SimpleReply writes a fixed status/headers/body and ends the response. It
// is always a final step.
type SimpleReply struct {
	Status  int
	Headers http.Header
	Body    []byte
}

func (s SimpleReply) Kind() string   { return "simple-reply" }
func (s SimpleReply) IsFinal() bool  { return true }
func (s SimpleReply) Explain() string {
	return "reply with a fixed status and body"
}

func (s SimpleReply) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil {
		return rules.StepResult{}, ErrorNoResponseWriter.Error()
	}
	for k, vs := range s.Headers {
		for _, v := range vs {
			env.ResponseWriter.Header().Add(k, v)
		}
	}
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	env.ResponseWriter.WriteHeader(status)
	if len(s.Body) > 0 {
		_, _ = env.ResponseWriter.Write(s.Body)
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// CallbackReply lets an embedder compute the response at handling time from
// the matched OngoingRequest.
type CallbackReply struct {
	Handler func(r *rules.StepEnv) (status int, headers http.Header, body []byte)
}

func (c CallbackReply) Kind() string  { return "callback-reply" }
func (c CallbackReply) IsFinal() bool { return true }
func (c CallbackReply) Explain() string {
	return "reply computed by a callback"
}

func (c CallbackReply) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil {
		return rules.StepResult{}, ErrorNoResponseWriter.Error()
	}
	status, headers, body := c.Handler(&env)
	for k, vs := range headers {
		for _, v := range vs {
			env.ResponseWriter.Header().Add(k, v)
		}
	}
	if status == 0 {
		status = http.StatusOK
	}
	env.ResponseWriter.WriteHeader(status)
	if len(body) > 0 {
		_, _ = env.ResponseWriter.Write(body)
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// StreamReply writes a fixed status/headers then streams Source to the
// response body, flushing as data arrives where the writer supports it.
type StreamReply struct {
	Status  int
	Headers http.Header
	Source  io.Reader
}

func (s StreamReply) Kind() string  { return "stream-reply" }
func (s StreamReply) IsFinal() bool { return true }
func (s StreamReply) Explain() string {
	return "reply by streaming a body"
}

func (s StreamReply) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil {
		return rules.StepResult{}, ErrorNoResponseWriter.Error()
	}
	for k, vs := range s.Headers {
		for _, v := range vs {
			env.ResponseWriter.Header().Add(k, v)
		}
	}
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	env.ResponseWriter.WriteHeader(status)
	if s.Source != nil {
		buf := make([]byte, 32*1024)
		flusher, _ := env.ResponseWriter.(http.Flusher)
		for {
			n, err := s.Source.Read(buf)
			if n > 0 {
				if _, werr := env.ResponseWriter.Write(buf[:n]); werr != nil {
					return rules.StepResult{Continue: false, Final: true}, werr
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if err != nil {
				break
			}
		}
	}
	return rules.StepResult{Continue: false, Final: true}, nil
}

// JSONRPCReply wraps a result or error payload in a JSON-RPC 2.0 envelope
// matching the request id.
type JSONRPCReply struct {
	ID     interface{}
	Result interface{}
	Err    *JSONRPCError
}

// JSONRPCError is the "error" member of a JSON-RPC 2.0 error response.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type jsonrpcEnvelope struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

func (j JSONRPCReply) Kind() string  { return "json-rpc-reply" }
func (j JSONRPCReply) IsFinal() bool { return true }
func (j JSONRPCReply) Explain() string {
	return "reply with a JSON-RPC 2.0 envelope"
}

func (j JSONRPCReply) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil {
		return rules.StepResult{}, ErrorNoResponseWriter.Error()
	}
	body, err := json.Marshal(jsonrpcEnvelope{
		JSONRPC: "2.0",
		ID:      j.ID,
		Result:  j.Result,
		Error:   j.Err,
	})
	if err != nil {
		return rules.StepResult{Continue: false, Final: true}, err
	}
	env.ResponseWriter.Header().Set("Content-Type", "application/json")
	env.ResponseWriter.WriteHeader(http.StatusOK)
	_, _ = env.ResponseWriter.Write(body)
	return rules.StepResult{Continue: false, Final: true}, nil
}
