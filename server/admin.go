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
	"github.com/httptoolkit/mockttp-sub002/events"
	"github.com/httptoolkit/mockttp-sub002/rules"
)

// Endpoint is the Admin introspection view of one registered rule.
type Endpoint struct {
	ID       string
	Priority int
	Explain  string
	Matched  uint64
	Outcomes []rules.Outcome
}

// Admin is the Go-native replacement for the out-of-scope remote
// administration wire protocol: everything a caller needs to shape traffic
// and observe it, in process.
type Admin interface {
	// SetRequestRules replaces the entire HTTP rule set.
	SetRequestRules(rs []*rules.Rule)
	// AddRequestRules appends to the existing HTTP rule set.
	AddRequestRules(rs []*rules.Rule)
	// SetWebsocketRules replaces the entire WebSocket rule set.
	SetWebsocketRules(rs []*rules.Rule)
	// AddWebsocketRules appends to the existing WebSocket rule set.
	AddWebsocketRules(rs []*rules.Rule)
	// Reset clears both rule sets back to empty.
	Reset()
	// Stop shuts the server down; see Server.Stop.
	Stop() error
	// GetMockedEndpoints returns every rule (HTTP and WebSocket) that has
	// matched at least one request so far.
	GetMockedEndpoints() []Endpoint
	// GetPendingEndpoints returns every registered rule that has not yet
	// matched a request.
	GetPendingEndpoints() []Endpoint
	// Subscribe streams bus events of the given kind until cancel is
	// called. Slow consumers drop events rather than block the bus.
	Subscribe(kind events.Kind) (ch <-chan events.Event, cancel func())
}

func (s *Server) SetRequestRules(rs []*rules.Rule) { s.requestRules.SetRules(rs) }
func (s *Server) AddRequestRules(rs []*rules.Rule) { s.requestRules.AddRules(rs) }

func (s *Server) SetWebsocketRules(rs []*rules.Rule) { s.websocketRules.SetRules(rs) }
func (s *Server) AddWebsocketRules(rs []*rules.Rule) { s.websocketRules.AddRules(rs) }

func (s *Server) Reset() {
	s.requestRules.SetRules(nil)
	s.websocketRules.SetRules(nil)
}

func (s *Server) GetMockedEndpoints() []Endpoint {
	return collectEndpoints(true, s.requestRules, s.websocketRules)
}

func (s *Server) GetPendingEndpoints() []Endpoint {
	return collectEndpoints(false, s.requestRules, s.websocketRules)
}

// collectEndpoints reports every rule across stores whose match count
// crosses zero (mocked) or not (pending).
func collectEndpoints(wantMatched bool, stores ...*rules.Store) []Endpoint {
	var out []Endpoint
	for _, st := range stores {
		for _, r := range st.Snapshot().AllRules() {
			count := r.RequestCount()
			if (count > 0) != wantMatched {
				continue
			}
			out = append(out, Endpoint{
				ID:       r.ID,
				Priority: r.Priority,
				Explain:  r.Explain(),
				Matched:  count,
				Outcomes: r.Outcomes(),
			})
		}
	}
	return out
}

func (s *Server) Subscribe(kind events.Kind) (<-chan events.Event, func()) {
	ch := make(chan events.Event, 32)
	cancel := s.bus.Subscribe(func(e events.Event) {
		if e.Kind != kind {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	return ch, cancel
}
