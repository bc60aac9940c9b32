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
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/httptoolkit/mockttp-sub002/connection"
	"github.com/httptoolkit/mockttp-sub002/events"
	"github.com/httptoolkit/mockttp-sub002/request"
	"github.com/httptoolkit/mockttp-sub002/rules"
	"github.com/httptoolkit/mockttp-sub002/steps"
	"github.com/httptoolkit/mockttp-sub002/wsocket"
)

// httpHandler is the single net/http.Handler every accepted connection is
// served with, for both HTTP/1 (http.Serve) and HTTP/2
// (http2.Server.ServeConn) — the combo listener only tells the two apart to
// pick the right serving loop; request handling itself is protocol-agnostic
// from here down.
type httpHandler struct {
	s *Server
	c *connection.Connection
}

func (h httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	isWS := isWebSocketUpgrade(r)

	in := request.Input{
		Method:         r.Method,
		RequestURI:     requestURIOf(r),
		RawHeaders:     rawHeadersOf(r),
		Body:           r.Body,
		MaxBodyBytes:   h.s.cfg.MaxBodyBytes,
		HTTPVersion:    r.Proto,
		IsWebSocketReq: isWS,
		Conn:           h.c,
	}

	ongoing, err := request.Normalise(in)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ongoing.ID = fmt.Sprintf("%s-%d", h.c.ID(), h.c.Timing().LastRequest.UnixNano())

	connID := h.c.ID()
	h.s.bus.PublishFunc(func() events.Event {
		return events.Event{Kind: events.KindRequestInitiated, ConnectionID: connID, Payload: ongoing}
	})
	h.s.bus.PublishFunc(func() events.Event {
		return events.Event{Kind: events.KindRequest, ConnectionID: connID, Payload: ongoing}
	})

	if isWS {
		if err := wsocket.Handle(w, r, ongoing, h.s.websocketRules, h.s.bus); err != nil {
			h.s.logger()().Entry(logrus.WarnLevel, "websocket handling failed").FieldAdd("connection", connID).ErrorAdd(err).Log()
		}
		return
	}

	snap := h.s.requestRules.Snapshot()
	rule := rules.Select(snap, ongoing)
	if rule == nil {
		writeUnmatched(w, ongoing, snap.AllRules())
		h.s.bus.PublishFunc(func() events.Event {
			return events.Event{Kind: events.KindResponse, ConnectionID: connID, Payload: http.StatusServiceUnavailable}
		})
		return
	}

	h.s.bus.PublishFunc(func() events.Event {
		return events.Event{Kind: events.KindResponseInitiated, ConnectionID: connID, Payload: rule.ID}
	})

	env := rules.StepEnv{
		Request:        ongoing,
		ResponseWriter: w,
		RawConn:        nil,
		Bus:            h.s.bus,
		RuleID:         rule.ID,
		HTTPRequest:    r,
	}

	if err := steps.Run(rule, env); err != nil {
		h.s.bus.PublishFunc(func() events.Event {
			return events.Event{Kind: events.KindAbort, ConnectionID: connID, Payload: err.Error()}
		})
		return
	}

	h.s.bus.PublishFunc(func() events.Event {
		return events.Event{Kind: events.KindResponse, ConnectionID: connID, Payload: rule.ID}
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func requestURIOf(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	return r.RequestURI
}

func rawHeadersOf(r *http.Request) []request.RawHeader {
	out := make([]request.RawHeader, 0, len(r.Header)+1)
	out = append(out, request.RawHeader{Name: ":path", Value: r.URL.RequestURI()})
	for name, values := range r.Header {
		for _, v := range values {
			out = append(out, request.RawHeader{Name: name, Value: v})
		}
	}
	if r.Host != "" {
		out = append(out, request.RawHeader{Name: "Host", Value: r.Host})
	}
	return out
}

// writeUnmatched implements §6's unmatched-request reply: 503, text/plain,
// the request summary, every active rule's Explain() output, and a
// suggested rule snippet.
func writeUnmatched(w http.ResponseWriter, req *request.OngoingRequest, active []*rules.Rule) {
	var b strings.Builder
	fmt.Fprintf(&b, "Request for unmocked endpoint\n\n%s %s\n\n", req.Method, req.Path)

	if len(active) == 0 {
		b.WriteString("No rules are currently registered.\n")
	} else {
		b.WriteString("Active rules:\n")
		for _, r := range active {
			fmt.Fprintf(&b, "  - %s\n", r.Explain())
		}
	}

	fmt.Fprintf(&b, "\nTry adding a rule such as:\n  matching %s %s -> respond with a fixed status/body\n", req.Method, req.Path)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(b.String()))
}
