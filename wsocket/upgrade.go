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
	"net/http"

	"github.com/httptoolkit/mockttp-sub002/events"
	"github.com/httptoolkit/mockttp-sub002/request"
	"github.com/httptoolkit/mockttp-sub002/rules"
	"github.com/httptoolkit/mockttp-sub002/steps"
)

// UnmockedEndpointBody is the response body written when no WebSocket rule
// matches an upgrade attempt.
const UnmockedEndpointBody = "Request for unmocked endpoint"

// Handle selects a WebSocket rule from store against req, and either runs
// its steps (which perform the actual gorilla/websocket upgrade) or answers
// with 503 when nothing matches. w/r are the original HTTP upgrade
// request's writer/request pair.
func Handle(w http.ResponseWriter, r *http.Request, req *request.OngoingRequest, store *rules.Store, bus *events.Bus) error {
	rule := rules.Select(store.Snapshot(), req)
	connID := ""
	if req.Conn != nil {
		connID = req.Conn.ID()
	}

	if rule == nil {
		publish(bus, connID, func() events.Event {
			return events.Event{Kind: events.KindResponse, Payload: http.StatusServiceUnavailable}
		})
		http.Error(w, UnmockedEndpointBody, http.StatusServiceUnavailable)
		return ErrorNoMatchingRule.Error()
	}

	env := rules.StepEnv{
		Request:        req,
		ResponseWriter: w,
		HTTPRequest:    r,
		Bus:            bus,
		RuleID:         rule.ID,
	}
	return steps.Run(rule, env)
}
