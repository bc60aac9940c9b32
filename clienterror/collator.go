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

// Package clienterror implements the client-error collator (C11): it
// coalesces the byte fragments a best-effort parser hands it across
// repeated parse-error callbacks on one connection into a single
// synthesized client-error event and, where the socket is still writable,
// a 400/431 HTTP response.
package clienterror

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/httptoolkit/mockttp-sub002/connection"
	"github.com/httptoolkit/mockttp-sub002/events"
	liblog "github.com/httptoolkit/mockttp-sub002/log"
	"github.com/httptoolkit/mockttp-sub002/request"
)

// DefaultMaxHeaderBytes bounds the accumulated buffer before the collator
// gives up and reports HPE_HEADER_OVERFLOW.
const DefaultMaxHeaderBytes = 16 * 1024

// debounce is the "next tick" window: successive Feed calls arriving within
// this window are coalesced into a single report, since most HTTP parsers
// invoke their error callback once per incremental read with a
// prefix-extended buffer each time.
const debounce = time.Millisecond

// Payload is the Payload carried by an events.KindClientError event.
type Payload struct {
	ConnectionID string
	Request      *ParsedRequest
	Status       int
	Tag          string
	Aborted      bool
	Cause        error
}

// ParsedRequest is what the best-effort parser could recover.
type ParsedRequest struct {
	Method  string
	URL     string
	Version string
	Headers request.Headers
}

// Collator accumulates fragments for one Connection and reports once per
// episode.
type Collator struct {
	mu  sync.Mutex
	buf []byte

	conn *connection.Connection
	bus  *events.Bus
	log  liblog.FuncLog

	maxHeaderBytes int
	writable       func() bool

	timer   *time.Timer
	tags    []string
	flushed bool
}

// New builds a Collator bound to one Connection. writable is polled at
// flush time to decide whether a synthesized response can be attempted;
// pass nil to always attempt.
func New(c *connection.Connection, bus *events.Bus, log liblog.FuncLog, writable func() bool) *Collator {
	return &Collator{
		conn:           c,
		bus:            bus,
		log:            log,
		maxHeaderBytes: DefaultMaxHeaderBytes,
		writable:       writable,
	}
}

// AddTag attaches a fixed tag (e.g. "client-error:bad-preface") to the next
// report produced by this Collator.
func (col *Collator) AddTag(tag string) {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.tags = append(col.tags, tag)
}

// Feed merges a new fragment into the accumulator: a fragment that is a
// prefix-extension of what is already buffered replaces it (the common case
// of a parser re-invoking its callback with more bytes read so far);
// anything else is appended. It then (re)arms the debounce timer so only
// one report fires per burst of Feed calls.
func (col *Collator) Feed(fragment []byte) {
	col.mu.Lock()
	defer col.mu.Unlock()

	if col.flushed {
		return
	}

	switch {
	case len(fragment) >= len(col.buf) && bytes.HasPrefix(fragment, col.buf):
		col.buf = append([]byte(nil), fragment...)
	case bytes.HasPrefix(col.buf, fragment):
		// fragment is a strict prefix of what we already hold; nothing new.
	default:
		col.buf = append(col.buf, fragment...)
	}

	if col.timer != nil {
		col.timer.Stop()
	}
	col.timer = time.AfterFunc(debounce, col.flush)
}

// flush performs the best-effort parse, synthesizes a response and emits the
// client-error event. Safe to call at most once per Collator; later calls
// are no-ops.
func (col *Collator) flush() {
	col.mu.Lock()
	if col.flushed {
		col.mu.Unlock()
		return
	}
	col.flushed = true
	buf := append([]byte(nil), col.buf...)
	tags := append([]string(nil), col.tags...)
	col.mu.Unlock()

	parsed, parseErr := bestEffortParse(buf)

	status := 400
	tag := "client-error:malformed-request"
	if len(buf) >= col.maxHeaderBytes {
		status = 431
		tag = "client-error:header-overflow"
	}
	for _, t := range tags {
		if t != "" {
			tag = t
		}
	}

	aborted := false
	if col.writable != nil && !col.writable() {
		aborted = true
	} else if col.conn != nil {
		if err := writeResponse(col.conn, status); err != nil {
			aborted = true
		}
	}

	if col.conn != nil {
		col.conn.AddTags(tag)
	}

	if col.log != nil {
		e := col.log().Entry(logrus.WarnLevel, "client protocol error").
			FieldAdd("tag", tag).
			FieldAdd("status", status).
			FieldAdd("aborted", aborted)
		if col.conn != nil {
			e = e.FieldAdd("connection", col.conn.ID())
		}
		if parseErr != nil {
			e = e.ErrorAdd(parseErr)
		}
		e.Log()
	}

	if col.bus != nil {
		connID := ""
		if col.conn != nil {
			connID = col.conn.ID()
		}
		col.bus.Publish(events.Event{
			Kind:         events.KindClientError,
			ConnectionID: connID,
			Payload: Payload{
				ConnectionID: connID,
				Request:      parsed,
				Status:       status,
				Tag:          tag,
				Aborted:      aborted,
				Cause:        parseErr,
			},
		})
	}
}

func writeResponse(c *connection.Connection, status int) error {
	conn := c.Conn()
	if conn == nil {
		return ErrorSocketNotWritable.Error()
	}
	body := fmt.Sprintf("%d %s", status, statusText(status))
	resp := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Length: %d\r\nContent-Type: text/plain\r\n\r\n%s",
		status, statusText(status), len(body), body,
	)
	_, err := conn.Write([]byte(resp))
	if err != nil {
		return ErrorWriteResponse.Error(err)
	}
	return nil
}

func statusText(status int) string {
	switch status {
	case 431:
		return "Request Header Fields Too Large"
	default:
		return "Bad Request"
	}
}
