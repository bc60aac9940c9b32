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

// Package events implements the event bus (C10): a single-producer,
// multi-consumer fan-out with asynchronous, next-tick delivery that
// preserves per-connection-id ordering.
package events

import (
	"sync"
)

// Kind names one entry in the event catalogue.
type Kind string

const (
	KindRequestInitiated      Kind = "request-initiated"
	KindRequest               Kind = "request"
	KindResponseInitiated     Kind = "response-initiated"
	KindResponse              Kind = "response"
	KindAbort                 Kind = "abort"
	KindWebSocketConnect      Kind = "websocket-connect"
	KindWebSocketAccepted     Kind = "websocket-accepted"
	KindWebSocketMessageRecv  Kind = "websocket-message-received"
	KindWebSocketMessageSent  Kind = "websocket-message-sent"
	KindWebSocketClose        Kind = "websocket-close"
	KindTLSPassthroughOpened  Kind = "tls-passthrough-opened"
	KindTLSPassthroughClosed  Kind = "tls-passthrough-closed"
	KindTLSClientError        Kind = "tls-client-error"
	KindClientError           Kind = "client-error"
	KindRawPassthroughOpened  Kind = "raw-passthrough-opened"
	KindRawPassthroughData    Kind = "raw-passthrough-data"
	KindRawPassthroughClosed  Kind = "raw-passthrough-closed"
	KindRuleEvent             Kind = "rule-event"
)

// Event is one bus entry. ConnectionID orders delivery: two events with the
// same ConnectionID are always delivered to a given subscriber in the order
// they were published.
type Event struct {
	Kind         Kind
	ConnectionID string
	Payload      interface{}
}

// Listener receives events from a Bus's drain loop, one at a time.
type Listener func(Event)

// Bus is a typed, asynchronous event bus. Publish queues the event and
// returns as soon as the queue has room (it waits while the queue is full); a single drain
// goroutine per Bus delivers events to listeners in publish order, so all
// events sharing a ConnectionID are delivered in that order too.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	queue     chan Event
	stop      chan struct{}
	once      sync.Once
}

// New starts a Bus with the given queue depth (next-tick delivery means
// Publish practically never blocks as long as the drain goroutine keeps up;
// the depth only bounds worst-case burst buffering).
func New(queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	b := &Bus{
		queue: make(chan Event, queueDepth),
		stop:  make(chan struct{}),
	}
	go b.drain()
	return b
}

// Subscribe registers a listener and returns an unsubscribe function.
func (b *Bus) Subscribe(l Listener) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
	idx := len(b.listeners) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nil
		}
	}
}

// HasListeners reports whether publishing would reach anyone at all, so
// callers can skip constructing an expensive Payload when nobody is
// listening.
func (b *Bus) HasListeners() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		if l != nil {
			return true
		}
	}
	return false
}

// Publish enqueues an event for asynchronous, next-tick delivery. It waits
// only while the queue is full; after Close the event may be dropped.
func (b *Bus) Publish(e Event) {
	select {
	case b.queue <- e:
	case <-b.stop:
	}
}

// PublishFunc only constructs and publishes the event if at least one
// listener is registered, implementing lazy event construction.
func (b *Bus) PublishFunc(build func() Event) {
	if !b.HasListeners() {
		return
	}
	b.Publish(build())
}

func (b *Bus) drain() {
	for {
		select {
		case e := <-b.queue:
			b.deliver(e)
		case <-b.stop:
			return
		}
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		if l != nil {
			l(e)
		}
	}
}

// Close stops the drain goroutine. Queued events that have not yet been
// delivered are dropped.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.stop) })
}
