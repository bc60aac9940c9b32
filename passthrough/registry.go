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

// Package passthrough implements the bidirectional byte pump (C9): raw and
// TLS-opaque tunnelling between a downstream client socket and an upstream
// destination, with loop detection and per-frame raw-passthrough-data
// events.
package passthrough

import (
	libctx "github.com/httptoolkit/mockttp-sub002/context"
)

// Registry tracks every downstream socket address currently being served so
// a new upstream dial can be checked against it, backed by context.Config's
// atomic keyed map for lock-free lookups.
type Registry struct {
	downstream libctx.Config[string]
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{downstream: libctx.New[string](nil)}
}

// TrackDownstream records addr as an active downstream socket; call
// untrack (the returned func) when that socket closes.
func (r *Registry) TrackDownstream(addr string) (untrack func()) {
	if addr == "" {
		return func() {}
	}
	r.downstream.Store(addr, struct{}{})
	return func() { r.downstream.Delete(addr) }
}

// IsLoop reports whether addr is already tracked as a downstream socket,
// meaning an upstream dial to it would tunnel the server back into itself.
func (r *Registry) IsLoop(addr string) bool {
	_, ok := r.downstream.Load(addr)
	return ok
}
