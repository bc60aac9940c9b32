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

// Package httpcli is the outbound HTTP client the forward-to/pass-through
// step replays a matched request against. It keeps the fluent
// client-factory/request-builder idiom used elsewhere in this codebase for
// injecting transport behaviour (a step can hand it a custom FctHttpClient
// to point at a test server or apply a timeout) without the config-file
// loading, DNS override table or multi-protocol negotiation a generic
// internal HTTP client would carry; the mock server only ever replays one
// upstream request per matched rule.
package httpcli

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	liberr "github.com/httptoolkit/mockttp-sub002/errors"
)

// FctHttpClient lazily produces the *http.Client a Request sends through,
// so callers can inject a pooled/instrumented client instead of the default.
type FctHttpClient func() *http.Client

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// GetClient is the default FctHttpClient used when a Request is built
// without SetClient: one shared *http.Client with a conservative timeout.
func GetClient() *http.Client {
	return defaultClient
}

// Request is a small fluent builder around one outbound HTTP call.
type Request struct {
	mu     sync.Mutex
	client FctHttpClient
	url    *url.URL
	method string
	header http.Header
	body   io.Reader
}

// New builds a Request that sends through fct, or GetClient if fct is nil.
func New(fct FctHttpClient) *Request {
	if fct == nil {
		fct = GetClient
	}
	return &Request{
		client: fct,
		method: http.MethodGet,
		header: make(http.Header),
	}
}

// SetClient overrides the client factory after construction.
func (r *Request) SetClient(fct FctHttpClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fct != nil {
		r.client = fct
	}
}

// SetUrl sets the destination of the outbound request.
func (r *Request) SetUrl(u *url.URL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url = u
}

// Method sets the outbound request's HTTP method.
func (r *Request) Method(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if method != "" {
		r.method = method
	}
}

// Header adds one outbound header value, preserving repeated headers.
func (r *Request) Header(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header.Add(key, value)
}

// RequestReader sets the outbound request body.
func (r *Request) RequestReader(body io.Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = body
}

// Do sends the built request and returns the raw upstream response; the
// caller owns resp.Body and must close it.
func (r *Request) Do(ctx context.Context) (*http.Response, liberr.Error) {
	r.mu.Lock()
	u, method, header, body, client := r.url, r.method, r.header.Clone(), r.body, r.client
	r.mu.Unlock()

	if u == nil {
		return nil, ErrorURLMissing.Error()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, ErrorRequestBuild.Error(err)
	}
	req.Header = header

	resp, err := client().Do(req)
	if err != nil {
		return nil, ErrorRequestSend.Error(err)
	}
	return resp, nil
}
