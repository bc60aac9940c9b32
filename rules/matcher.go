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

// Package rules implements the rule store (C6) and matcher (C7): the
// priority-ordered set of request/WebSocket rules and the single-pass
// selection algorithm that picks which rule handles a given request.
package rules

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/httptoolkit/mockttp-sub002/request"
)

// Matcher decides whether a rule applies to a given request. Matches and
// Explain must agree: Explain describes the exact test Matches performs, so
// it can be rendered verbatim in an unmatched-request diagnostic body.
type Matcher interface {
	Matches(r *request.OngoingRequest) bool
	Explain() string
}

// Wildcard matches every request unconditionally. A rule with zero matchers
// other than an explicit Wildcard matches nothing per the zero-matchers
// invariant.
type Wildcard struct{}

func (Wildcard) Matches(*request.OngoingRequest) bool { return true }
func (Wildcard) Explain() string                      { return "for any request" }

// Method matches the request's HTTP method case-insensitively.
type Method struct{ Method string }

func (m Method) Matches(r *request.OngoingRequest) bool {
	return strings.EqualFold(r.Method, m.Method)
}
func (m Method) Explain() string { return "making " + strings.ToUpper(m.Method) + " requests" }

// SimplePath matches the request path exactly, ignoring any query string.
type SimplePath struct{ Path string }

func (m SimplePath) Matches(r *request.OngoingRequest) bool {
	p := r.Path
	if idx := strings.IndexByte(p, '?'); idx >= 0 {
		p = p[:idx]
	}
	return p == m.Path
}
func (m SimplePath) Explain() string { return "for " + m.Path }

// RegexPath matches the request path against a compiled regular expression.
type RegexPath struct{ Pattern *regexp.Regexp }

// NewRegexPath compiles pattern, returning ErrorInvalidRegex on failure.
func NewRegexPath(pattern string) (RegexPath, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return RegexPath{}, ErrorInvalidRegex.Error(err)
	}
	return RegexPath{Pattern: re}, nil
}

func (m RegexPath) Matches(r *request.OngoingRequest) bool {
	return m.Pattern != nil && m.Pattern.MatchString(r.Path)
}
func (m RegexPath) Explain() string { return "matching " + m.Pattern.String() }

// ExactQuery matches a single query-string key/value pair.
type ExactQuery struct{ Key, Value string }

func (m ExactQuery) Matches(r *request.OngoingRequest) bool {
	return queryValue(r.RawPath, m.Key) == m.Value
}
func (m ExactQuery) Explain() string { return "with query " + m.Key + "=" + m.Value }

func queryValue(rawPath, key string) string {
	idx := strings.IndexByte(rawPath, '?')
	if idx < 0 {
		return ""
	}
	values, err := url.ParseQuery(rawPath[idx+1:])
	if err != nil {
		return ""
	}
	return values.Get(key)
}

// Header matches a single header value case-insensitively by name.
type Header struct{ Name, Value string }

func (m Header) Matches(r *request.OngoingRequest) bool {
	return strings.EqualFold(r.Headers.Cooked.Get(m.Name), m.Value)
}
func (m Header) Explain() string { return "with header " + m.Name + ": " + m.Value }

// Cookie matches a single cookie by name/value, parsed from the Cookie
// header the way net/http does.
type Cookie struct{ Name, Value string }

func (m Cookie) Matches(r *request.OngoingRequest) bool {
	req := &http.Request{Header: r.Headers.Cooked}
	for _, c := range req.Cookies() {
		if c.Name == m.Name && c.Value == m.Value {
			return true
		}
	}
	return false
}
func (m Cookie) Explain() string { return "with cookie " + m.Name + "=" + m.Value }

// BodyText matches the captured request body verbatim.
type BodyText struct{ Text string }

func (m BodyText) Matches(r *request.OngoingRequest) bool {
	return r.Body != nil && string(r.Body.Bytes()) == m.Text
}
func (m BodyText) Explain() string { return "with body " + m.Text }

// BodyJSON matches the captured request body as JSON using subset-equality:
// every key/value in Expected must appear, equal, in the decoded body.
type BodyJSON struct{ Expected map[string]interface{} }

func (m BodyJSON) Matches(r *request.OngoingRequest) bool {
	if r.Body == nil {
		return false
	}
	var got map[string]interface{}
	if err := json.Unmarshal(r.Body.Bytes(), &got); err != nil {
		return false
	}
	for k, v := range m.Expected {
		gv, ok := got[k]
		if !ok || !jsonEqual(gv, v) {
			return false
		}
	}
	return true
}
func (m BodyJSON) Explain() string { return "with matching JSON body" }

func jsonEqual(a, b interface{}) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

// Host matches the resolved destination hostname.
type Host struct{ Hostname string }

func (m Host) Matches(r *request.OngoingRequest) bool {
	return strings.EqualFold(r.Destination.Hostname, m.Hostname)
}
func (m Host) Explain() string { return "for host " + m.Hostname }

// RawProtocol matches raw TCP/TLS passthrough connections by the TLS SNI
// or tunnel target recorded in the Connection, used by the tunnel-level
// (non-HTTP) rule sets.
type RawProtocol struct{ Hostname string }

func (m RawProtocol) Matches(r *request.OngoingRequest) bool {
	if r.Conn == nil {
		return false
	}
	if tls := r.Conn.TLSMetadata(); tls != nil && strings.EqualFold(tls.SNI, m.Hostname) {
		return true
	}
	host, _, err := net.SplitHostPort(r.Conn.TunnelAddress())
	return err == nil && strings.EqualFold(host, m.Hostname)
}
func (m RawProtocol) Explain() string { return "for raw connections to " + m.Hostname }

// FlagHTTPVersion matches the negotiated HTTP version ("1.1" or "2").
type FlagHTTPVersion struct{ Version string }

func (m FlagHTTPVersion) Matches(r *request.OngoingRequest) bool {
	return r.HTTPVersion == m.Version
}
func (m FlagHTTPVersion) Explain() string { return "over HTTP/" + m.Version }

// FlagClientIP matches the remote socket address's IP, ignoring port.
type FlagClientIP struct{ IP string }

func (m FlagClientIP) Matches(r *request.OngoingRequest) bool {
	if r.Conn == nil || r.Conn.RemoteAddr() == nil {
		return false
	}
	host, _, err := net.SplitHostPort(r.Conn.RemoteAddr().String())
	if err != nil {
		host = r.Conn.RemoteAddr().String()
	}
	return host == m.IP
}
func (m FlagClientIP) Explain() string { return "from client IP " + m.IP }
