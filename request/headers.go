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

package request

import (
	"net/http"
	"strings"
)

// RawHeader is a single header field exactly as it appeared on the wire:
// original casing, original order, pseudo-headers included for HTTP/2.
type RawHeader struct {
	Name  string
	Value string
}

// Headers holds both the raw, ordered view and the cooked, normalised view
// of a request's headers.
type Headers struct {
	Raw    []RawHeader
	Cooked http.Header
}

// NewHeaders builds both views from an ordered raw list. Cooking stores
// names in http.Header's canonical form (e.g. "Content-Type"), so cooked
// names are not lower-cased; it strips HTTP/2 pseudo-headers, joins repeated
// Cookie headers with "; ", and synthesizes Host from :authority when present.
func NewHeaders(raw []RawHeader) Headers {
	h := Headers{Raw: raw, Cooked: make(http.Header)}

	var cookies []string
	for _, f := range raw {
		if strings.HasPrefix(f.Name, ":") {
			continue
		}
		if strings.EqualFold(f.Name, "cookie") {
			cookies = append(cookies, f.Value)
			continue
		}
		h.Cooked.Add(f.Name, f.Value)
	}
	if len(cookies) > 0 {
		h.Cooked.Set("Cookie", strings.Join(cookies, "; "))
	}

	if authority := PseudoHeader(raw, ":authority"); authority != "" && h.Cooked.Get("Host") == "" {
		h.Cooked.Set("Host", authority)
	}

	return h
}

// PseudoHeader returns the value of an HTTP/2 pseudo-header (":method",
// ":scheme", ":authority", ":path") from the raw, ordered list.
func PseudoHeader(raw []RawHeader, name string) string {
	for _, f := range raw {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// StripProxyHeaders removes Proxy-Authorization and Proxy-Connection from
// both views, per §6.4's absolute-URL proxy-request handling; it returns
// the stripped Proxy-Authorization value, if any, for request-scoped
// socket-metadata decoding by the caller.
func StripProxyHeaders(h *Headers) string {
	auth := h.Cooked.Get("Proxy-Authorization")
	h.Cooked.Del("Proxy-Authorization")
	h.Cooked.Del("Proxy-Connection")

	filtered := h.Raw[:0:0]
	for _, f := range h.Raw {
		if strings.EqualFold(f.Name, "Proxy-Authorization") || strings.EqualFold(f.Name, "Proxy-Connection") {
			continue
		}
		filtered = append(filtered, f)
	}
	h.Raw = filtered

	return auth
}
