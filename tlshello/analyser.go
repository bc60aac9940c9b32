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

package tlshello

import (
	"path"
	"strings"
)

// Route is the Analyser's decision for a peeked socket.
type Route int

const (
	RouteIntercept Route = iota
	RoutePassthrough
)

// Decide applies the tls-passthrough and tls-intercept-only host-pattern
// lists, which are mutually exclusive: with a passthrough list, a matching
// destination is passed through; with an intercept-only list, a destination
// that does NOT match it is passed through. Everything else is intercepted.
func Decide(destination string, passthrough, interceptOnly []string) Route {
	if len(passthrough) > 0 {
		if matchesAny(destination, passthrough) {
			return RoutePassthrough
		}
		return RouteIntercept
	}
	if len(interceptOnly) > 0 {
		if matchesAny(destination, interceptOnly) {
			return RouteIntercept
		}
		return RoutePassthrough
	}
	return RouteIntercept
}

func matchesAny(host string, patterns []string) bool {
	host = strings.ToLower(host)
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), host); ok {
			return true
		}
		if strings.EqualFold(p, host) {
			return true
		}
	}
	return false
}

// Destination resolves the upstream hostname the Analyser should route on:
// the tunnel address if one is known, otherwise the ClientHello SNI.
func Destination(tunnelAddress, sni string) string {
	if tunnelAddress != "" {
		if h, _, err := splitHostPort(tunnelAddress); err == nil {
			return h
		}
		return tunnelAddress
	}
	return sni
}

func splitHostPort(hostport string) (string, string, error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, "", nil
	}
	return hostport[:idx], hostport[idx+1:], nil
}

// NegotiateALPN picks the server's ALPN response given the configured
// preference and the client's offered protocol list.
func NegotiateALPN(preference string, offered []string) string {
	has := func(p string) bool {
		for _, o := range offered {
			if o == p {
				return true
			}
		}
		return false
	}

	switch preference {
	case "http2-only":
		if has("h2") {
			return "h2"
		}
	case "http1-only":
		if has("http/1.1") {
			return "http/1.1"
		}
	default: // fallback
		if has("h2") {
			return "h2"
		}
		if has("http/1.1") {
			return "http/1.1"
		}
	}

	if len(offered) > 0 {
		return offered[0]
	}
	return ""
}
