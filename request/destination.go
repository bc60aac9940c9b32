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
	"net"
	"net/url"
	"strconv"
)

// Destination is the resolved upstream target and scheme for a request.
type Destination struct {
	Scheme   string
	Hostname string
	Port     int
}

func (d Destination) HostPort() string {
	return net.JoinHostPort(d.Hostname, strconv.Itoa(d.Port))
}

// ResolveInput captures every signal the destination-resolution algorithm
// can draw on.
type ResolveInput struct {
	// AbsoluteURL is set when the request line carried an absolute-form
	// URL (classic plain-HTTP proxying).
	AbsoluteURL *url.URL
	// TunnelAddress is the CONNECT/SOCKS target, host:port, if any.
	TunnelAddress string
	// Authority is the HTTP/2 :authority pseudo-header, if any.
	Authority string
	// Host is the HTTP/1 Host header, if any.
	Host string
	// SNI is the TLS ClientHello server name, if any.
	SNI string
	// LastHopEncrypted reports whether the client's transport to us was TLS.
	LastHopEncrypted bool
	// SchemePseudoHeader is the HTTP/2 :scheme pseudo-header, if any.
	SchemePseudoHeader string
	// IsWebSocket marks an Upgrade: websocket request, rewriting the
	// resolved scheme to ws/wss.
	IsWebSocket bool
}

// Resolve applies the destination-resolution precedence order. For an
// absolute-form request line the URL supplies scheme and port, but a tunnel
// target's host (and non-zero port) overrides it. Otherwise the hostname is
// taken from the first of: a tunnel target that is a DNS name, :authority,
// Host, SNI, a tunnel target that is an IP, "localhost"; the port comes from
// the tunnel target when there is one.
func Resolve(in ResolveInput) Destination {
	if in.AbsoluteURL != nil && in.AbsoluteURL.Host != "" {
		return resolveAbsolute(in)
	}
	return resolveRelative(in)
}

func resolveAbsolute(in ResolveInput) Destination {
	scheme := in.AbsoluteURL.Scheme
	if scheme == "" {
		scheme = schemeFromEncryption(in.LastHopEncrypted)
	}

	host, port := splitHostPortDefault(in.AbsoluteURL.Host, defaultPort(scheme))
	if tHost, tPort, ok := splitTunnel(in.TunnelAddress); ok {
		host = tHost
		if tPort != 0 {
			port = tPort
		}
	}

	return finishDestination(scheme, host, port, in.IsWebSocket)
}

func resolveRelative(in ResolveInput) Destination {
	scheme := in.SchemePseudoHeader
	if scheme == "" {
		scheme = schemeFromEncryption(in.LastHopEncrypted)
	}

	tunnelHost, tunnelPort, tunnelOK := splitTunnel(in.TunnelAddress)
	tunnelIsDNSName := tunnelOK && tunnelHost != "" && net.ParseIP(tunnelHost) == nil

	var hostname string
	switch {
	case tunnelIsDNSName:
		hostname = tunnelHost
	case in.Authority != "":
		hostname, _ = splitHostPortDefault(in.Authority, 0)
	case in.Host != "":
		hostname, _ = splitHostPortDefault(in.Host, 0)
	case in.SNI != "":
		hostname = in.SNI
	case tunnelOK && tunnelHost != "":
		hostname = tunnelHost
	default:
		hostname = "localhost"
	}

	// The destination port is always the true tunnel port, even when a
	// Host/:authority header names a different port or none at all —
	// the legacy, still-supported behaviour this module preserves.
	port := defaultPort(scheme)
	if tunnelOK && tunnelPort != 0 {
		port = tunnelPort
	} else if in.Authority != "" {
		if _, p := splitHostPortDefault(in.Authority, 0); p != 0 {
			port = p
		}
	} else if in.Host != "" {
		if _, p := splitHostPortDefault(in.Host, 0); p != 0 {
			port = p
		}
	}

	return finishDestination(scheme, hostname, port, in.IsWebSocket)
}

func finishDestination(scheme, hostname string, port int, isWebSocket bool) Destination {
	if isWebSocket {
		switch scheme {
		case "https":
			scheme = "wss"
		default:
			scheme = "ws"
		}
	}
	return Destination{Scheme: scheme, Hostname: hostname, Port: port}
}

func schemeFromEncryption(encrypted bool) string {
	if encrypted {
		return "https"
	}
	return "http"
}

func defaultPort(scheme string) int {
	switch scheme {
	case "https", "wss":
		return 443
	default:
		return 80
	}
}

// splitTunnel parses a host:port tunnel address. ok is false if addr is empty.
func splitTunnel(addr string) (host string, port int, ok bool) {
	if addr == "" {
		return "", 0, false
	}
	h, p := splitHostPortDefault(addr, 0)
	return h, p, true
}

// splitHostPortDefault splits "host" or "host:port"; returns def if no port.
func splitHostPortDefault(hostport string, def int) (string, int) {
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, def
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return h, def
	}
	return h, n
}
