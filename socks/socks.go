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

// Package socks implements the minimal SOCKS4/SOCKS5 CONNECT handshake the
// combo listener needs to dispatch tunnelled traffic. This hand-rolled
// reader follows the same fixed-header, first-byte-dispatch idiom the combo
// listener itself uses for its outer protocol detection.
package socks

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Target is the destination address requested by a SOCKS CONNECT.
type Target struct {
	Host string
	Port uint16
	// Metadata carries any username/password-extension payload decoded
	// from a SOCKS5 authentication exchange, mirroring the
	// Proxy-Authorization socket-metadata side-channel.
	Metadata []byte
}

func (t Target) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// HandleV4 performs a SOCKS4/4a CONNECT handshake, replying with success,
// and returns the requested target. conn must have already had its first
// byte (0x04) peeked, not consumed; HandleV4 reads the version byte itself.
func HandleV4(conn net.Conn) (Target, error) {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return Target{}, ErrorShortRead.Error(err)
	}
	if hdr[0] != 0x04 || hdr[1] != 0x01 { // version, CONNECT command
		return Target{}, ErrorUnsupportedCommand.Error()
	}

	port := binary.BigEndian.Uint16(hdr[2:4])
	ip := net.IP(hdr[4:8])

	if _, err := readUntilNUL(conn); err != nil { // userid
		return Target{}, ErrorShortRead.Error(err)
	}

	host := ip.String()
	if ip[0] == 0 && ip[1] == 0 && ip[2] == 0 && ip[3] != 0 {
		// SOCKS4a: host follows as a NUL-terminated domain name.
		name, err := readUntilNUL(conn)
		if err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		host = string(name)
	}

	reply := []byte{0x00, 0x5a, hdr[2], hdr[3], hdr[4], hdr[5], hdr[6], hdr[7]}
	if _, err := conn.Write(reply); err != nil {
		return Target{}, ErrorWriteReply.Error(err)
	}

	return Target{Host: host, Port: port}, nil
}

// HandleV5 performs a SOCKS5 CONNECT handshake (no-auth or
// username/password), replying with success, and returns the target.
func HandleV5(conn net.Conn) (Target, error) {
	nm := make([]byte, 2)
	if _, err := io.ReadFull(conn, nm); err != nil {
		return Target{}, ErrorShortRead.Error(err)
	}
	methods := make([]byte, nm[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return Target{}, ErrorShortRead.Error(err)
	}

	var meta []byte
	useAuth := false
	for _, m := range methods {
		if m == 0x02 {
			useAuth = true
		}
	}

	if useAuth {
		if _, err := conn.Write([]byte{0x05, 0x02}); err != nil {
			return Target{}, ErrorWriteReply.Error(err)
		}
		authHdr := make([]byte, 2)
		if _, err := io.ReadFull(conn, authHdr); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		user := make([]byte, authHdr[1])
		if _, err := io.ReadFull(conn, user); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		plen := make([]byte, 1)
		if _, err := io.ReadFull(conn, plen); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		pass := make([]byte, plen[0])
		if _, err := io.ReadFull(conn, pass); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		meta = pass
		if _, err := conn.Write([]byte{0x01, 0x00}); err != nil {
			return Target{}, ErrorWriteReply.Error(err)
		}
	} else {
		if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
			return Target{}, ErrorWriteReply.Error(err)
		}
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return Target{}, ErrorShortRead.Error(err)
	}
	if req[0] != 0x05 || req[1] != 0x01 { // version, CONNECT
		return Target{}, ErrorUnsupportedCommand.Error()
	}

	var host string
	switch req[3] {
	case 0x01: // IPv4
		b := make([]byte, 4)
		if _, err := io.ReadFull(conn, b); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		host = net.IP(b).String()
	case 0x03: // domain name
		l := make([]byte, 1)
		if _, err := io.ReadFull(conn, l); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		b := make([]byte, l[0])
		if _, err := io.ReadFull(conn, b); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		host = string(b)
	case 0x04: // IPv6
		b := make([]byte, 16)
		if _, err := io.ReadFull(conn, b); err != nil {
			return Target{}, ErrorShortRead.Error(err)
		}
		host = net.IP(b).String()
	default:
		return Target{}, ErrorUnsupportedAddress.Error()
	}

	portB := make([]byte, 2)
	if _, err := io.ReadFull(conn, portB); err != nil {
		return Target{}, ErrorShortRead.Error(err)
	}
	port := binary.BigEndian.Uint16(portB)

	reply := []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if _, err := conn.Write(reply); err != nil {
		return Target{}, ErrorWriteReply.Error(err)
	}

	return Target{Host: host, Port: port, Metadata: meta}, nil
}

func readUntilNUL(r io.Reader) ([]byte, error) {
	var out []byte
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		if b[0] == 0 {
			return out, nil
		}
		out = append(out, b[0])
		if len(out) > 4096 {
			return nil, io.ErrShortBuffer
		}
	}
}
