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
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Hello is the set of ClientHello attributes the Analyser attaches to a
// Connection as tls-metadata.
type Hello struct {
	SNI            string
	ALPN           []string
	CipherSuites   []uint16
	Extensions     []uint16
	SupportedCurve []uint16
	PointFormats   []uint8
	JA3            string
	JA3Hash        string
	JA4            string
}

const (
	recordHandshake  = 0x16
	handshakeClient  = 0x01
	extServerName    = 0x0000
	extSupportedGrp  = 0x000a
	extECPointFormat = 0x000b
	extALPN          = 0x0010
)

// ParseClientHello parses a single TLS record containing a ClientHello
// handshake message from raw bytes peeked off the wire (RFC 8446 §4,
// RFC 5246 §7.4.1.2). It does not consume the handshake: callers are
// expected to replay the same bytes into the real TLS handshake afterwards.
func ParseClientHello(b []byte) (*Hello, error) {
	if len(b) < 5 || b[0] != recordHandshake {
		return nil, ErrorNotHandshake.Error()
	}

	recLen := int(binary.BigEndian.Uint16(b[3:5]))
	if len(b) < 5+recLen {
		return nil, ErrorTruncated.Error()
	}

	body := b[5 : 5+recLen]
	if len(body) < 4 || body[0] != handshakeClient {
		return nil, ErrorNotClientHello.Error()
	}

	hsLen := int(body[1])<<16 | int(body[2])<<8 | int(body[3])
	if len(body) < 4+hsLen {
		return nil, ErrorTruncated.Error()
	}
	ch := body[4 : 4+hsLen]

	r := &reader{b: ch}

	version, ok := r.u16()
	if !ok {
		return nil, ErrorTruncated.Error()
	}

	if !r.skip(32) { // random
		return nil, ErrorTruncated.Error()
	}

	sidLen, ok := r.u8()
	if !ok || !r.skip(int(sidLen)) {
		return nil, ErrorTruncated.Error()
	}

	csLen, ok := r.u16()
	if !ok {
		return nil, ErrorTruncated.Error()
	}
	csBytes, ok := r.bytes(int(csLen))
	if !ok {
		return nil, ErrorTruncated.Error()
	}
	var ciphers []uint16
	for i := 0; i+1 < len(csBytes); i += 2 {
		ciphers = append(ciphers, binary.BigEndian.Uint16(csBytes[i:i+2]))
	}

	cmLen, ok := r.u8()
	if !ok || !r.skip(int(cmLen)) {
		return nil, ErrorTruncated.Error()
	}

	h := &Hello{CipherSuites: ciphers}

	extTotalLen, ok := r.u16()
	if ok {
		extBytes, ok := r.bytes(int(extTotalLen))
		if ok {
			parseExtensions(extBytes, h)
		}
	}

	h.JA3, h.JA3Hash = computeJA3(version, h)
	h.JA4 = computeJA4(version, h)

	return h, nil
}

func parseExtensions(b []byte, h *Hello) {
	r := &reader{b: b}
	for {
		typ, ok := r.u16()
		if !ok {
			return
		}
		l, ok := r.u16()
		if !ok {
			return
		}
		data, ok := r.bytes(int(l))
		if !ok {
			return
		}
		h.Extensions = append(h.Extensions, typ)

		switch typ {
		case extServerName:
			h.SNI = parseSNI(data)
		case extALPN:
			h.ALPN = parseALPN(data)
		case extSupportedGrp:
			h.SupportedCurve = parseU16List(data)
		case extECPointFormat:
			if len(data) > 0 {
				n := int(data[0])
				if n <= len(data)-1 {
					h.PointFormats = append([]uint8(nil), data[1:1+n]...)
				}
			}
		}
	}
}

func parseSNI(b []byte) string {
	rr := &reader{b: b}
	if _, ok := rr.u16(); !ok { // server name list length
		return ""
	}
	for {
		nameType, ok := rr.u8()
		if !ok {
			return ""
		}
		nameLen, ok := rr.u16()
		if !ok {
			return ""
		}
		name, ok := rr.bytes(int(nameLen))
		if !ok {
			return ""
		}
		if nameType == 0 {
			return string(name)
		}
	}
}

func parseALPN(b []byte) []string {
	rr := &reader{b: b}
	if _, ok := rr.u16(); !ok {
		return nil
	}
	var out []string
	for {
		l, ok := rr.u8()
		if !ok {
			return out
		}
		name, ok := rr.bytes(int(l))
		if !ok {
			return out
		}
		out = append(out, string(name))
	}
}

func parseU16List(b []byte) []uint16 {
	rr := &reader{b: b}
	if _, ok := rr.u16(); !ok {
		return nil
	}
	var out []uint16
	for {
		v, ok := rr.u16()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// computeJA3 builds the classic JA3 string
// "version,ciphers,extensions,curves,pointFormats" and its MD5 hash.
func computeJA3(version uint16, h *Hello) (string, string) {
	s := fmt.Sprintf("%d,%s,%s,%s,%s",
		version,
		joinU16(h.CipherSuites),
		joinU16(h.Extensions),
		joinU16(h.SupportedCurve),
		joinU8(h.PointFormats),
	)
	sum := md5.Sum([]byte(s))
	return s, hex.EncodeToString(sum[:])
}

// computeJA4 builds a simplified JA4 fingerprint: protocol+version+sni
// flag+cipher count+extension count, followed by truncated SHA-256 hashes
// of the sorted cipher and extension lists, in the spirit of the public
// JA4 specification.
func computeJA4(version uint16, h *Hello) string {
	sniFlag := "i"
	if h.SNI != "" {
		sniFlag = "d"
	}

	alpnTag := "00"
	if len(h.ALPN) > 0 {
		a := h.ALPN[0]
		if len(a) >= 2 {
			alpnTag = a[:1] + a[len(a)-1:]
		}
	}

	head := fmt.Sprintf("t%s%s%02d%02d%s", ja4Version(version), sniFlag, len(h.CipherSuites), len(h.Extensions), alpnTag)

	cipherHash := truncatedSHA256(joinU16Sorted(h.CipherSuites))
	extHash := truncatedSHA256(joinU16Sorted(h.Extensions))

	return fmt.Sprintf("%s_%s_%s", head, cipherHash, extHash)
}

func ja4Version(v uint16) string {
	switch v {
	case 0x0304:
		return "13"
	case 0x0303:
		return "12"
	case 0x0302:
		return "11"
	case 0x0301:
		return "10"
	default:
		return "00"
	}
}

func truncatedSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

func joinU16(v []uint16) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(int(x))
	}
	return strings.Join(parts, "-")
}

func joinU16Sorted(v []uint16) string {
	cp := append([]uint16(nil), v...)
	for i := 1; i < len(cp); i++ {
		for j := i; j > 0 && cp[j-1] > cp[j]; j-- {
			cp[j-1], cp[j] = cp[j], cp[j-1]
		}
	}
	return joinU16(cp)
}

func joinU8(v []uint8) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(int(x))
	}
	return strings.Join(parts, "-")
}

type reader struct {
	b   []byte
	pos int
}

func (r *reader) u8() (uint8, bool) {
	if r.pos+1 > len(r.b) {
		return 0, false
	}
	v := r.b[r.pos]
	r.pos++
	return v, true
}

func (r *reader) u16() (uint16, bool) {
	if r.pos+2 > len(r.b) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(r.b[r.pos : r.pos+2])
	r.pos += 2
	return v, true
}

func (r *reader) skip(n int) bool {
	if r.pos+n > len(r.b) {
		return false
	}
	r.pos += n
	return true
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if r.pos+n > len(r.b) {
		return nil, false
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, true
}
