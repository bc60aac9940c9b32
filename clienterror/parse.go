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

package clienterror

import (
	"bytes"
	"strings"

	"github.com/httptoolkit/mockttp-sub002/request"
)

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// IsBadHTTP2Preface reports whether buf starts like an attempt at the
// HTTP/2 connection preface but diverges from it, which callers tag
// "client-error:bad-preface".
func IsBadHTTP2Preface(buf []byte) bool {
	const prefix = "PRI "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return false
	}
	n := len(buf)
	if n > len(http2Preface) {
		n = len(http2Preface)
	}
	return !bytes.Equal(buf[:n], []byte(http2Preface)[:n])
}

// bestEffortParse recovers as much of a request line plus headers as it
// can from a possibly-truncated or malformed byte buffer. It never returns
// a fatal error for the caller to abort on; err is informational only and
// still reported alongside whatever ParsedRequest fields could be
// recovered.
func bestEffortParse(buf []byte) (*ParsedRequest, error) {
	if len(buf) == 0 {
		return nil, ErrorMalformedRequest.Error()
	}

	text := string(buf)
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 {
		return nil, ErrorMalformedRequest.Error()
	}

	parsed := &ParsedRequest{}
	var err error

	parts := strings.Fields(lines[0])
	switch len(parts) {
	case 3:
		parsed.Method, parsed.URL, parsed.Version = parts[0], parts[1], parts[2]
	case 2:
		parsed.Method, parsed.URL = parts[0], parts[1]
		err = ErrorMalformedRequest.Error()
	case 1:
		parsed.Method = parts[0]
		err = ErrorMalformedRequest.Error()
	default:
		err = ErrorMalformedRequest.Error()
	}

	var raw []request.RawHeader
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		raw = append(raw, request.RawHeader{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	parsed.Headers = request.NewHeaders(raw)

	return parsed, err
}
