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
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/httptoolkit/mockttp-sub002/ioutils/bufferReadCloser"
)

// Body is a replayable capture of a request or response body: the bytes are
// read once into a buffer when Capture is first called, and every subsequent
// Reader() call hands back an independent reader over the same bytes, so a
// request body can be replayed across multiple steps in the same rule.
type Body struct {
	raw      []byte
	captured bool
	maxBytes int64
}

// NewBody returns an empty Body that captures at most maxBytes bytes
// (0 = unbounded) the first time Capture is called.
func NewBody(maxBytes int64) *Body {
	return &Body{maxBytes: maxBytes}
}

// Capture reads src fully (bounded by maxBytes) into the replay buffer,
// grounded on ioutils/bufferReadCloser.Buffer for the intermediate sink.
func (b *Body) Capture(src io.Reader) error {
	if b.captured {
		return nil
	}

	underlying := bytes.NewBuffer(nil)
	sink := bufferReadCloser.NewBuffer(underlying, nil)
	defer sink.Close()

	r := src
	if b.maxBytes > 0 {
		r = io.LimitReader(src, b.maxBytes)
	}
	if _, err := sink.ReadFrom(r); err != nil {
		return ErrorBodyRead.Error(err)
	}

	b.raw = append([]byte(nil), underlying.Bytes()...)
	b.captured = true
	return nil
}

// Bytes returns the captured body, or nil if Capture was never called.
func (b *Body) Bytes() []byte {
	return b.raw
}

// Reader returns a fresh, independent reader over the captured bytes.
func (b *Body) Reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b.raw))
}

// DecodeContentEncoding applies the Content-Encoding decode chain: a single
// token or comma-separated list, decoders applied in reverse of the list
// order (the order the origin applied them).
func DecodeContentEncoding(body io.Reader, contentEncoding string) (io.Reader, error) {
	if contentEncoding == "" {
		return body, nil
	}

	tokens := strings.Split(contentEncoding, ",")
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := strings.ToLower(strings.TrimSpace(tokens[i]))
		var err error
		body, err = decodeOne(body, tok)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func decodeOne(body io.Reader, token string) (io.Reader, error) {
	switch token {
	case "identity", "":
		return body, nil
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	case "deflate":
		return decodeDeflate(body)
	case "br":
		return brotli.NewReader(body), nil
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return nil, ErrorUnsupportedEncoding.Error(err)
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, ErrorUnsupportedEncoding.Error()
	}
}

// decodeDeflate sniffs for the zlib header that RFC 2616's "deflate" token
// is routinely (and incorrectly) used to mean either with or without.
func decodeDeflate(body io.Reader) (io.Reader, error) {
	br := bufio.NewReader(body)
	head, err := br.Peek(2)
	if err == nil && len(head) == 2 && head[0] == 0x78 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}
