/*
 *  MIT License
 *
 *  Copyright (c) 2020 Nicolas JUHEL
 *
 *  Permission is hereby granted, free of charge, to any person obtaining a copy
 *  of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 *  to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *  copies of the Software, and to permit persons to whom the Software is
 *  furnished to do so, subject to the following conditions:
 *
 *  The above copyright notice and this permission notice shall be included in all
 *  copies or substantial portions of the Software.
 *
 *  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *  IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *  AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *  LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *  SOFTWARE.
 *
 */

package bufferReadCloser

import (
	"bytes"
	"io"
)

// FuncClose is an optional custom close function that is called when a wrapper is closed.
// It allows for additional cleanup logic beyond the default reset behavior.
//
// The function is called after the wrapper's internal cleanup (buffer reset) but before
// returning from Close(). Any error returned by FuncClose is propagated to the caller.
//
// Common use cases:
//   - Closing underlying file handles or network connections
//   - Returning buffers to sync.Pool
//   - Updating metrics or logging
//   - Releasing external resources
type FuncClose func() error

// Buffer is a wrapper around bytes.Buffer that implements io.Closer.
// It provides all the standard buffer interfaces with automatic reset on close.
//
// The Buffer interface combines reading and writing capabilities with lifecycle management.
// When Close() is called, the underlying buffer is reset (all data cleared) and any
// custom close function is executed.
//
// All I/O operations are delegated directly to the underlying bytes.Buffer with zero
// overhead. The wrapper only adds the Close() method for lifecycle management.
//
// Thread safety: Not thread-safe. Concurrent access requires external synchronization.
type Buffer interface {
	io.Reader       // Read reads data from the buffer
	io.ReaderFrom   // ReadFrom reads data from a reader into the buffer
	io.ByteReader   // ReadByte reads a single byte
	io.RuneReader   // ReadRune reads a single UTF-8 encoded rune
	io.Writer       // Write writes data to the buffer
	io.WriterTo     // WriteTo writes buffer data to a writer
	io.ByteWriter   // WriteByte writes a single byte
	io.StringWriter // WriteString writes a string
	io.Closer       // Close resets the buffer and calls custom close function
}

// NewBuffer creates a new Buffer from a bytes.Buffer and an optional FuncClose.
//
// Parameters:
//   - b: The underlying bytes.Buffer to wrap. If nil, a new empty buffer is created.
//   - fct: Optional custom close function. If not nil, called after buffer reset.
//
// The returned Buffer delegates all I/O operations to the underlying bytes.Buffer.
// On Close(), the buffer is reset (cleared) and then fct is called if provided.
//
// Nil handling: Passing nil for b creates a new empty buffer, allowing immediate use
// without additional initialization. This is useful for testing or when a buffer is
// conditionally needed.
//
// Example:
//
//	buf := NewBuffer(bytes.NewBuffer(nil), nil)
//	defer buf.Close()
//	buf.WriteString("data")
func NewBuffer(b *bytes.Buffer, fct FuncClose) Buffer {
	if b == nil {
		b = bytes.NewBuffer([]byte{})
	}
	return &buf{
		b: b,
		f: fct,
	}
}
