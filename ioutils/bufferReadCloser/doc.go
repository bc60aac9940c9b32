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

// Package bufferReadCloser provides a lightweight wrapper around bytes.Buffer
// that adds io.Closer support with automatic reset and an optional custom
// close callback.
//
// # Design Philosophy
//
//  1. Minimal overhead: a thin wrapper with zero-copy passthrough to the
//     underlying buffer
//  2. Lifecycle management: automatic reset on close
//  3. Flexibility: an optional custom close function for additional cleanup
//  4. Defensive: sensible defaults when nil parameters are passed
//
// # Wrapper Behavior
//
// Buffer (bytes.Buffer wrapper):
//   - On Close: resets the buffer (clears all data) then calls the custom close func
//   - Nil handling: a nil *bytes.Buffer creates an empty buffer
//   - Use case: in-memory read/write body staging with lifecycle management, such
//     as the intermediate sink used while buffering a request body for replay
//
// # Typical Use Cases
//
// Buffer Pool Integration:
//
//	buf := bufferPool.Get().(*bytes.Buffer)
//	wrapped := bufferReadCloser.NewBuffer(buf, func() error {
//	    bufferPool.Put(buf)
//	    return nil
//	})
//	defer wrapped.Close() // Resets and returns to pool
//
// Testing with Lifecycle Tracking:
//
//	tracker := &TestTracker{}
//	buf := bufferReadCloser.NewBuffer(bytes.NewBuffer(nil), tracker.OnClose)
//	defer buf.Close()
//	// Test code...
//	// tracker.Closed will be true after Close()
//
// # Error Handling
//
// Close returns any error from the custom close function. The package follows
// Go conventions: errors are returned, never panicked.
//
// # Thread Safety
//
// Like the underlying bytes.Buffer, this wrapper is NOT thread-safe.
// Concurrent access requires external synchronization (e.g., sync.Mutex).
package bufferReadCloser
