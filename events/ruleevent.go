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

package events

import (
	"github.com/fxamacker/cbor/v2"
)

// RuleEvent is a step-emitted, rule-scoped side channel value (used for
// things like GetPendingEndpoints-style introspection payloads) that needs
// a compact, typed wire form.
type RuleEvent struct {
	RuleID string
	Label  string
	Data   interface{}
}

// MarshalCBOR encodes a RuleEvent compactly for transport to out-of-process
// subscribers (e.g. an admin API).
func MarshalCBOR(e RuleEvent) ([]byte, error) {
	return cbor.Marshal(e)
}

// UnmarshalCBOR decodes a RuleEvent previously produced by MarshalCBOR.
func UnmarshalCBOR(b []byte) (RuleEvent, error) {
	var e RuleEvent
	err := cbor.Unmarshal(b, &e)
	return e, err
}
