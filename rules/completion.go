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

package rules

import (
	"fmt"
	"sync/atomic"
)

// Completion is tri-state: NotComplete means the rule should keep matching
// on future requests, Complete means it is done and should be skipped by
// future selection passes, Unspecified is the status of a rule with no
// completion checker once it has handled a request (before that it is
// NotComplete); such a rule stays eligible.
type Completion int

const (
	Unspecified Completion = iota
	NotComplete
	Complete
)

// CompletionChecker decides, after a rule has matched N times, whether it
// is now exhausted. nil is a valid CompletionChecker; see Rule.IsComplete.
type CompletionChecker interface {
	Status(timesMatched uint64) Completion
	Explain() string
}

// Once completes after a single match.
type Once struct{}

func (Once) Status(n uint64) Completion {
	if n >= 1 {
		return Complete
	}
	return NotComplete
}
func (Once) Explain() string { return "once" }

// Twice completes after two matches.
type Twice struct{}

func (Twice) Status(n uint64) Completion {
	if n >= 2 {
		return Complete
	}
	return NotComplete
}
func (Twice) Explain() string { return "twice" }

// Thrice completes after three matches.
type Thrice struct{}

func (Thrice) Status(n uint64) Completion {
	if n >= 3 {
		return Complete
	}
	return NotComplete
}
func (Thrice) Explain() string { return "three times" }

// Times completes after N matches.
type Times struct{ N uint64 }

func (t Times) Status(n uint64) Completion {
	if n >= t.N {
		return Complete
	}
	return NotComplete
}
func (t Times) Explain() string { return fmt.Sprintf("%d times", t.N) }

// Always never completes.
type Always struct{}

func (Always) Status(uint64) Completion { return NotComplete }
func (Always) Explain() string          { return "any number of times" }

// matchCounter is an atomic, monotonically increasing match count shared by
// a rule's CompletionChecker evaluation and its exposed request-count.
type matchCounter struct {
	n uint64
}

func (c *matchCounter) increment() uint64 {
	return atomic.AddUint64(&c.n, 1)
}

func (c *matchCounter) load() uint64 {
	return atomic.LoadUint64(&c.n)
}
