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
	"sort"

	"github.com/httptoolkit/mockttp-sub002/request"

	libatm "github.com/httptoolkit/mockttp-sub002/atomic"
)

// Set is a priority-indexed, insertion-ordered collection of rules. A Set
// is immutable once published: SetRules/AddRules construct a new Set and
// atomically swap it in, so a matcher holds a stable snapshot for the
// duration of one request, using an atomic.Value[T] generic for a
// lock-free read path.
type Set struct {
	priorities []int      // descending
	byPriority [][]*Rule  // parallel to priorities, insertion order within
}

// Store holds the live Set for request or WebSocket rules and exposes the
// atomic swap used by Admin.SetRules/AddRules.
type Store struct {
	current libatm.Value[*Set]
}

// NewStore starts with an empty rule set.
func NewStore() *Store {
	s := &Store{current: libatm.NewValue[*Set]()}
	s.current.Store(newSet(nil))
	return s
}

func newSet(rules []*Rule) *Set {
	byPrio := make(map[int][]*Rule)
	for _, r := range rules {
		byPrio[r.Priority] = append(byPrio[r.Priority], r)
	}
	prios := make([]int, 0, len(byPrio))
	for p := range byPrio {
		prios = append(prios, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(prios)))
	ordered := make([][]*Rule, len(prios))
	for i, p := range prios {
		ordered[i] = byPrio[p]
	}
	return &Set{priorities: prios, byPriority: ordered}
}

// Snapshot returns the currently published Set for one request's matching
// pass.
func (s *Store) Snapshot() *Set {
	return s.current.Load()
}

// SetRules replaces the published Set wholesale, disposing every rule that
// was in the outgoing set.
func (s *Store) SetRules(rules []*Rule) {
	outgoing := s.current.Load()
	s.current.Store(newSet(rules))
	disposeSet(outgoing)
}

// AddRules appends to the currently published Set without disposing
// anything.
func (s *Store) AddRules(rules []*Rule) {
	cur := s.current.Load()
	merged := append(cur.allRules(), rules...)
	s.current.Store(newSet(merged))
}

func disposeSet(s *Set) {
	if s == nil {
		return
	}
	for _, bucket := range s.byPriority {
		for _, r := range bucket {
			r.Dispose()
		}
	}
}

func (s *Set) allRules() []*Rule {
	if s == nil {
		return nil
	}
	var all []*Rule
	for _, bucket := range s.byPriority {
		all = append(all, bucket...)
	}
	return all
}

// AllRules exposes every rule in the set for introspection
// (GetMockedEndpoints/GetPendingEndpoints).
func (s *Set) AllRules() []*Rule {
	return s.allRules()
}

// Select runs the single-pass rule-selection algorithm: walk priorities
// descending, within a priority only consider rules that
// are not already Complete, prefer the first NotComplete match, and fall
// back to the last match at that priority if its status is Unspecified.
func Select(s *Set, r *request.OngoingRequest) *Rule {
	if s == nil {
		return nil
	}
	for _, bucket := range s.byPriority {
		var last *Rule
		for _, rule := range bucket {
			if rule.IsComplete() == Complete {
				continue
			}
			if !rule.Matches(r) {
				continue
			}
			if rule.IsComplete() == NotComplete {
				return rule
			}
			last = rule
		}
		if last != nil && last.IsComplete() == Unspecified {
			return last
		}
	}
	return nil
}
