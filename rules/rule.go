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
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/httptoolkit/mockttp-sub002/events"
	"github.com/httptoolkit/mockttp-sub002/request"
)

// StepResult is what a Step returns after running.
type StepResult struct {
	// Continue, when false, short-circuits the remaining steps in the rule.
	Continue bool
	// Final marks this as the rule's terminating step (closes/ends the
	// response); enforced to be the last step at rule-construction time.
	Final bool
}

// StepEnv is everything a Step needs to act on one matched request. It is a
// plain struct, not an interface, so the rules package stays the single
// place that defines the Step/matcher contract while the step executor
// (a separate package) supplies concrete Step implementations against it.
type StepEnv struct {
	Request        *request.OngoingRequest
	ResponseWriter http.ResponseWriter
	RawConn        io.ReadWriter
	Bus            *events.Bus
	RuleID         string
	// HTTPRequest is populated for WebSocket upgrade attempts, where a step
	// needs the original *http.Request to hand to an Upgrader; plain HTTP
	// steps never need it.
	HTTPRequest *http.Request
}

// Step is one unit of a rule's ordered step list. Concrete kinds
// (simple-reply, forward-to, pass-through, close-connection, ...) live in
// the step-executor package to keep wire/transport concerns (httpcli,
// passthrough) out of the rule-selection package.
type Step interface {
	Kind() string
	Execute(env StepEnv) (StepResult, error)
	Explain() string
}

// Outcome records one completed or aborted handling of a rule, exposed for
// introspection (GetMockedEndpoints/GetPendingEndpoints-style reporting).
type Outcome struct {
	RequestID string
	Aborted   bool
}

// Rule is a stable-id, priority-ordered match/handle unit. At most one of
// its Steps may be Final, and it must be the last one (enforced by
// NewRule, not by the caller).
type Rule struct {
	mu sync.Mutex

	ID         string
	Priority   int
	Matchers   []Matcher
	Steps      []Step
	Completion CompletionChecker

	counter  matchCounter
	outcomes []Outcome
}

// NewRule validates and constructs a Rule with a generated stable id.
func NewRule(priority int, matchers []Matcher, steps []Step, completion CompletionChecker) (*Rule, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}

	return &Rule{
		ID:         uuid.NewString(),
		Priority:   priority,
		Matchers:   matchers,
		Steps:      steps,
		Completion: completion,
	}, nil
}

// finalStep is implemented by step kinds that terminate the response
// (close-connection, reset-connection, simple-reply, ...). The rule
// construction invariant requires at most one such step, and it must be
// last.
type finalStep interface {
	IsFinal() bool
}

func validateSteps(steps []Step) error {
	for i, s := range steps {
		probe, ok := s.(finalStep)
		if !ok || !probe.IsFinal() {
			continue
		}
		if i != len(steps)-1 {
			return ErrorFinalStepNotLast.Error()
		}
	}
	return nil
}

// Matches reports whether every one of the rule's matchers accepts r. A rule
// with zero matchers matches nothing; matching everything requires an
// explicit Wildcard matcher.
func (ru *Rule) Matches(r *request.OngoingRequest) bool {
	if len(ru.Matchers) == 0 {
		return false
	}
	for _, m := range ru.Matchers {
		if !m.Matches(r) {
			return false
		}
	}
	return true
}

// Explain renders every matcher's Explain() joined for diagnostic bodies.
func (ru *Rule) Explain() string {
	s := ""
	for i, m := range ru.Matchers {
		if i > 0 {
			s += " and "
		}
		s += m.Explain()
	}
	return s
}

// IsComplete evaluates the rule's CompletionChecker against its current
// match count. A rule with no CompletionChecker is NotComplete until it has
// handled a request and Unspecified from then on.
func (ru *Rule) IsComplete() Completion {
	if ru.Completion == nil {
		if ru.counter.load() == 0 {
			return NotComplete
		}
		return Unspecified
	}
	return ru.Completion.Status(ru.counter.load())
}

// RequestCount is the live count of matches this rule has recorded,
// incremented synchronously before the first step of a handling runs.
func (ru *Rule) RequestCount() uint64 {
	return ru.counter.load()
}

// MarkHandling increments the rule's request count; the caller must invoke
// this before running the rule's first step, per the synchronous
// increment-before-first-step invariant.
func (ru *Rule) MarkHandling() uint64 {
	return ru.counter.increment()
}

// RecordOutcome appends a completed/aborted outcome for introspection.
func (ru *Rule) RecordOutcome(o Outcome) {
	ru.mu.Lock()
	defer ru.mu.Unlock()
	ru.outcomes = append(ru.outcomes, o)
}

// Outcomes returns a copy of the rule's recorded outcomes.
func (ru *Rule) Outcomes() []Outcome {
	ru.mu.Lock()
	defer ru.mu.Unlock()
	return append([]Outcome(nil), ru.outcomes...)
}

// Dispose releases any resources the rule's steps are holding (pooled
// pass-through connections, etc.) when the rule is replaced by SetRules.
func (ru *Rule) Dispose() {
	for _, s := range ru.Steps {
		if d, ok := s.(interface{ Dispose() }); ok {
			d.Dispose()
		}
	}
}
