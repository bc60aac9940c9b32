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

// Package steps implements the step executor (C8) and the concrete step
// kinds a matched rule runs: simple-reply, forward-to, pass-through,
// close-connection, reset-connection, timeout and delay.
package steps

import (
	"github.com/httptoolkit/mockttp-sub002/rules"
)

// Run executes rule's steps in order against env. It increments the rule's
// request count synchronously before the first step runs, then runs steps
// sequentially, stopping early on the first {Continue: false} result or
// error.
func Run(rule *rules.Rule, env rules.StepEnv) error {
	rule.MarkHandling()

	requestID := ""
	if env.Request != nil {
		requestID = env.Request.ID
	}

	aborted := false
	for _, s := range rule.Steps {
		result, err := s.Execute(env)
		if err != nil {
			aborted = true
			rule.RecordOutcome(rules.Outcome{RequestID: requestID, Aborted: true})
			return err
		}
		if !result.Continue {
			break
		}
	}

	rule.RecordOutcome(rules.Outcome{RequestID: requestID, Aborted: aborted})
	return nil
}
