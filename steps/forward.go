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

package steps

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/httptoolkit/mockttp-sub002/httpcli"
	"github.com/httptoolkit/mockttp-sub002/rules"
)

// ForwardTo rewrites the request's destination and replays it upstream via
// httpcli, copying the upstream response back onto the matched request's
// ResponseWriter.
type ForwardTo struct {
	TargetScheme string
	TargetHost   string
	TargetPort   int
	Client       httpcli.FctHttpClient
}

func (f ForwardTo) Kind() string  { return "forward-to" }
func (f ForwardTo) IsFinal() bool { return true }
func (f ForwardTo) Explain() string {
	return fmt.Sprintf("forward to %s:%d", f.TargetHost, f.TargetPort)
}

func (f ForwardTo) Execute(env rules.StepEnv) (rules.StepResult, error) {
	if env.ResponseWriter == nil {
		return rules.StepResult{}, ErrorNoResponseWriter.Error()
	}
	if env.Request == nil {
		return rules.StepResult{Continue: false, Final: true}, ErrorForwardFailed.Error()
	}

	scheme := f.TargetScheme
	if scheme == "" {
		scheme = env.Request.Destination.Scheme
	}

	target := &url.URL{
		Scheme:   scheme,
		Host:     fmt.Sprintf("%s:%d", f.TargetHost, f.TargetPort),
		Path:     env.Request.Path,
		RawQuery: rawQueryOf(env.Request.RawPath),
	}

	client := f.Client
	if client == nil {
		client = httpcli.GetClient
	}

	req := httpcli.New(client)
	req.SetUrl(target)
	req.Method(env.Request.Method)
	for name, values := range env.Request.Headers.Cooked {
		for _, v := range values {
			req.Header(name, v)
		}
	}
	if env.Request.Body != nil {
		req.RequestReader(env.Request.Body.Reader())
	}

	resp, rerr := req.Do(context.Background())
	if rerr != nil {
		return rules.StepResult{Continue: false, Final: true}, ErrorForwardFailed.Error(rerr)
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			env.ResponseWriter.Header().Add(k, v)
		}
	}
	env.ResponseWriter.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(env.ResponseWriter, resp.Body)

	return rules.StepResult{Continue: false, Final: true}, nil
}

func rawQueryOf(rawPath string) string {
	for i, c := range rawPath {
		if c == '?' {
			return rawPath[i+1:]
		}
	}
	return ""
}
