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

package server

import (
	liberr "github.com/httptoolkit/mockttp-sub002/errors"
)

const (
	ErrorAlreadyRunning liberr.CodeError = iota + liberr.MinPkgServer
	ErrorNotRunning
	ErrorListen
	ErrorCAInit
	ErrorPortRangeExhausted
)

var isCodeError bool

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = liberr.ExistInMapMessage(ErrorAlreadyRunning)
	liberr.RegisterIdFctMessage(ErrorAlreadyRunning, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorAlreadyRunning:
		return "server is already running"
	case ErrorNotRunning:
		return "server is not running"
	case ErrorListen:
		return "failed to bind the combo listener"
	case ErrorCAInit:
		return "failed to initialise the signing CA"
	case ErrorPortRangeExhausted:
		return "no free port found in the configured range"
	}
	return liberr.NullMessage
}
