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

package tlshello

import (
	liberr "github.com/httptoolkit/mockttp-sub002/errors"
)

const (
	ErrorNotHandshake liberr.CodeError = iota + liberr.MinPkgTLSHello
	ErrorNotClientHello
	ErrorTruncated
)

var isCodeError bool

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = liberr.ExistInMapMessage(ErrorNotHandshake)
	liberr.RegisterIdFctMessage(ErrorNotHandshake, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorNotHandshake:
		return "not a TLS handshake record"
	case ErrorNotClientHello:
		return "not a ClientHello handshake message"
	case ErrorTruncated:
		return "truncated ClientHello"
	}
	return liberr.NullMessage
}
