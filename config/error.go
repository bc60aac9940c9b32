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

package config

import (
	liberr "github.com/httptoolkit/mockttp-sub002/errors"
)

const (
	ErrorConfigEmpty liberr.CodeError = iota + liberr.MinPkgConfig
	ErrorConfigValidation
	ErrorConfigDecode
	ErrorConfigPassthroughConflict
)

var isCodeError bool

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = liberr.ExistInMapMessage(ErrorConfigEmpty)
	liberr.RegisterIdFctMessage(ErrorConfigEmpty, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorConfigEmpty:
		return "configuration is nil"
	case ErrorConfigValidation:
		return "configuration failed validation"
	case ErrorConfigDecode:
		return "cannot decode configuration"
	case ErrorConfigPassthroughConflict:
		return "tlsPassthrough and tlsInterceptOnly are mutually exclusive"
	}
	return liberr.NullMessage
}
