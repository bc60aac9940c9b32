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

package ca

import (
	liberr "github.com/httptoolkit/mockttp-sub002/errors"
)

const (
	ErrorRootKeyGenerate liberr.CodeError = iota + liberr.MinPkgCA
	ErrorRootCertCreate
	ErrorLeafKeyGenerate
	ErrorLeafGenerate
	ErrorRootLoad
)

var isCodeError bool

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = liberr.ExistInMapMessage(ErrorRootKeyGenerate)
	liberr.RegisterIdFctMessage(ErrorRootKeyGenerate, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorRootKeyGenerate:
		return "cannot generate CA root key"
	case ErrorRootCertCreate:
		return "cannot create CA root certificate"
	case ErrorLeafKeyGenerate:
		return "cannot generate leaf key"
	case ErrorLeafGenerate:
		return "cannot generate leaf certificate"
	case ErrorRootLoad:
		return "cannot load CA root certificate/key"
	}
	return liberr.NullMessage
}
