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

package log

import (
	"github.com/sirupsen/logrus"
)

// Entry is a single in-flight log record being built up before Log() flushes
// it through logrus. The zero value is not usable; obtain one via
// Logger.Entry.
type Entry struct {
	log *logrus.Logger
	lvl logrus.Level
	msg string
	fld logrus.Fields
	err []error
}

// FieldAdd attaches a structured field to the entry and returns it for
// chaining.
func (e *Entry) FieldAdd(key string, val interface{}) *Entry {
	if e == nil {
		return e
	}
	if e.fld == nil {
		e.fld = make(logrus.Fields)
	}
	e.fld[key] = val
	return e
}

// ErrorAdd attaches one or more errors to the entry, skipping nils. A single
// attached error is rendered under the "error" field, several under the
// "errors" field, and either escalates the effective level to Error if the
// entry was built at a lower level.
func (e *Entry) ErrorAdd(err ...error) *Entry {
	if e == nil {
		return e
	}
	for _, er := range err {
		if er != nil {
			e.err = append(e.err, er)
		}
	}
	return e
}

// Log flushes the entry to the underlying logrus.Logger.
func (e *Entry) Log() {
	if e == nil || e.log == nil {
		return
	}

	lvl := e.lvl
	f := e.fld
	if f == nil {
		f = make(logrus.Fields)
	}

	if len(e.err) == 1 {
		f["error"] = e.err[0].Error()
		if lvl > logrus.ErrorLevel {
			lvl = logrus.ErrorLevel
		}
	} else if len(e.err) > 1 {
		msgs := make([]string, 0, len(e.err))
		for _, er := range e.err {
			msgs = append(msgs, er.Error())
		}
		f["errors"] = msgs
		if lvl > logrus.ErrorLevel {
			lvl = logrus.ErrorLevel
		}
	}

	e.log.WithFields(f).Log(lvl, e.msg)
}
