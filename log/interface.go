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

// Package log is a small logrus-backed logging facade shared by every
// component package. It mirrors the Entry().Field().Error().Log() call-site
// idiom without pulling in a web-framework dependency.
package log

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// FuncLog returns a Logger instance. Packages accept this instead of a bare
// Logger so the caller can defer construction or swap loggers at runtime.
type FuncLog func() Logger

// Logger is the logging surface used throughout the server.
type Logger interface {
	SetLevel(lvl logrus.Level)
	GetLevel() logrus.Level
	SetFields(f Fields)
	Entry(lvl logrus.Level, msg string) *Entry
}

// Fields is a set of structured key/value pairs attached to every entry.
type Fields map[string]interface{}

type lgr struct {
	mu  sync.RWMutex
	log *logrus.Logger
	fld Fields
}

// New returns a Logger writing to stderr via logrus's default text
// formatter.
func New() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &lgr{log: l, fld: make(Fields)}
}

// NewWithLogrus wraps an already-configured *logrus.Logger, letting callers
// wire their own hooks/formatter/output while keeping this package's Entry
// builder API.
func NewWithLogrus(l *logrus.Logger) Logger {
	if l == nil {
		return New()
	}
	return &lgr{log: l, fld: make(Fields)}
}

func (o *lgr) SetLevel(lvl logrus.Level) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log.SetLevel(lvl)
}

func (o *lgr) GetLevel() logrus.Level {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.log.GetLevel()
}

func (o *lgr) SetFields(f Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fld = f
}

func (o *lgr) Entry(lvl logrus.Level, msg string) *Entry {
	o.mu.RLock()
	defer o.mu.RUnlock()

	f := make(logrus.Fields, len(o.fld))
	for k, v := range o.fld {
		f[k] = v
	}

	return &Entry{
		log: o.log,
		lvl: lvl,
		msg: msg,
		fld: f,
	}
}
