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

package passthrough

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/httptoolkit/mockttp-sub002/events"
	liblog "github.com/httptoolkit/mockttp-sub002/log"
)

// Mode distinguishes opaque TLS passthrough (no per-frame data events,
// only opened/closed) from raw passthrough (emits raw-passthrough-data per
// frame both directions).
type Mode int

const (
	ModeTLS Mode = iota
	ModeRaw
)

// Options configures one Pump invocation.
type Options struct {
	Downstream     net.Conn
	UpstreamHost   string
	UpstreamPort   int
	Mode           Mode
	ConnectionID   string
	Registry       *Registry
	Bus            *events.Bus
	Log            liblog.FuncLog
	DialTimeout    time.Duration
}

// Pump dials the upstream target and bidirectionally copies bytes between
// it and Downstream until either side closes, mirroring the close
// symmetrically, grounded on the goroutine-pair/done-channel pump pattern
// in other_examples' service-mesh proxy TunnelTCP.
func Pump(opt Options) error {
	addr := fmt.Sprintf("%s:%d", opt.UpstreamHost, opt.UpstreamPort)

	if opt.Registry != nil && opt.Registry.IsLoop(addr) {
		opt.Downstream.Close()
		if opt.Log != nil {
			opt.Log().Entry(logrus.WarnLevel, "refusing passthrough loop").
				FieldAdd("target", addr).Log()
		}
		return ErrorLoopDetected.Error()
	}

	dialer := net.Dialer{Timeout: opt.DialTimeout}
	if dialer.Timeout == 0 {
		dialer.Timeout = 10 * time.Second
	}
	upstream, err := dialer.Dial("tcp", addr)
	if err != nil {
		return ErrorDial.Error(err)
	}

	if tc, ok := opt.Downstream.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if tc, ok := upstream.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	var untrack func()
	if opt.Registry != nil {
		untrack = opt.Registry.TrackDownstream(opt.Downstream.RemoteAddr().String())
		defer untrack()
	}

	publishFunc(opt.Bus, func() events.Event {
		return events.Event{
			Kind:         eventKindOpened(opt.Mode),
			ConnectionID: opt.ConnectionID,
			Payload:      OpenedPayload{Target: addr},
		}
	})

	done := make(chan struct{}, 2)
	go func() { pipe(opt, upstream, opt.Downstream, "upstream"); done <- struct{}{} }()
	go func() { pipe(opt, opt.Downstream, upstream, "downstream"); done <- struct{}{} }()
	<-done

	opt.Downstream.Close()
	upstream.Close()

	publishFunc(opt.Bus, func() events.Event {
		return events.Event{
			Kind:         eventKindClosed(opt.Mode),
			ConnectionID: opt.ConnectionID,
			Payload:      ClosedPayload{Target: addr},
		}
	})

	return nil
}

// OpenedPayload is the Payload of a {tls,raw}-passthrough-opened event.
type OpenedPayload struct{ Target string }

// ClosedPayload is the Payload of a {tls,raw}-passthrough-closed event.
type ClosedPayload struct{ Target string }

// DataPayload is the Payload of a raw-passthrough-data event: one frame
// copied in one direction, with a monotonic timestamp.
type DataPayload struct {
	Direction string
	Bytes     int
	At        time.Time
}

func eventKindOpened(m Mode) events.Kind {
	if m == ModeRaw {
		return events.KindRawPassthroughOpened
	}
	return events.KindTLSPassthroughOpened
}

func eventKindClosed(m Mode) events.Kind {
	if m == ModeRaw {
		return events.KindRawPassthroughClosed
	}
	return events.KindTLSPassthroughClosed
}

func pipe(opt Options, dst io.Writer, src io.Reader, direction string) {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if opt.Mode == ModeRaw {
				publishFunc(opt.Bus, func() events.Event {
					return events.Event{
						Kind:         events.KindRawPassthroughData,
						ConnectionID: opt.ConnectionID,
						Payload: DataPayload{
							Direction: direction,
							Bytes:     n,
							At:        time.Now(),
						},
					}
				})
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if rerr != nil {
			return
		}
	}
}

func publishFunc(bus *events.Bus, build func() events.Event) {
	if bus == nil {
		return
	}
	bus.PublishFunc(build)
}
