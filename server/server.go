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

// Package server implements the top-level Server (C13): it wires the combo
// listener (C4), CA proxy (C2), rule stores and step executor (C6-C8),
// WebSocket lifecycle (C12), passthrough pump (C9), client-error collator
// (C11) and event bus (C10) into one runnable unit, and exposes the
// programmatic Admin surface in place of the out-of-scope remote wire
// protocol.
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/http2"

	"github.com/httptoolkit/mockttp-sub002/ca"
	"github.com/httptoolkit/mockttp-sub002/clienterror"
	"github.com/httptoolkit/mockttp-sub002/config"
	"github.com/httptoolkit/mockttp-sub002/connection"
	"github.com/httptoolkit/mockttp-sub002/events"
	liblog "github.com/httptoolkit/mockttp-sub002/log"
	"github.com/httptoolkit/mockttp-sub002/listener"
	"github.com/httptoolkit/mockttp-sub002/passthrough"
	"github.com/httptoolkit/mockttp-sub002/rules"
)

// Server is the top-level runnable mock/intercept server.
type Server struct {
	mu  sync.Mutex
	cfg config.Config
	log liblog.FuncLog

	ca *ca.Authority

	requestRules   *rules.Store
	websocketRules *rules.Store

	bus            *events.Bus
	passthroughReg *passthrough.Registry

	ln      *listener.Listener
	running bool
	done    chan struct{}
}

// New validates cfg and constructs a Server, generating (or loading) its CA
// immediately so configuration and CA errors surface before the caller calls
// Start; the listener is bound by Start.
func New(cfg config.Config, log liblog.FuncLog) (*Server, error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	authority, err := newAuthority(cfg)
	if err != nil {
		return nil, ErrorCAInit.Error(err)
	}

	return &Server{
		cfg:            cfg,
		log:            log,
		ca:             authority,
		requestRules:   rules.NewStore(),
		websocketRules: rules.NewStore(),
		bus:            events.New(1024),
		passthroughReg: passthrough.NewRegistry(),
	}, nil
}

func newAuthority(cfg config.Config) (*ca.Authority, error) {
	if len(cfg.CA.CertPEM) > 0 && len(cfg.CA.KeyPEM) > 0 {
		return ca.LoadRoot(cfg.CA.CertPEM, cfg.CA.KeyPEM, cfg.CA.LeafLifetime)
	}
	return ca.New(cfg.CA.LeafLifetime)
}

func (s *Server) logger() liblog.FuncLog {
	if s.log != nil {
		return s.log
	}
	return liblog.New
}

func (s *Server) hostPatterns() (passthroughHosts, interceptOnly []string) {
	for _, h := range s.cfg.TLSPassthrough {
		passthroughHosts = append(passthroughHosts, h.Hostname)
	}
	for _, h := range s.cfg.TLSInterceptOnly {
		interceptOnly = append(interceptOnly, h.Hostname)
	}
	return
}

// Start binds the combo listener and begins serving; it returns once the
// listener is bound, with the accept loop running in the background.
// Binding retries across [ListenAddress port, PortRangeEnd] when the
// configured range leaves room.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrorAlreadyRunning.Error()
	}

	ln, err := s.bindWithRetry()
	if err != nil {
		return err
	}

	s.ln = ln
	s.running = true
	s.done = make(chan struct{})

	go func() {
		_ = ln.Serve()
		close(s.done)
	}()

	return nil
}

func (s *Server) bindWithRetry() (*listener.Listener, error) {
	passHosts, interceptHosts := s.hostPatterns()
	opt := listener.Options{
		Address:                     s.cfg.ListenAddress,
		CA:                          s.ca,
		ALPNPreference:              string(s.cfg.ALPN),
		EnableSOCKS:                 s.cfg.EnableSOCKS,
		PassthroughUnknownProtocols: s.cfg.PassthroughUnknownProtocols,
		TLSPassthroughHosts:         passHosts,
		TLSInterceptOnlyHosts:       interceptHosts,
		WatchdogFloor:               s.cfg.TLSDroppedWatchdogFloor,
		WatchdogCeiling:             s.cfg.TLSDroppedWatchdogCeiling,
		Log:                         s.logger(),
	}
	handlers := listener.Handlers{
		ServeH1:     s.serveH1,
		ServeH2:     s.serveH2,
		Passthrough: s.passthroughConn,
		ClientError: s.clientError,
	}

	host, startPort, single := splitHostPort(opt.Address)
	if single || s.cfg.PortRangeEnd <= startPort {
		ln, err := listener.New(opt, handlers)
		if err != nil {
			return nil, ErrorListen.Error(err)
		}
		return ln, nil
	}

	for port := startPort; port <= s.cfg.PortRangeEnd; port++ {
		opt.Address = fmt.Sprintf("%s:%d", host, port)
		if ln, err := listener.New(opt, handlers); err == nil {
			return ln, nil
		}
	}
	return nil, ErrorPortRangeExhausted.Error()
}

func splitHostPort(addr string) (host string, port int, singlePort bool) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0, true
	}
	n := 0
	if _, serr := fmt.Sscanf(p, "%d", &n); serr != nil {
		return addr, 0, true
	}
	return h, n, false
}

// Stop closes the combo listener and waits for the accept loop to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln, done := s.ln, s.done
	if !s.running {
		s.mu.Unlock()
		return ErrorNotRunning.Error()
	}
	s.running = false
	s.mu.Unlock()

	err := ln.Close()
	if done != nil {
		<-done
	}
	s.bus.Close()
	return err
}

// IsRunning reports whether the combo listener is currently accepting.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listener address; only meaningful while running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) serveH1(conn net.Conn, c *connection.Connection) {
	_ = http.Serve(newSingleConnListener(conn), httpHandler{s: s, c: c})
}

func (s *Server) serveH2(conn net.Conn, c *connection.Connection) {
	(&http2.Server{}).ServeConn(conn, &http2.ServeConnOpts{Handler: httpHandler{s: s, c: c}})
}

func (s *Server) passthroughConn(conn net.Conn, c *connection.Connection, destination string, isTLS bool) {
	hostStr, portStr, err := net.SplitHostPort(destination)
	if err != nil {
		_ = conn.Close()
		return
	}
	host := hostStr
	var port int
	if _, serr := fmt.Sscanf(portStr, "%d", &port); serr != nil {
		_ = conn.Close()
		return
	}
	mode := passthrough.ModeRaw
	if isTLS {
		mode = passthrough.ModeTLS
	}
	_ = passthrough.Pump(passthrough.Options{
		Downstream:   conn,
		UpstreamHost: host,
		UpstreamPort: port,
		Mode:         mode,
		ConnectionID: c.ID(),
		Registry:     s.passthroughReg,
		Bus:          s.bus,
		Log:          s.logger(),
	})
}

func (s *Server) clientError(conn net.Conn, c *connection.Connection, leading []byte) {
	col := clienterror.New(c, s.bus, s.logger(), func() bool { return true })
	col.Feed(leading)
}
