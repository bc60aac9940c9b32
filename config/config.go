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

// Package config defines the validated configuration for a combo server
// instance: listen address, TLS/CA behaviour, ALPN preference, SOCKS/proxy
// toggles, passthrough host lists and body-size limits.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	liberr "github.com/httptoolkit/mockttp-sub002/errors"
)

// ALPNPreference controls how the TLS Hello Analyser negotiates ALPN.
type ALPNPreference string

const (
	ALPNHTTP2Only ALPNPreference = "http2-only"
	ALPNFallback  ALPNPreference = "fallback"
	ALPNHTTP1Only ALPNPreference = "http1-only"
)

// HostPattern is a URL-style hostname pattern used by the TLS passthrough
// and intercept-only lists (e.g. "*.example.com", "bank.example").
type HostPattern struct {
	Hostname string `yaml:"hostname" toml:"hostname" validate:"required"`
}

// CAConfig controls the built-in signing CA (C2).
type CAConfig struct {
	// CertPEM/KeyPEM hold an existing root CA to load; if both are empty a
	// fresh root is generated at startup and is not persisted.
	CertPEM []byte `yaml:"certPem,omitempty" toml:"certPem,omitempty"`
	KeyPEM  []byte `yaml:"keyPem,omitempty" toml:"keyPem,omitempty"`

	// LeafLifetime is how long minted leaf certificates remain valid.
	LeafLifetime time.Duration `yaml:"leafLifetime" toml:"leafLifetime" validate:"required"`
}

// Config is the top-level, validated configuration of a Server.
type Config struct {
	// ListenAddress is the address:port the combo listener binds to.
	ListenAddress string `yaml:"listenAddress" toml:"listenAddress" validate:"required,hostname_port"`

	// PortRangeEnd, if non-zero and greater than the ListenAddress port,
	// makes bind-contention retry across the inclusive range instead of
	// failing immediately.
	PortRangeEnd int `yaml:"portRangeEnd,omitempty" toml:"portRangeEnd,omitempty"`

	CA CAConfig `yaml:"ca" toml:"ca" validate:"required"`

	ALPN ALPNPreference `yaml:"alpn" toml:"alpn" validate:"required,oneof=http2-only fallback http1-only"`

	// EnableSOCKS turns on SOCKS4/5 CONNECT dispatch on the combo listener.
	EnableSOCKS bool `yaml:"enableSocks" toml:"enableSocks"`

	// PassthroughUnknownProtocols, when true, hands unrecognised first
	// bytes to the Passthrough Pump instead of synthesising a client error,
	// provided a tunnel address is already known for the connection.
	PassthroughUnknownProtocols bool `yaml:"passthroughUnknownProtocols" toml:"passthroughUnknownProtocols"`

	// TLSPassthrough and TLSInterceptOnly are mutually exclusive host-
	// pattern lists.
	TLSPassthrough   []HostPattern `yaml:"tlsPassthrough,omitempty" toml:"tlsPassthrough,omitempty"`
	TLSInterceptOnly []HostPattern `yaml:"tlsInterceptOnly,omitempty" toml:"tlsInterceptOnly,omitempty"`

	// MaxBodyBytes bounds the replayable request-body buffer; 0 means
	// unbounded.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" toml:"maxBodyBytes,omitempty"`

	// TLSDroppedWatchdogFloor/Ceiling bound the "closed without data"
	// detection window: a tunnel that closes before either duration has
	// elapsed is reported as dropped rather than idle.
	TLSDroppedWatchdogFloor   time.Duration `yaml:"tlsDroppedWatchdogFloor,omitempty" toml:"tlsDroppedWatchdogFloor,omitempty"`
	TLSDroppedWatchdogCeiling time.Duration `yaml:"tlsDroppedWatchdogCeiling,omitempty" toml:"tlsDroppedWatchdogCeiling,omitempty"`
}

// Default returns a Config with sensible production defaults.
func Default(listenAddress string) *Config {
	return &Config{
		ListenAddress: listenAddress,
		CA: CAConfig{
			LeafLifetime: 24 * time.Hour,
		},
		ALPN:                      ALPNFallback,
		TLSDroppedWatchdogFloor:   100 * time.Millisecond,
		TLSDroppedWatchdogCeiling: 2 * time.Second,
	}
}

var valid = validator.New()

// Validate checks the configuration using struct tags, returning a
// registered liberr.Error on failure.
func (c *Config) Validate() liberr.Error {
	if c == nil {
		return ErrorConfigEmpty.Error()
	}

	if len(c.TLSPassthrough) > 0 && len(c.TLSInterceptOnly) > 0 {
		return ErrorConfigPassthroughConflict.Error()
	}

	if err := valid.Struct(c); err != nil {
		return ErrorConfigValidation.Error(err)
	}

	return nil
}

// ParseYAML decodes a Config from YAML bytes and validates it.
func ParseYAML(b []byte) (*Config, liberr.Error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, ErrorConfigDecode.Error(err)
	}
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	return cfg, nil
}

// ParseTOML decodes a Config from TOML bytes and validates it.
func ParseTOML(b []byte) (*Config, liberr.Error) {
	cfg := &Config{}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, ErrorConfigDecode.Error(err)
	}
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	return cfg, nil
}
