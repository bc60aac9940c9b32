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

// Package ca implements a signing certificate authority that mints
// short-lived leaf certificates for SNI-requested hostnames on demand and
// caches them by hostname until shortly before expiry. It is built directly
// on crypto/x509 since minting certificates from a private key is a
// distinct concern from parsing and holding trust-chain (verification)
// certificates. See DESIGN.md for the full justification.
package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"time"

	libatm "github.com/httptoolkit/mockttp-sub002/atomic"
)

// LoadRoot builds an Authority around an existing PEM-encoded root
// certificate and ECDSA key instead of generating a fresh one, so a caller
// can pin a CA across restarts (config.CAConfig.CertPEM/KeyPEM).
func LoadRoot(certPEM, keyPEM []byte, leafLifetime time.Duration) (*Authority, error) {
	if leafLifetime <= 0 {
		leafLifetime = 24 * time.Hour
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, ErrorRootLoad.Error(err)
	}

	cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, ErrorRootLoad.Error(err)
	}

	key, ok := tlsCert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, ErrorRootLoad.Error()
	}
	tlsCert.Leaf = cert

	return &Authority{
		rootCert:     cert,
		rootKey:      key,
		rootRaw:      &tlsCert,
		leafLifetime: leafLifetime,
		cache:        libatm.NewMapAny[string](),
		gen:          make(map[string]*sync.WaitGroup),
	}, nil
}

// Authority is a signing CA that mints per-hostname leaf certificates.
type Authority struct {
	rootCert *x509.Certificate
	rootKey  *ecdsa.PrivateKey
	rootRaw  *tls.Certificate

	leafLifetime time.Duration

	cache libatm.Map[string]

	genMu sync.Mutex
	gen   map[string]*sync.WaitGroup
}

// New generates a fresh, in-memory root CA and returns an Authority that
// mints leaf certificates valid for leafLifetime (default 24h if zero).
func New(leafLifetime time.Duration) (*Authority, error) {
	if leafLifetime <= 0 {
		leafLifetime = 24 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, ErrorRootKeyGenerate.Error(err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, ErrorRootKeyGenerate.Error(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "mockttp-sub002 local CA", Organization: []string{"mockttp-sub002"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	raw, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, ErrorRootCertCreate.Error(err)
	}

	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, ErrorRootCertCreate.Error(err)
	}

	return &Authority{
		rootCert:     cert,
		rootKey:      key,
		rootRaw:      &tls.Certificate{Certificate: [][]byte{raw}, PrivateKey: key, Leaf: cert},
		leafLifetime: leafLifetime,
		cache:        libatm.NewMapAny[string](),
		gen:          make(map[string]*sync.WaitGroup),
	}, nil
}

// RootCertificate returns the CA's own certificate, e.g. for export to
// clients that need to trust it.
func (a *Authority) RootCertificate() *x509.Certificate {
	return a.rootCert
}

// LeafFor returns a cached or freshly minted *tls.Certificate for hostname,
// generating at most once concurrently per hostname (single-flight).
func (a *Authority) LeafFor(hostname string) (*tls.Certificate, error) {
	if v, ok := a.cache.Load(hostname); ok {
		if cert, ok := v.(*tls.Certificate); ok && time.Now().Before(cert.Leaf.NotAfter.Add(-time.Hour)) {
			return cert, nil
		}
	}

	a.genMu.Lock()
	if wg, inFlight := a.gen[hostname]; inFlight {
		a.genMu.Unlock()
		wg.Wait()
		if v, ok := a.cache.Load(hostname); ok {
			return v.(*tls.Certificate), nil
		}
		return nil, ErrorLeafGenerate.Error()
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	a.gen[hostname] = wg
	a.genMu.Unlock()

	defer func() {
		a.genMu.Lock()
		delete(a.gen, hostname)
		a.genMu.Unlock()
		wg.Done()
	}()

	cert, err := a.mintLeaf(hostname)
	if err != nil {
		return nil, err
	}

	a.cache.Store(hostname, cert)
	return cert, nil
}

func (a *Authority) mintLeaf(hostname string) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, ErrorLeafKeyGenerate.Error(err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, ErrorLeafGenerate.Error(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname},
		DNSNames:     []string{hostname},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(a.leafLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	raw, err := x509.CreateCertificate(rand.Reader, tmpl, a.rootCert, &key.PublicKey, a.rootKey)
	if err != nil {
		return nil, ErrorLeafGenerate.Error(err)
	}

	leaf, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, ErrorLeafGenerate.Error(err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{raw, a.rootRaw.Certificate[0]},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// GetCertificate adapts LeafFor to the tls.Config.GetCertificate SNI
// callback shape used by the TLS Hello Analyser (C3).
func (a *Authority) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	host := hello.ServerName
	if host == "" {
		host = "localhost"
	}
	return a.LeafFor(host)
}
