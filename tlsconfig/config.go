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

// Package tlsconfig builds a single *tls.Config for outbound client
// sessions from a small set of file-based settings, following the
// ca/certificate/private-key/verify/session-cache shape of the
// connection target configuration.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	liberr "github.com/nabbar/rpcperf/errors"
)

// Config is the declarative form loaded from the target's tls section.
type Config struct {
	CAFile        string `mapstructure:"ca_file" toml:"ca_file"`
	Certificate   string `mapstructure:"certificate" toml:"certificate"`
	PrivateKey    string `mapstructure:"private_key" toml:"private_key"`
	ServerName    string `mapstructure:"server_name" toml:"server_name"`
	Verify        bool   `mapstructure:"verify" toml:"verify"`
	SessionCache  bool   `mapstructure:"session_cache" toml:"session_cache"`
	SessionCacheN int    `mapstructure:"session_cache_size" toml:"session_cache_size"`
}

// Build produces a *tls.Config ready to hand to tls.Client. Every session
// opened against the same target shares the returned value so that its
// ClientSessionCache can actually observe resumption across reconnects.
func (c *Config) Build() (*tls.Config, liberr.Error) {
	cfg := &tls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: !c.Verify,
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, liberr.New(uint16(ErrorCAFileRead), "cannot read CA file", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, liberr.New(uint16(ErrorCAFileParse), "cannot parse CA file")
		}

		cfg.RootCAs = pool
	}

	if c.Certificate != "" || c.PrivateKey != "" {
		if c.Certificate == "" || c.PrivateKey == "" {
			return nil, liberr.New(uint16(ErrorCertificateEmpty), "certificate configured without a matching private key")
		}

		pair, err := tls.LoadX509KeyPair(c.Certificate, c.PrivateKey)
		if err != nil {
			return nil, liberr.New(uint16(ErrorCertificateLoad), "cannot load certificate", err)
		}

		cfg.Certificates = []tls.Certificate{pair}
	}

	if c.SessionCache {
		size := c.SessionCacheN
		if size <= 0 {
			size = 64
		}
		cfg.ClientSessionCache = tls.NewLRUClientSessionCache(size)
	}

	return cfg, nil
}
