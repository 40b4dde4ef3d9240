/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/hostwatch/pkg/models"
)

var (
	// ErrCAParsingFailed is returned when the CA bundle holds no usable certificate.
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")

	errTLSIncomplete = errors.New("tls requires ca_file, cert_file and key_file")
)

// TLSConfig builds a client tls.Config for mutual TLS to NATS.
func TLSConfig(sec *models.NATSTLSConfig) (*tls.Config, error) {
	if sec == nil || sec.CAFile == "" || sec.CertFile == "" || sec.KeyFile == "" {
		return nil, errTLSIncomplete
	}

	cert, err := tls.LoadX509KeyPair(sec.CertFile, sec.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(sec.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, ErrCAParsingFailed
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   sec.ServerName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// securityOptions translates credentials and TLS settings into connect options.
func securityOptions(cfg *models.NATSConfig) ([]nats.Option, error) {
	var opts []nats.Option

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	if cfg.TLS != nil {
		tlsConf, err := TLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	return opts, nil
}
