// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package keys manages the collector's public key: it fetches the key
// during the connection handshake and verifies signed inbound requests.
package keys

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/stalkfish-go/internal/cache"
	"github.com/olegiv/stalkfish-go/internal/collector"
	"github.com/olegiv/stalkfish-go/internal/settings"
)

// GeneratePath is the collector path of the key handshake.
const GeneratePath = "generate-keys"

// ConnectTimeoutKey marks a failed handshake in the cache.
const ConnectTimeoutKey = "stalkfish_connect_timeout"

// ConnectTimeout is how long a failed handshake blocks the next attempt.
const ConnectTimeout = 60 * time.Second

// Handshake headers.
const (
	HeaderSiteURL = "X-Stalkfish-Site-Url"
	HeaderKey     = "X-Stalkfish-Key"
	HeaderSiteID  = "X-Stalkfish-Site-Id"
)

var (
	// ErrUninitialized means no public key has been stored yet.
	ErrUninitialized = errors.New("uninitialized")
	// ErrInvalidKey means the stored public key cannot be parsed.
	ErrInvalidKey = errors.New("this does not seem to be a valid public key")
	// ErrBadSignature means the signature does not match the secret.
	ErrBadSignature = errors.New("bad signature")
	// ErrConnectTimeout means a recent handshake failed and the retry
	// window has not passed.
	ErrConnectTimeout = errors.New("key generation is paused after a failed attempt")
	// ErrHandshake means the collector did not hand out a key.
	ErrHandshake = errors.New("key generation failed")
)

// ParsePublicKey decodes a base64 encoded RSA public key in PEM or DER form.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	}

	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
	}
	if rsaPub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return rsaPub, nil
	}
	return nil, ErrInvalidKey
}

// Verify checks a base64 RSA SHA-256 signature of secret.
func Verify(pub *rsa.PublicKey, secret, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	digest := sha256.Sum256([]byte(secret))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// Poster sends the handshake request.
type Poster interface {
	Post(ctx context.Context, path string, header http.Header) (*collector.Response, error)
}

// Manager owns the stored public key.
type Manager struct {
	options *settings.Options
	poster  Poster
	cache   cache.Cache
	siteURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a manager. siteURL identifies this installation to the
// collector.
func NewManager(options *settings.Options, poster Poster, c cache.Cache, siteURL string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		options: options,
		poster:  poster,
		cache:   c,
		siteURL: siteURL,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate asks the collector for a public key unless one is stored and
// force is false. A failed attempt blocks further attempts for
// ConnectTimeout.
func (m *Manager) Generate(ctx context.Context, force bool) error {
	if m.options.Has(settings.KeyPublicKey) && !force {
		return nil
	}
	if ok, _ := m.cache.Has(ctx, ConnectTimeoutKey); ok {
		return ErrConnectTimeout
	}

	header := http.Header{}
	header.Set(HeaderSiteURL, m.siteURL)
	resp, err := m.poster.Post(ctx, GeneratePath, header)
	if err == nil && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: status %d", ErrHandshake, resp.StatusCode)
	}
	var key string
	if err == nil {
		if key = resp.Header.Get(HeaderKey); key == "" {
			err = fmt.Errorf("%w: no key in response", ErrHandshake)
		}
	}
	if err != nil {
		if cerr := m.cache.Set(ctx, ConnectTimeoutKey, []byte("1"), ConnectTimeout); cerr != nil {
			m.logger.Warn("failed to record connect timeout", "error", cerr)
		}
		return err
	}

	if err := m.options.Set(ctx, settings.KeyPublicKey, key); err != nil {
		return fmt.Errorf("storing public key: %w", err)
	}
	if err := m.options.Set(ctx, settings.KeyPublicKeyModified, m.now().Unix()); err != nil {
		return fmt.Errorf("storing key date: %w", err)
	}
	if siteID := resp.Header.Get(HeaderSiteID); siteID != "" {
		if err := m.options.Set(ctx, settings.KeySiteID, siteID); err != nil {
			return fmt.Errorf("storing site id: %w", err)
		}
	}
	m.logger.Info("collector public key stored")
	return nil
}

// Verify checks a signed inbound request against the stored key.
func (m *Manager) Verify(secret, signature string) error {
	encoded := m.options.String(settings.KeyPublicKey, "")
	if encoded == "" {
		return ErrUninitialized
	}
	pub, err := ParsePublicKey(encoded)
	if err != nil {
		return err
	}
	return Verify(pub, secret, signature)
}
