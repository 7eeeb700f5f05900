// Package kalshiauth implements the exchange's RSA-PSS-SHA256 request
// signing scheme: ACCESS-KEY / ACCESS-TIMESTAMP / ACCESS-SIGNATURE
// headers computed over {timestamp}{METHOD}{path_without_query}.
//
// No library in the reference corpus performs PSS signing, so this
// package is built on the standard crypto/rsa, crypto/sha256 and
// crypto/rand packages rather than a third-party dependency.
package kalshiauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kalshi-trading/core/pkg/boterrors"
)

// Auth signs outbound exchange requests with an RSA-2048 private key
// using PSS padding and SHA-256, following the exchange's documented
// scheme.
type Auth struct {
	apiKey string
	priv   *rsa.PrivateKey
}

// New parses a PEM-encoded RSA private key (PKCS1 or PKCS8) and
// associates it with the given API key ID. The PEM string may use
// literal "\n" sequences in place of real newlines, as environment
// variables commonly do.
func New(apiKey, pemString string) (*Auth, error) {
	if apiKey == "" {
		return nil, &boterrors.AuthError{Reason: "missing api key"}
	}

	normalized := strings.ReplaceAll(strings.TrimSpace(pemString), `\n`, "\n")
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, &boterrors.AuthError{Reason: "failed to decode PEM block"}
	}

	priv, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, &boterrors.AuthError{Reason: "failed to parse private key", Err: err}
	}

	return &Auth{apiKey: apiKey, priv: priv}, nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("pkcs1 and pkcs8 parse both failed: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}

	return rsaKey, nil
}

// FromEnv builds an Auth from KALSHI_API_KEY and KALSHI_SECRET_KEY.
func FromEnv() (*Auth, error) {
	apiKey := os.Getenv("KALSHI_API_KEY")
	secret := os.Getenv("KALSHI_SECRET_KEY")
	if apiKey == "" || secret == "" {
		return nil, &boterrors.AuthError{Reason: "KALSHI_API_KEY and KALSHI_SECRET_KEY must both be set"}
	}
	return New(apiKey, secret)
}

// SignedRequest carries the three headers required by the exchange.
type SignedRequest struct {
	AccessKey       string
	AccessTimestamp string
	AccessSignature string
}

// SignRequest signs {timestamp}{METHOD}{path_without_query} and
// returns the header values to attach to the outbound request. The
// path is stripped of any query string before signing, matching the
// exchange's documented canonicalization.
func (a *Auth) SignRequest(method, path string) (SignedRequest, error) {
	cleanPath := path
	if idx := strings.Index(path, "?"); idx >= 0 {
		cleanPath = path[:idx]
	}

	timestampMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := timestampMs + strings.ToUpper(method) + cleanPath

	digest := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, a.priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return SignedRequest{}, &boterrors.AuthError{Reason: "PSS signing failed", Err: err}
	}

	return SignedRequest{
		AccessKey:       a.apiKey,
		AccessTimestamp: timestampMs,
		AccessSignature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Headers returns the three-header map ready to set on an *http.Request.
func (s SignedRequest) Headers() map[string]string {
	return map[string]string{
		"KALSHI-ACCESS-KEY":       s.AccessKey,
		"KALSHI-ACCESS-TIMESTAMP": s.AccessTimestamp,
		"KALSHI-ACCESS-SIGNATURE": s.AccessSignature,
	}
}
