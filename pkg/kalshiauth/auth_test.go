package kalshiauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
)

func generateTestPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestNew_ParsesLiteralNewlines(t *testing.T) {
	raw := generateTestPEM(t)
	literal := strings.ReplaceAll(raw, "\n", `\n`)

	a, err := New("test-key", literal)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.apiKey != "test-key" {
		t.Errorf("apiKey = %q", a.apiKey)
	}
}

func TestSignRequest_Produces256ByteSignature(t *testing.T) {
	a, err := New("test-key", generateTestPEM(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	signed, err := a.SignRequest("GET", "/portfolio/orders")
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signed.AccessSignature)
	if err != nil {
		t.Fatalf("signature is not valid base64: %v", err)
	}
	if len(sigBytes) != 256 {
		t.Errorf("RSA-2048 PSS signature should be 256 bytes, got %d", len(sigBytes))
	}
	if signed.AccessKey != "test-key" {
		t.Errorf("AccessKey = %q", signed.AccessKey)
	}
}

func TestSignRequest_StripsQueryString(t *testing.T) {
	a, err := New("test-key", generateTestPEM(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	withQuery, err := a.SignRequest("GET", "/portfolio/orders?limit=5")
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	withoutQuery, err := a.SignRequest("GET", "/portfolio/orders")
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	sigA, _ := base64.StdEncoding.DecodeString(withQuery.AccessSignature)
	sigB, _ := base64.StdEncoding.DecodeString(withoutQuery.AccessSignature)
	if len(sigA) != 256 || len(sigB) != 256 {
		t.Fatalf("expected both signatures to be 256 bytes, got %d and %d", len(sigA), len(sigB))
	}

	// PSS signatures are randomized, so verify the query-path signature
	// against the message built from the path without its query string.
	digest := sha256.Sum256([]byte(withQuery.AccessTimestamp + "GET" + "/portfolio/orders"))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(&a.priv.PublicKey, crypto.SHA256, digest[:], sigA, opts); err != nil {
		t.Errorf("query-path signature does not verify over the query-free path: %v", err)
	}
}

func TestNew_RejectsMissingAPIKey(t *testing.T) {
	if _, err := New("", generateTestPEM(t)); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestNew_RejectsGarbagePEM(t *testing.T) {
	if _, err := New("test-key", "not a pem"); err == nil {
		t.Error("expected error for invalid PEM")
	}
}
