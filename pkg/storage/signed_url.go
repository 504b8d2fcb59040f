package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token layout: jobID.expiryUnix.base64Path.hexSignature. The job id,
// expiry and encoded path are signed together.
const tokenParts = 4

// SignedURLSigner mints and validates the download tokens embedded in
// statement URLs.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner builds a signer. A non-positive TTL falls back to
// 24 hours, matching the statement result retention default.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate signs a token for the statement job's rendered file.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("jobID and relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	signature := s.sign(jobID, strconv.FormatInt(expiresAt.Unix(), 10), encodedPath)
	token := strings.Join([]string{jobID, strconv.FormatInt(expiresAt.Unix(), 10), encodedPath, signature}, ".")
	return token, expiresAt, nil
}

// Parse checks the signature and expiry of a token and returns the
// embedded job id and file path. allowExpired skips the expiry check;
// the cleanup sweep uses it to resolve files past their TTL.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != tokenParts {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	jobID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode path: %w", err)
	}

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)

	expected := s.sign(jobID, ts, encodedPath)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return jobID, string(rawPath), expiresAt, nil
}

func (s *SignedURLSigner) sign(jobID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s", jobID, ts, encodedPath)
	return hex.EncodeToString(mac.Sum(nil))
}
