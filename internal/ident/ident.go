// Package ident generates the identifiers handed out by the service: file IDs,
// share codes, access codes and storage keys. All randomness comes from crypto/rand.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AccessCodeLength is the number of characters in an access code.
const AccessCodeLength = 6

// FileID returns a 32 character lowercase hex identifier.
func FileID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ShareCode returns a 16 character lowercase hex share code.
func ShareCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AccessCode returns a 6 character code drawn uniformly from [A-Z0-9].
func AccessCode() (string, error) {
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	var sb strings.Builder
	sb.Grow(AccessCodeLength)
	for i := 0; i < AccessCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw access code: %w", err)
		}
		sb.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// StorageKey builds an unpredictable object key that keeps the original
// extension, e.g. "uploads/1718000000000_3f2a9c0e8b7d4e6fa1c2b3d4e5f60718.pdf".
// The random part is a full v4 UUID so two uploads never share a key.
func StorageKey(originalName string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	uid := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("uploads/%d_%s%s", now.UnixMilli(), uid, ext)
}
