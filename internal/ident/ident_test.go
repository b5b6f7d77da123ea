package ident

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fileIDPattern     = regexp.MustCompile(`^[0-9a-f]{32}$`)
	shareCodePattern  = regexp.MustCompile(`^[0-9a-f]{16}$`)
	accessCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

func TestFileID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := FileID()
		assert.Regexp(t, fileIDPattern, id)
		assert.False(t, seen[id], "expected unique file id")
		seen[id] = true
	}
}

func TestShareCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := ShareCode()
		require.NoError(t, err)
		assert.Regexp(t, shareCodePattern, code)
		assert.False(t, seen[code], "expected unique share code")
		seen[code] = true
	}
}

func TestAccessCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := AccessCode()
		require.NoError(t, err)
		assert.Regexp(t, accessCodePattern, code)
	}
}

func TestStorageKey(t *testing.T) {
	now := time.UnixMilli(1718000000000)

	tests := []struct {
		name     string
		original string
		pattern  string
	}{
		{
			name:     "should keep lowercased extension",
			original: "Report.PDF",
			pattern:  `^uploads/1718000000000_[0-9a-f]{32}\.pdf$`,
		},
		{
			name:     "should omit extension when missing",
			original: "Makefile",
			pattern:  `^uploads/1718000000000_[0-9a-f]{32}$`,
		},
		{
			name:     "should ignore directories in original name",
			original: "../../etc/passwd.txt",
			pattern:  `^uploads/1718000000000_[0-9a-f]{32}\.txt$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Regexp(t, regexp.MustCompile(tt.pattern), StorageKey(tt.original, now))
		})
	}

	assert.NotEqual(t, StorageKey("a.txt", now), StorageKey("a.txt", now), "expected distinct keys for the same name")
}
