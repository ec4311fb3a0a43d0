package storage

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// NewKey returns "{ownerID}/{unixMillis}-{random}.{ext}".
func NewKey(ownerID uuid.UUID, ext string, now time.Time) (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate key suffix: %w", err)
	}

	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return ownerID.String() + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + base58.Encode(b[:]) + "." + ext, nil
}

// OwnerOf returns the owner namespace of a key. Keys that could escape their
// namespace are rejected.
func OwnerOf(key string) (uuid.UUID, bool) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return uuid.Nil, false
	}

	owner, rest, ok := strings.Cut(key, "/")
	if !ok || rest == "" {
		return uuid.Nil, false
	}
	for _, segment := range strings.Split(rest, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return uuid.Nil, false
		}
	}

	id, err := uuid.Parse(owner)
	if err != nil || id.String() != owner {
		return uuid.Nil, false
	}
	return id, true
}

// OwnedBy reports whether key lives in owner's namespace.
func OwnedBy(key string, owner uuid.UUID) bool {
	id, ok := OwnerOf(key)
	return ok && owner != uuid.Nil && id == owner
}
