package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore keeps objects in memory and signs URLs with HMAC-SHA256.
// Signed URLs point at baseURL, which must be routed to the store's ServeHTTP.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	secret  []byte
	baseURL *url.URL
	now     func() time.Time
}

// NewMemoryStore creates an empty store. baseURL is the prefix of signed URLs,
// for example "http://localhost:8080/files".
func NewMemoryStore(baseURL string, secret []byte) (*MemoryStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		secret:  secret,
		baseURL: u,
		now:     time.Now,
	}, nil
}

// Put implements ObjectStore.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memoryObject{
		data:        bytes.Clone(data),
		contentType: contentType,
		modified:    m.now(),
	}
	return nil
}

// Get implements ObjectStore.
func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), ObjectInfo{
		Key:          key,
		ContentType:  obj.contentType,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
	}, nil
}

// SignedURL implements ObjectStore.
func (m *MemoryStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	expires := strconv.FormatInt(m.now().Add(ttl).Unix(), 10)

	u := *m.baseURL
	u.Path = u.Path + "/" + key
	u.RawQuery = url.Values{
		"expires": {expires},
		"sig":     {m.sign(key, expires)},
	}.Encode()
	return u.String(), nil
}

// KeyFromURL implements ObjectStore.
func (m *MemoryStore) KeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid object url: %w", err)
	}
	if u.Host != m.baseURL.Host {
		return "", errors.New("object url has a foreign host")
	}
	key, ok := strings.CutPrefix(u.Path, m.baseURL.Path+"/")
	if !ok || key == "" {
		return "", errors.New("object url has no key")
	}
	return key, nil
}

// Verify checks the signature and expiry of a signed URL.
func (m *MemoryStore) Verify(rawURL string) (string, error) {
	key, err := m.KeyFromURL(rawURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(rawURL)

	expires := u.Query().Get("expires")
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", errors.New("signed url has no expiry")
	}
	if !hmac.Equal([]byte(m.sign(key, expires)), []byte(u.Query().Get("sig"))) {
		return "", errors.New("signed url signature mismatch")
	}
	if m.now().Unix() > unix {
		return "", errors.New("signed url expired")
	}
	return key, nil
}

func (m *MemoryStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// ServeHTTP serves objects behind a valid signed URL.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u := *r.URL
	u.Scheme = m.baseURL.Scheme
	u.Host = m.baseURL.Host

	key, err := m.Verify(u.String())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	body, info, err := m.Get(r.Context(), key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	_, _ = io.Copy(w, body)
}
