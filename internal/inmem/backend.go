// Package inmem is an in-memory storage backend for the demo daemon. It
// assigns server-side ids and meta timestamps, hashes password values at
// rest, and enforces userName uniqueness the way a real directory would.
package inmem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openidx/scimcore/resources"
	"github.com/openidx/scimcore/scim"
)

// Backend stores records per endpoint, keyed by id
type Backend struct {
	mu      sync.RWMutex
	records map[string]map[string]map[string]any
}

// New creates an empty backend
func New() *Backend {
	return &Backend{records: map[string]map[string]map[string]any{}}
}

func (b *Backend) bucket(endpoint string) map[string]map[string]any {
	bucket, ok := b.records[endpoint]
	if !ok {
		bucket = map[string]map[string]any{}
		b.records[endpoint] = bucket
	}
	return bucket
}

// List returns all records of an endpoint
func (b *Backend) List(_ context.Context, endpoint string) ([]map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bucket := b.records[endpoint]
	out := make([]map[string]any, 0, len(bucket))
	for _, record := range bucket {
		out = append(out, scim.DeepCopyValue(record).(map[string]any))
	}
	return out, nil
}

// Get returns one record by id
func (b *Backend) Get(_ context.Context, endpoint, id string) (map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.records[endpoint][id]
	if !ok {
		return nil, resources.ErrNotFound(id)
	}
	return scim.DeepCopyValue(record).(map[string]any), nil
}

// Create stores a new record, assigning id, meta timestamps, and a version
func (b *Backend) Create(_ context.Context, endpoint string, data map[string]any) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := scim.DeepCopyValue(data).(map[string]any)
	if err := b.checkUserNameUnique(endpoint, record, ""); err != nil {
		return nil, err
	}
	if err := hashPassword(record); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	record["id"] = id
	meta := metaOf(record)
	meta["created"] = now
	meta["lastModified"] = now
	meta["version"] = fmt.Sprintf("W/%q", uuid.NewString())

	b.bucket(endpoint)[id] = record
	return scim.DeepCopyValue(record).(map[string]any), nil
}

// Replace overwrites a stored record, keeping id and creation time
func (b *Backend) Replace(_ context.Context, endpoint, id string, data map[string]any) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.records[endpoint][id]
	if !ok {
		return nil, resources.ErrNotFound(id)
	}
	record := scim.DeepCopyValue(data).(map[string]any)
	if err := b.checkUserNameUnique(endpoint, record, id); err != nil {
		return nil, err
	}
	if err := hashPassword(record); err != nil {
		return nil, err
	}

	record["id"] = id
	meta := metaOf(record)
	if created, found := scim.LookupKey(metaOf(existing), "created"); found {
		meta["created"] = created
	}
	meta["lastModified"] = time.Now().UTC().Format(time.RFC3339)
	meta["version"] = fmt.Sprintf("W/%q", uuid.NewString())

	b.records[endpoint][id] = record
	return scim.DeepCopyValue(record).(map[string]any), nil
}

// Delete removes a stored record
func (b *Backend) Delete(_ context.Context, endpoint, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[endpoint][id]; !ok {
		return resources.ErrNotFound(id)
	}
	delete(b.records[endpoint], id)
	return nil
}

func metaOf(record map[string]any) map[string]any {
	if meta, ok := record["meta"].(map[string]any); ok {
		return meta
	}
	meta := map[string]any{}
	record["meta"] = meta
	return meta
}

// checkUserNameUnique enforces server uniqueness of userName within an
// endpoint, excluding the record being replaced
func (b *Backend) checkUserNameUnique(endpoint string, record map[string]any, excludeID string) error {
	raw, found := scim.LookupKey(record, "userName")
	name, ok := raw.(string)
	if !found || !ok || name == "" {
		return nil
	}
	for id, existing := range b.records[endpoint] {
		if id == excludeID {
			continue
		}
		current, _ := scim.LookupKey(existing, "userName")
		if s, ok := current.(string); ok && strings.EqualFold(s, name) {
			return scim.UniquenessError(fmt.Sprintf("userName '%s' is already in use", name))
		}
	}
	return nil
}

// hashPassword replaces a cleartext password value with its bcrypt hash.
// Already-hashed values are left alone so replace round-trips are stable.
func hashPassword(record map[string]any) error {
	raw, found := scim.LookupKey(record, "password")
	password, ok := raw.(string)
	if !found || !ok || password == "" {
		return nil
	}
	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	for key := range record {
		if strings.EqualFold(key, "password") {
			record[key] = string(hash)
			break
		}
	}
	return nil
}

// VerifyPassword checks a cleartext password against a stored record
func (b *Backend) VerifyPassword(_ context.Context, endpoint, id, password string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.records[endpoint][id]
	if !ok {
		return resources.ErrNotFound(id)
	}
	raw, _ := scim.LookupKey(record, "password")
	hash, ok := raw.(string)
	if !ok || hash == "" {
		return fmt.Errorf("no password set for resource %s", id)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
