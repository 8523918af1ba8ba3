package passwords

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benaskins/secframe/internal/audit"
)

// Metadata tracks creation and rotation of a store entry.
type Metadata struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	LastRotated time.Time `json:"last_rotated,omitempty"`
	RotateEvery string    `json:"rotate_every,omitempty"`
}

// rotationDue reports whether the entry should have been rotated by now.
// Entries without a valid RotateEvery are never due.
func (m *Metadata) rotationDue(now time.Time) bool {
	every, err := parseEvery(m.RotateEvery)
	if err != nil || every <= 0 {
		return false
	}
	last := m.LastRotated
	if last.IsZero() {
		last = m.CreatedAt
	}
	return !now.Before(last.Add(every))
}

// parseEvery accepts time.ParseDuration syntax plus a whole number of days
// such as "30d".
func parseEvery(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("parsing rotation interval %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// MetadataStore persists entry metadata to a JSON file.
type MetadataStore struct {
	mu       sync.RWMutex
	path     string
	metadata map[string]*Metadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:     path,
		metadata: make(map[string]*Metadata),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &ms.metadata); jsonErr != nil {
			slog.Warn("corrupt metadata file, starting fresh", "component", "passwords", "path", path, "error", jsonErr)
		}
	}

	return ms, nil
}

// Get returns a copy of the metadata for a key, or nil if not tracked.
func (ms *MetadataStore) Get(key string) *Metadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.metadata[key]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// Set records metadata for a key and persists to disk.
func (ms *MetadataStore) Set(key string, meta *Metadata) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.metadata[key] = meta
	return ms.save()
}

func (ms *MetadataStore) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.metadata, key)
	return ms.save()
}

// All returns copies of all metadata entries.
func (ms *MetadataStore) All() map[string]*Metadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make(map[string]*Metadata, len(ms.metadata))
	for k, v := range ms.metadata {
		cp := *v
		result[k] = &cp
	}
	return result
}

// Due returns the sorted keys whose rotation interval has elapsed.
func (ms *MetadataStore) Due(now time.Time) []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var keys []string
	for k, m := range ms.metadata {
		if m.rotationDue(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.metadata, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}

// AuditedStore wraps a Store and adds audit logging and metadata tracking.
// Audit logging is best effort: a failed log write never fails the
// operation.
type AuditedStore struct {
	inner    Store
	audit    *audit.Logger
	metadata *MetadataStore
	actor    string
	service  string
}

// NewAuditedStore wraps inner. service is recorded with every entry.
func NewAuditedStore(inner Store, auditLog *audit.Logger, metadata *MetadataStore, actor, service string) *AuditedStore {
	return &AuditedStore{
		inner:    inner,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
		service:  service,
	}
}

func (s *AuditedStore) log(action audit.Action, key string, fill func(*audit.Entry)) {
	e := audit.Entry{Action: action, Key: key, Service: s.service, Actor: s.actor}
	if fill != nil {
		fill(&e)
	}
	if err := s.audit.Log(e); err != nil {
		slog.Warn("audit log write failed", "component", "passwords", "action", string(action), "error", err)
	}
}

func (s *AuditedStore) touch(key string, rotated bool) error {
	now := time.Now().UTC()
	meta := s.metadata.Get(key)
	if meta == nil {
		meta = &Metadata{CreatedAt: now}
	}
	meta.UpdatedAt = now
	if rotated {
		meta.LastRotated = now
	}
	return s.metadata.Set(key, meta)
}

func (s *AuditedStore) Set(key, value string) error {
	if err := s.inner.Set(key, value); err != nil {
		return fmt.Errorf("audited store set: %w", err)
	}
	s.log(audit.ActionPasswordWrite, key, nil)
	if err := s.touch(key, false); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}

func (s *AuditedStore) Get(key string) (string, error) {
	val, err := s.inner.Get(key)
	if err != nil {
		return "", fmt.Errorf("audited store get: %w", err)
	}
	s.log(audit.ActionPasswordRead, key, nil)
	return val, nil
}

func (s *AuditedStore) List() ([]string, error) {
	return s.inner.List()
}

func (s *AuditedStore) Delete(key string) error {
	if err := s.inner.Delete(key); err != nil {
		return fmt.Errorf("audited store delete: %w", err)
	}
	s.log(audit.ActionPasswordDelete, key, nil)
	if err := s.metadata.Delete(key); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	return nil
}

func (s *AuditedStore) GetMultiple(keys []string) (map[string]string, error) {
	result, err := s.inner.GetMultiple(keys)
	if err != nil {
		return nil, fmt.Errorf("audited store get multiple: %w", err)
	}
	for key := range result {
		s.log(audit.ActionPasswordRead, key, nil)
	}
	return result, nil
}

// SetRotation records how often key should be rotated.
func (s *AuditedStore) SetRotation(key, every string) error {
	if _, err := parseEvery(every); err != nil {
		return err
	}
	meta := s.metadata.Get(key)
	if meta == nil {
		meta = &Metadata{CreatedAt: time.Now().UTC()}
	}
	meta.RotateEvery = every
	return s.metadata.Set(key, meta)
}

// Rotate runs command, stores its output as the new value of key and logs
// the rotation.
func (s *AuditedStore) Rotate(ctx context.Context, key, command string) error {
	output, err := runRotationCommand(ctx, command)
	if err != nil {
		s.log(audit.ActionPasswordRotate, key, func(e *audit.Entry) {
			e.Trigger, e.Command, e.Error = "hook", command, err.Error()
		})
		return fmt.Errorf("rotation command failed: %w", err)
	}

	if err := s.inner.Set(key, output); err != nil {
		return fmt.Errorf("storing rotated password: %w", err)
	}
	s.log(audit.ActionPasswordRotate, key, func(e *audit.Entry) {
		e.Trigger, e.Command = "hook", command
	})

	if err := s.touch(key, true); err != nil {
		return fmt.Errorf("saving rotation metadata: %w", err)
	}
	return nil
}

// Metadata returns the metadata store for direct access.
func (s *AuditedStore) Metadata() *MetadataStore {
	return s.metadata
}
