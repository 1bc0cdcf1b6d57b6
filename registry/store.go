package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FileStore persists the registry document as a single JSON file. Every
// mutating call performs load-modify-save against the full document, so each
// call reflects the latest on-disk state.
type FileStore struct {
	path string
	log  *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewFileStore creates a store backed by the JSON document at path. The
// parent directory is created if it doesn't exist.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return &FileStore{
		path: path,
		log:  log,
		now:  time.Now,
	}, nil
}

// Load reads the persisted document. A missing file is bootstrapped with a
// single "Default" tenant and written before returning. A document with an
// older schema version is migrated and persisted immediately.
func (s *FileStore) Load() (*Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := s.bootstrapDocument()
		if err := s.Save(doc); err != nil {
			return nil, err
		}
		s.log.Info("Bootstrapped new registry document", "path", s.path)
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry document: %w", err)
	}

	if doc.Version < SchemaVersion {
		if err := s.migrate(&doc); err != nil {
			return nil, err
		}
	}

	// A hand-edited document may carry "tenants": null; keep the map usable.
	if doc.Tenants == nil {
		doc.Tenants = map[string]*Tenant{}
	}

	return &doc, nil
}

// migrate upgrades a version 1 document in place: one new "Default" tenant
// adopts the flat instance map verbatim. The pre-migration file is copied to
// a fixed backup name first so an operator can recover the original format.
func (s *FileStore) migrate(doc *Document) error {
	backupPath := s.path + ".v1.bak"
	if err := copyFile(s.path, backupPath); err != nil {
		return fmt.Errorf("failed to back up pre-migration registry: %w", err)
	}
	s.log.Info("Migrating registry document", "fromVersion", doc.Version, "toVersion", SchemaVersion, "backup", backupPath)

	instances := doc.Instances
	if instances == nil {
		instances = map[string]*Instance{}
	}

	tenant := &Tenant{
		ID:        uuid.NewString(),
		Name:      "Default",
		Slug:      DefaultTenantSlug,
		CreatedAt: s.now().UTC(),
		Instances: instances,
	}

	doc.Tenants = map[string]*Tenant{tenant.ID: tenant}
	doc.Instances = nil
	doc.Version = SchemaVersion

	return s.Save(doc)
}

// Save persists the document atomically: the previous file is copied to a
// timestamped backup (best-effort), then the new content is written to a
// temporary file in the same directory and renamed over the canonical path.
func (s *FileStore) Save(doc *Document) error {
	if _, err := os.Stat(s.path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", s.path, s.now().UTC().Format("20060102-150405"))
		if err := copyFile(s.path, backupPath); err != nil {
			s.log.Warn("Failed to write registry backup", "err", err, "path", backupPath)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary registry file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary registry file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry document: %w", err)
	}
	return nil
}

func (s *FileStore) bootstrapDocument() *Document {
	tenant := &Tenant{
		ID:        uuid.NewString(),
		Name:      "Default",
		Slug:      DefaultTenantSlug,
		CreatedAt: s.now().UTC(),
		Instances: map[string]*Instance{},
	}
	return &Document{
		Version: SchemaVersion,
		Tenants: map[string]*Tenant{tenant.ID: tenant},
	}
}

// CreateTenant sanitizes the name, derives the slug and adds a new tenant.
// Returns ErrInvalidName before touching the disk when the name sanitizes to
// nothing, and ErrDuplicateSlug when another tenant already holds the slug.
func (s *FileStore) CreateTenant(name, notes string) (*Tenant, error) {
	sanitized := SanitizeName(name)
	if sanitized == "" {
		return nil, ErrInvalidName
	}

	tenant := &Tenant{
		ID:        uuid.NewString(),
		Name:      sanitized,
		Slug:      Slugify(sanitized),
		CreatedAt: s.now().UTC(),
		Notes:     notes,
		Instances: map[string]*Instance{},
	}
	if err := s.AddTenant(tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// AddTenant adds a pre-built tenant. The caller supplies id and slug; the
// slug must be unique across all tenants.
func (s *FileStore) AddTenant(tenant *Tenant) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	for _, t := range doc.Tenants {
		if t.Slug == tenant.Slug {
			return ErrDuplicateSlug
		}
	}
	if tenant.Instances == nil {
		tenant.Instances = map[string]*Instance{}
	}
	doc.Tenants[tenant.ID] = tenant
	return s.Save(doc)
}

// ListTenants returns all tenants with their instance counts, oldest first.
func (s *FileStore) ListTenants() ([]TenantSummary, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	summaries := make([]TenantSummary, 0, len(doc.Tenants))
	for _, t := range doc.Tenants {
		summaries = append(summaries, TenantSummary{
			ID:            t.ID,
			Name:          t.Name,
			Slug:          t.Slug,
			CreatedAt:     t.CreatedAt,
			Notes:         t.Notes,
			InstanceCount: len(t.Instances),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].Slug < summaries[j].Slug
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// GetTenant returns the tenant with the given id.
func (s *FileStore) GetTenant(id string) (*Tenant, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	tenant, ok := doc.Tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return tenant, nil
}

// GetTenantBySlug returns the tenant with the given slug.
func (s *FileStore) GetTenantBySlug(slug string) (*Tenant, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, t := range doc.Tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, ErrTenantNotFound
}

// DefaultTenant returns the tenant with slug "default", which always exists.
func (s *FileStore) DefaultTenant() (*Tenant, error) {
	return s.GetTenantBySlug(DefaultTenantSlug)
}

// UpdateTenant changes a tenant's name and/or notes. Renaming recomputes the
// slug and enforces its uniqueness. Instances are never touched.
func (s *FileStore) UpdateTenant(id string, name, notes *string) (*Tenant, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	tenant, ok := doc.Tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}

	if name != nil {
		sanitized := SanitizeName(*name)
		if sanitized == "" {
			return nil, ErrInvalidName
		}
		slug := Slugify(sanitized)
		for otherID, t := range doc.Tenants {
			if otherID != id && t.Slug == slug {
				return nil, ErrDuplicateSlug
			}
		}
		tenant.Name = sanitized
		tenant.Slug = slug
	}
	if notes != nil {
		tenant.Notes = *notes
	}

	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return tenant, nil
}

// RemoveTenant deletes a tenant record unconditionally. The caller is
// responsible for tearing down remote resources first.
func (s *FileStore) RemoveTenant(id string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := doc.Tenants[id]; !ok {
		return ErrTenantNotFound
	}
	delete(doc.Tenants, id)
	return s.Save(doc)
}

// ListInstances returns a tenant's instances, oldest first.
func (s *FileStore) ListInstances(tenantID string) ([]*Instance, error) {
	tenant, err := s.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	instances := make([]*Instance, 0, len(tenant.Instances))
	for _, inst := range tenant.Instances {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID < instances[j].ID
		}
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})
	return instances, nil
}

// GetInstance returns one instance scoped by tenant id.
func (s *FileStore) GetInstance(tenantID, instanceID string) (*Instance, error) {
	tenant, err := s.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	inst, ok := tenant.Instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

// AddInstance adds a fully built instance to a tenant.
func (s *FileStore) AddInstance(tenantID string, inst *Instance) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	tenant, ok := doc.Tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	if tenant.Instances == nil {
		tenant.Instances = map[string]*Instance{}
	}
	tenant.Instances[inst.ID] = inst
	return s.Save(doc)
}

// UpdateInstanceNotes edits an instance's notes. All other fields are
// immutable after provisioning.
func (s *FileStore) UpdateInstanceNotes(tenantID, instanceID, notes string) (*Instance, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	tenant, ok := doc.Tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	inst, ok := tenant.Instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	inst.Notes = notes
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return inst, nil
}

// RemoveInstance deletes an instance record from its tenant.
func (s *FileStore) RemoveInstance(tenantID, instanceID string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	tenant, ok := doc.Tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	if _, ok := tenant.Instances[instanceID]; !ok {
		return ErrInstanceNotFound
	}
	delete(tenant.Instances, instanceID)
	return s.Save(doc)
}

// FindInstance looks an instance up by id alone, scanning all tenants. It
// supports identifier-only callers that predate the tenant concept.
func (s *FileStore) FindInstance(instanceID string) (*Instance, *Tenant, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, nil, err
	}
	for _, tenant := range doc.Tenants {
		if inst, ok := tenant.Instances[instanceID]; ok {
			return inst, tenant, nil
		}
	}
	return nil, nil, ErrInstanceNotFound
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
