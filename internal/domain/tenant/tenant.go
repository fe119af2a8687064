package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Tenant is one entry of the tenant configuration set.
type Tenant struct {
	ID            string `json:"Id" yaml:"Id"`
	MaxFiles      int    `json:"MaxFiles" yaml:"MaxFiles"`
	FilesTTLHours int    `json:"FilesTTLHours" yaml:"FilesTTLHours"`
}

// FilesTTLSeconds returns the retention of knowledge base files in seconds.
func (t *Tenant) FilesTTLSeconds() int64 {
	return int64(t.FilesTTLHours) * 3600
}

type tenantSet struct {
	Tenants []Tenant `json:"Tenants" yaml:"Tenants"`
}

// Directory resolves tenants by id. A directory built from a missing or malformed
// configuration keeps the parse error and reports it on every lookup.
type Directory struct {
	tenants map[string]Tenant
	err     error
}

// NewDirectory parses the raw tenant set.
func NewDirectory(raw string) *Directory {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return failed(errors.New("TENANTS is not configured"))
	}

	var set tenantSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return failed(fmt.Errorf("TENANTS must be a valid json object: %w", err))
	}
	return fromSet(set)
}

// NewDirectoryFromFile reads the tenant set from a YAML (or JSON) file.
func NewDirectoryFromFile(path string) *Directory {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return failed(fmt.Errorf("read tenants file: %w", err))
	}
	var set tenantSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return failed(fmt.Errorf("parse tenants file %s: %w", path, err))
	}
	return fromSet(set)
}

// NewDirectoryFromConfig builds the directory from TENANTS, falling back to
// TENANTS_FILE when the variable is empty.
func NewDirectoryFromConfig(cfg *config.Config) *Directory {
	if strings.TrimSpace(cfg.Tenants) == "" && strings.TrimSpace(cfg.TenantsFile) != "" {
		return NewDirectoryFromFile(cfg.TenantsFile)
	}
	return NewDirectory(cfg.Tenants)
}

func failed(err error) *Directory {
	return &Directory{tenants: make(map[string]Tenant), err: err}
}

func fromSet(set tenantSet) *Directory {
	if set.Tenants == nil {
		return failed(errors.New("TENANTS must contain a Tenants list"))
	}
	d := &Directory{tenants: make(map[string]Tenant, len(set.Tenants))}
	for _, t := range set.Tenants {
		if strings.TrimSpace(t.ID) == "" {
			return failed(errors.New("TENANTS entry without Id"))
		}
		d.tenants[t.ID] = t
	}
	return d
}

// Err returns the configuration error, if any.
func (d *Directory) Err() error {
	return d.err
}

// Lookup returns the tenant or a configuration error when the set is unusable or the
// tenant is not part of it.
func (d *Directory) Lookup(ctx context.Context, tenantID string) (*Tenant, error) {
	if d.err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			"tenant configuration is invalid", d.err, "3f0b8c4e-2a71-4d0e-9a65-7c1d2b9e8f01")
	}
	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("tenant %s is not configured", tenantID), nil, "9c2e6a1d-5b3f-4e8a-8d17-0f4b6c2a9e53")
	}
	return &t, nil
}

// RetentionFor returns the tenant with its retention validated, for ingestion.
func (d *Directory) RetentionFor(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := d.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.FilesTTLHours <= 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("tenant %s has no valid FilesTTLHours", tenantID), nil, "6a4d1e9b-0c27-4f35-b8e2-5d9a3c7f1b64")
	}
	return t, nil
}
