package project_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

type MockRepository struct {
	CreateFunc       func(ctx context.Context, p *project.Project) error
	GetFunc          func(ctx context.Context, tenantID, id string) (*project.Project, error)
	ListByTenantFunc func(ctx context.Context, tenantID string) ([]*project.Project, error)
	DeleteFunc       func(ctx context.Context, tenantID, id string) error
}

func (m *MockRepository) Create(ctx context.Context, p *project.Project) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return nil
}

func (m *MockRepository) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *MockRepository) ListByTenant(ctx context.Context, tenantID string) ([]*project.Project, error) {
	if m.ListByTenantFunc != nil {
		return m.ListByTenantFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *MockRepository) Delete(ctx context.Context, tenantID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tenantID, id)
	}
	return nil
}

type purgeFunc func(ctx context.Context, tenantID, projectID string) error

func (f purgeFunc) PurgeProject(ctx context.Context, tenantID, projectID string) error {
	return f(ctx, tenantID, projectID)
}

func TestService_CreateRequiresName(t *testing.T) {
	svc := project.NewService(&MockRepository{}, nil, zerolog.Nop())

	_, err := svc.Create(context.Background(), project.CreateInput{TenantID: "t1", UserID: "u1", Name: "  "})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestService_Create(t *testing.T) {
	var stored *project.Project
	repo := &MockRepository{CreateFunc: func(ctx context.Context, p *project.Project) error {
		stored = p
		return nil
	}}
	svc := project.NewService(repo, nil, zerolog.Nop())

	p, err := svc.Create(context.Background(), project.CreateInput{TenantID: "t1", UserID: "u1", Name: " Research "})
	require.NoError(t, err)
	assert.Same(t, stored, p)
	assert.Equal(t, "Research", p.Name)
	assert.NotEmpty(t, p.ID)
	assert.NotZero(t, p.CreatedAt)
}

func TestService_DeletePurgesFilesFirst(t *testing.T) {
	var order []string
	repo := &MockRepository{
		GetFunc: func(ctx context.Context, tenantID, id string) (*project.Project, error) {
			return &project.Project{ID: id, TenantID: tenantID}, nil
		},
		DeleteFunc: func(ctx context.Context, tenantID, id string) error {
			order = append(order, "project")
			return nil
		},
	}
	purger := purgeFunc(func(ctx context.Context, tenantID, projectID string) error {
		order = append(order, "files")
		return nil
	})
	svc := project.NewService(repo, purger, zerolog.Nop())

	require.NoError(t, svc.Delete(context.Background(), "t1", "p1"))
	assert.Equal(t, []string{"files", "project"}, order)
}

func TestService_DeleteStopsWhenPurgeFails(t *testing.T) {
	deleted := false
	repo := &MockRepository{
		GetFunc: func(ctx context.Context, tenantID, id string) (*project.Project, error) {
			return &project.Project{ID: id, TenantID: tenantID}, nil
		},
		DeleteFunc: func(ctx context.Context, tenantID, id string) error {
			deleted = true
			return nil
		},
	}
	purger := purgeFunc(func(ctx context.Context, tenantID, projectID string) error {
		return errors.New("s3 down")
	})
	svc := project.NewService(repo, purger, zerolog.Nop())

	require.Error(t, svc.Delete(context.Background(), "t1", "p1"))
	assert.False(t, deleted)
}
