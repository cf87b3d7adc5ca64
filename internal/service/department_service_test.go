package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type mockDepartmentRepo struct {
	items     map[string]*models.Department
	deleteErr error
}

func (m *mockDepartmentRepo) List(ctx context.Context) ([]models.Department, error) {
	out := make([]models.Department, 0, len(m.items))
	for _, d := range m.items {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockDepartmentRepo) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if d, ok := m.items[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDepartmentRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for id, d := range m.items {
		if d.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDepartmentRepo) Create(ctx context.Context, department *models.Department) error {
	if m.items == nil {
		m.items = make(map[string]*models.Department)
	}
	department.ID = "dep-" + department.Code
	cp := *department
	m.items[department.ID] = &cp
	return nil
}

func (m *mockDepartmentRepo) Update(ctx context.Context, department *models.Department) error {
	cp := *department
	m.items[department.ID] = &cp
	return nil
}

func (m *mockDepartmentRepo) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func TestDepartmentServiceCreateNormalisesCode(t *testing.T) {
	repo := &mockDepartmentRepo{}
	svc := NewDepartmentService(repo, nil, zap.NewNop())

	dep, err := svc.Create(context.Background(), dto.DepartmentRequest{Name: "Mathematics", Code: " math "})
	require.NoError(t, err)
	assert.Equal(t, "MATH", dep.Code)

	_, err = svc.Create(context.Background(), dto.DepartmentRequest{Name: "Maths Again", Code: "MATH"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.Create(context.Background(), dto.DepartmentRequest{Code: "BIO"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDepartmentServiceUpdate(t *testing.T) {
	repo := &mockDepartmentRepo{items: map[string]*models.Department{
		"dep-1": {ID: "dep-1", Name: "Mathematics", Code: "MATH"},
		"dep-2": {ID: "dep-2", Name: "Biology", Code: "BIO"},
	}}
	svc := NewDepartmentService(repo, nil, zap.NewNop())

	dep, err := svc.Update(context.Background(), "dep-1", dto.DepartmentRequest{Name: "Pure Mathematics", Code: "MATH"})
	require.NoError(t, err)
	assert.Equal(t, "Pure Mathematics", dep.Name)

	_, err = svc.Update(context.Background(), "dep-1", dto.DepartmentRequest{Name: "Pure Mathematics", Code: "bio"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.Get(context.Background(), "dep-9")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDepartmentServiceDeleteReferenced(t *testing.T) {
	repo := &mockDepartmentRepo{
		items:     map[string]*models.Department{"dep-1": {ID: "dep-1", Code: "MATH"}},
		deleteErr: &pq.Error{Code: "23503"},
	}
	svc := NewDepartmentService(repo, nil, zap.NewNop())

	assert.True(t, errors.Is(svc.Delete(context.Background(), "dep-1"), appErrors.ErrConflict))

	repo.deleteErr = nil
	require.NoError(t, svc.Delete(context.Background(), "dep-1"))
	assert.True(t, errors.Is(svc.Delete(context.Background(), "dep-1"), appErrors.ErrNotFound))
}
