package usecase

import (
	"context"
	"errors"
	"testing"

	"penelope-api/internal/domain"
)

// mockCampusRepository はテスト用のモックリポジトリ。
type mockCampusRepository struct {
	campuses  map[domain.CampusID]*domain.Campus
	nextID    domain.CampusID
	createErr error
}

func newMockCampusRepository() *mockCampusRepository {
	return &mockCampusRepository{campuses: make(map[domain.CampusID]*domain.Campus), nextID: 1}
}

func (m *mockCampusRepository) ExistsByID(ctx context.Context, id domain.CampusID) (bool, error) {
	_, ok := m.campuses[id]
	return ok, nil
}

func (m *mockCampusRepository) Create(ctx context.Context, campus *domain.Campus) error {
	if m.createErr != nil {
		return m.createErr
	}
	campus.ID = m.nextID
	m.nextID++
	m.campuses[campus.ID] = campus
	return nil
}

func (m *mockCampusRepository) FindAll(ctx context.Context) ([]*domain.Campus, error) {
	var all []*domain.Campus
	for _, c := range m.campuses {
		all = append(all, c)
	}
	return all, nil
}

func (m *mockCampusRepository) Delete(ctx context.Context, id domain.CampusID) (bool, error) {
	_, ok := m.campuses[id]
	delete(m.campuses, id)
	return ok, nil
}

func TestCampusService_CreateCampus(t *testing.T) {
	repo := newMockCampusRepository()
	svc := NewCampusService(repo)

	campus, err := svc.CreateCampus(context.Background(), " Penryn ", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campus.ID != 1 {
		t.Errorf("want id 1, got %d", campus.ID)
	}
	if campus.Name != "Penryn" || campus.Author != "abc123" {
		t.Errorf("unexpected campus: %+v", campus)
	}

	_, err = svc.CreateCampus(context.Background(), "  ", "abc123")
	if !errors.Is(err, domain.ErrInvalidCampusName) {
		t.Errorf("want ErrInvalidCampusName, got %v", err)
	}
}

func TestCampusService_CreateCampus_RepositoryError(t *testing.T) {
	repo := newMockCampusRepository()
	repo.createErr = errors.New("db down")
	svc := NewCampusService(repo)

	if _, err := svc.CreateCampus(context.Background(), "Penryn", "admin"); err == nil {
		t.Fatal("want error, got nil")
	}
}

func TestCampusService_RemoveAndList(t *testing.T) {
	repo := newMockCampusRepository()
	svc := NewCampusService(repo)
	ctx := context.Background()

	first, _ := svc.CreateCampus(ctx, "Penryn", "admin")
	if _, err := svc.CreateCampus(ctx, "Streatham", "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.RemoveCampus(ctx, first.ID); err != nil {
		t.Fatalf("RemoveCampus failed: %v", err)
	}
	if err := svc.RemoveCampus(ctx, first.ID); !errors.Is(err, domain.ErrCampusNotFound) {
		t.Errorf("want ErrCampusNotFound, got %v", err)
	}

	all, err := svc.ListCampuses(ctx)
	if err != nil {
		t.Fatalf("ListCampuses failed: %v", err)
	}
	if len(all) != 1 || all[0].Name != "Streatham" {
		t.Errorf("unexpected campuses: %+v", all)
	}
}
