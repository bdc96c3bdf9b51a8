package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
	withdrawFn func(ctx context.Context, id string) (bool, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(context.Context, *model.User, *model.Identity) error {
	return nil
}

func (m *mockUserRepo) Withdraw(ctx context.Context, id string) (bool, error) {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, id)
	}
	return false, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func isAdminEmail(email string) bool { return email == "admin@example.com" }

// --- Withdraw ---

func TestWithdraw_CallsRepository(t *testing.T) {
	var withdrawn string
	repo := &mockUserRepo{withdrawFn: func(_ context.Context, id string) (bool, error) {
		withdrawn = id
		return true, nil
	}}
	svc := NewService(repo, nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withdrawn != "user-1" {
		t.Errorf("withdrawn = %q, want user-1", withdrawn)
	}
}

func TestWithdraw_UserNotFound(t *testing.T) {
	repo := &mockUserRepo{withdrawFn: func(context.Context, string) (bool, error) {
		return false, repository.ErrUserNotFound
	}}
	err := NewService(repo, nil).Withdraw(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}

func TestWithdraw_RepositoryError(t *testing.T) {
	dbErr := errors.New("db down")
	repo := &mockUserRepo{withdrawFn: func(context.Context, string) (bool, error) {
		return false, dbErr
	}}
	if err := NewService(repo, nil).Withdraw(context.Background(), "user-1"); !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped %v", err, dbErr)
	}
}

// --- GetProfile / IsAdmin ---

func TestGetProfile_AdminFlag(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		email := "owner@example.com"
		if id == "admin" {
			email = "admin@example.com"
		}
		return &model.User{ID: id, Email: email, AvailableInvites: 4}, nil
	}}
	svc := NewService(repo, isAdminEmail)

	profile, err := svc.GetProfile(context.Background(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !profile.IsAdmin {
		t.Error("admin@example.com は管理者であるべき")
	}

	profile, err = svc.GetProfile(context.Background(), "owner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.IsAdmin {
		t.Error("owner@example.com は管理者ではないべき")
	}
	if profile.User.AvailableInvites != 4 {
		t.Errorf("AvailableInvites = %d, want 4", profile.User.AvailableInvites)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	_, err := NewService(&mockUserRepo{}, isAdminEmail).GetProfile(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}

func TestIsAdmin(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		if id == "admin" {
			return &model.User{ID: id, Email: "admin@example.com"}, nil
		}
		return nil, nil
	}}
	svc := NewService(repo, isAdminEmail)

	if ok, err := svc.IsAdmin(context.Background(), "admin"); err != nil || !ok {
		t.Errorf("IsAdmin(admin) = %v, %v; want true, nil", ok, err)
	}
	if ok, err := svc.IsAdmin(context.Background(), "missing"); err != nil || ok {
		t.Errorf("IsAdmin(missing) = %v, %v; want false, nil", ok, err)
	}

	dbErr := errors.New("db down")
	failing := NewService(&mockUserRepo{findByIDFn: func(context.Context, string) (*model.User, error) {
		return nil, dbErr
	}}, isAdminEmail)
	if _, err := failing.IsAdmin(context.Background(), "admin"); !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped %v", err, dbErr)
	}
}

func TestNewService_NilAdminCheckerMeansNoAdmins(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		return &model.User{ID: id, Email: "admin@example.com"}, nil
	}}
	profile, err := NewService(repo, nil).GetProfile(context.Background(), "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.IsAdmin {
		t.Error("管理者判定が無い場合は誰も管理者ではないべき")
	}
}
