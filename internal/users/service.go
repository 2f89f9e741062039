package users

import (
	"context"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindUser(ctx context.Context, id string) (User, error)
	SetLastSelectedDepartment(ctx context.Context, userID, departmentID string) error
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Profile is the caller-facing view of a user.
type Profile struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	UserTypes              []UserType `json:"user_types"`
	Dashboard              string     `json:"dashboard"`
	LastSelectedDepartment string     `json:"last_selected_department,omitempty"`
}

// FindUser returns a user by id.
func (s *Service) FindUser(ctx context.Context, id string) (User, error) {
	return s.repo.FindUser(ctx, id)
}

// Profile returns the profile of the given user.
func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	u, err := s.repo.FindUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:                     u.ID,
		Email:                  u.Email,
		Name:                   u.Name,
		UserTypes:              u.UserTypes,
		Dashboard:              u.DashboardPreference(),
		LastSelectedDepartment: u.LastSelectedDepartment,
	}, nil
}

// SetLastSelectedDepartment updates the user's department pointer.
func (s *Service) SetLastSelectedDepartment(ctx context.Context, userID, departmentID string) error {
	return s.repo.SetLastSelectedDepartment(ctx, userID, departmentID)
}
