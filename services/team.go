package services

import (
	"context"
	"database/sql"
	"strings"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/utils"
)

// UserInput creates a team member.
type UserInput struct {
	Name     string          `json:"name" yaml:"name" validate:"max=100"`
	Email    string          `json:"email" yaml:"email" validate:"required,email"`
	Password string          `json:"password" yaml:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" yaml:"role"`
	Avatar   string          `json:"avatar" yaml:"avatar" validate:"omitempty,url"`
}

// UserUpdate changes a team member. Empty fields are left as they are.
type UserUpdate struct {
	Name     string          `json:"name" validate:"max=100"`
	Role     models.UserRole `json:"role"`
	Avatar   string          `json:"avatar" validate:"omitempty,url"`
	Password string          `json:"password" validate:"omitempty,min=8"`
}

type TeamService struct {
	deps *Deps
}

func NewTeamService(d *Deps) *TeamService {
	return &TeamService{deps: d.withDefaults()}
}

func (s *TeamService) List(ctx context.Context) ([]models.User, error) {
	rows, err := s.deps.Store.ListUsers(ctx)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "loading team", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, MapUser(row))
	}
	return users, nil
}

func (s *TeamService) Create(ctx context.Context, in UserInput) (models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := utils.ValidateStruct(in); err != nil {
		return models.User{}, err
	}
	if in.Role == "" {
		in.Role = models.RoleConsultant
	} else if !in.Role.IsValid() {
		return models.User{}, apperrors.E(apperrors.Invalid, "unknown role %q", string(in.Role))
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return models.User{}, apperrors.E(apperrors.Internal, err)
	}

	now := s.deps.Now()
	row := models.UserRow{
		ID:           s.deps.NewID(),
		Email:        in.Email,
		Name:         sql.NullString{String: in.Name, Valid: in.Name != ""},
		Role:         sql.NullString{String: string(in.Role), Valid: true},
		Avatar:       sql.NullString{String: in.Avatar, Valid: in.Avatar != ""},
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.deps.Store.CreateUser(ctx, row); err != nil {
		return models.User{}, err
	}

	logger.Info("Team member created: %s (%s)", row.Email, in.Role)
	return MapUser(row), nil
}

func (s *TeamService) Update(ctx context.Context, id string, in UserUpdate) (models.User, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return models.User{}, err
	}
	if in.Role != "" && !in.Role.IsValid() {
		return models.User{}, apperrors.E(apperrors.Invalid, "unknown role %q", string(in.Role))
	}

	row, err := s.deps.Store.GetUser(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		row.Name = sql.NullString{String: name, Valid: true}
	}
	if in.Role != "" {
		row.Role = sql.NullString{String: string(in.Role), Valid: true}
	}
	if in.Avatar != "" {
		row.Avatar = sql.NullString{String: in.Avatar, Valid: true}
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return models.User{}, apperrors.E(apperrors.Internal, err)
		}
		row.PasswordHash = hash
	}
	row.UpdatedAt = s.deps.Now()

	if err := s.deps.Store.UpdateUser(ctx, row); err != nil {
		return models.User{}, err
	}
	return MapUser(row), nil
}

// Delete removes a team member. Nobody can delete their own account.
func (s *TeamService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return apperrors.E(apperrors.Forbidden, "you cannot delete your own account")
	}
	if err := s.deps.Store.DeleteUser(ctx, id); err != nil {
		return err
	}
	logger.Info("Team member deleted: %s", id)
	return nil
}
