package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/config"
	"github.com/angelmondragon/schoolorders-backend/pkg/db"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/security"
	"gorm.io/gorm"
)

const tempPasswordLength = 14

type userStore interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service provisions accounts.
type Service struct {
	repo     userStore
	password config.PasswordConfig
	logg     *logger.Logger
}

func NewService(repo userStore, password config.PasswordConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, password: password, logg: logg}, nil
}

// CreateUser lets an admin add an executive or another admin. When no
// password is supplied a temporary one is generated and returned once.
func (s *Service) CreateUser(ctx context.Context, actor auth.Actor, input CreateUserInput) (*CreatedUser, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	fields := map[string]string{}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		fields["email"] = "is required"
	}
	if strings.TrimSpace(input.FullName) == "" {
		fields["full_name"] = "is required"
	}
	role, err := enums.ParseUserRole(strings.TrimSpace(input.Role))
	if err != nil {
		fields["role"] = "must be executive or admin"
	}
	if len(fields) > 0 {
		return nil, pkgerrors.Validation("invalid user", fields)
	}

	password := input.Password
	temp := ""
	if password == "" {
		temp, err = security.GenerateTempPassword(tempPasswordLength)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate password")
		}
		password = temp
	}

	user, err := s.create(ctx, CreateUserDTO{
		Email:    email,
		FullName: input.FullName,
		Phone:    input.Phone,
		Role:     role,
	}, password)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":  user.ID.String(),
		"role":     string(user.Role),
		"actor_id": actor.UserID.String(),
	})
	s.logg.Info(ctx, "user created")

	return &CreatedUser{User: FromModel(user), TempPassword: temp}, nil
}

// EnsureAdmin seeds an admin account at startup when no user holds the
// configured email yet. It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, cfg config.BootstrapConfig) (bool, error) {
	if !cfg.Enabled() {
		return false, nil
	}
	if _, err := s.repo.FindByEmail(ctx, cfg.AdminEmail); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup bootstrap admin")
	}

	user, err := s.create(ctx, CreateUserDTO{
		Email:    cfg.AdminEmail,
		FullName: cfg.AdminName,
		Role:     enums.UserRoleAdmin,
	}, cfg.AdminPassword)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return false, nil
		}
		return false, err
	}
	s.logg.Info(s.logg.WithField(ctx, "user_id", user.ID.String()), "bootstrap admin created")
	return true, nil
}

func (s *Service) create(ctx context.Context, dto CreateUserDTO, password string) (*models.User, error) {
	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	dto.PasswordHash = hash

	user, err := s.repo.Create(ctx, dto)
	if err != nil {
		if db.IsUniqueViolation(err, "email") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return user, nil
}
