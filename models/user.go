package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Username  string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	Role      UserRole  `gorm:"size:1;not null" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string   `json:"name" binding:"required"`
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required,min=6"`
	Role     UserRole `json:"role" binding:"required"`
}

func (input *NewUser) validate() error {
	if input.Username == "" || input.Password == "" {
		return fmt.Errorf("%w: username and password are required", utils.ErrValidation)
	}
	if len(input.Password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", utils.ErrValidation)
	}
	switch input.Role {
	case UserRoleOwner, UserRoleAccountOfficer, UserRoleClerk:
	default:
		return fmt.Errorf("%w: unknown role %q", utils.ErrValidation, string(input.Role))
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := s.ActorCan(ctx, PermManageUsers); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	user := User{
		Name:     input.Name,
		Username: input.Username,
		Password: string(hashed),
		Role:     input.Role,
		IsActive: utils.NewTrue(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &user, nil
}

// Login verifies the credentials and returns a signed token with the actor's
// role class in the claims.
func (s *Store) Login(ctx context.Context, username string, password string) (string, *User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ? AND is_active = ?", username, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: invalid username or password", utils.ErrAuthorization)
		}
		return "", nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", nil, fmt.Errorf("%w: invalid username or password", utils.ErrAuthorization)
	}
	token, err := utils.JwtGenerate(user.ID, user.Username, user.Name, string(user.Role))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return token, &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	if err := s.ActorCan(ctx, PermManageUsers); err != nil {
		return nil, err
	}
	var users []*User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return users, nil
}

// EnsureAdminUser seeds the first owner account on an empty database so the
// service is reachable after a fresh migration. Credentials come from
// ADMIN_USERNAME / ADMIN_PASSWORD, defaulting to admin / admin123.
func (s *Store) EnsureAdminUser(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if count > 0 {
		return nil
	}
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	admin := User{
		Name:     "Administrator",
		Username: username,
		Password: string(hashed),
		Role:     UserRoleOwner,
		IsActive: utils.NewTrue(),
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	s.logger.WithField("username", username).Info("seeded initial owner account")
	return nil
}
