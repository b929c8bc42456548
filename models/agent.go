package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Agent is a sales agent. UserId links an operator account so sales they
// dispatch are attributed to them; CommissionRate overrides the settings
// default when positive.
type Agent struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone          string          `gorm:"size:20" json:"phone"`
	Region         string          `gorm:"size:100" json:"region"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"commission_rate"`
	UserId         *int            `gorm:"index" json:"user_id"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAgent struct {
	Name           string          `json:"name" binding:"required"`
	Phone          string          `json:"phone" binding:"omitempty,phone"`
	Region         string          `json:"region"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	UserId         *int            `json:"user_id"`
}

func (input *NewAgent) validate() error {
	if input.Name == "" {
		return fmt.Errorf("%w: agent name is required", utils.ErrValidation)
	}
	if input.CommissionRate.IsNegative() {
		return fmt.Errorf("%w: commission rate cannot be negative", utils.ErrValidation)
	}
	return utils.ValidatePhone(input.Phone)
}

func (s *Store) CreateAgent(ctx context.Context, input *NewAgent) (*Agent, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	agent := Agent{
		Name:           input.Name,
		Phone:          input.Phone,
		Region:         input.Region,
		CommissionRate: input.CommissionRate,
		UserId:         input.UserId,
		IsActive:       utils.NewTrue(),
	}
	if err := s.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &agent, nil
}

func (s *Store) UpdateAgent(ctx context.Context, id int, input *NewAgent) (*Agent, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	var agent Agent
	if err := s.db.WithContext(ctx).First(&agent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: agent %d", utils.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	agent.Name = input.Name
	agent.Phone = input.Phone
	agent.Region = input.Region
	agent.CommissionRate = input.CommissionRate
	agent.UserId = input.UserId
	if err := s.db.WithContext(ctx).Save(&agent).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &agent, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	var agents []*Agent
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return agents, nil
}
