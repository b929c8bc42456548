package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"gorm.io/gorm"
)

// Partner is a wholesale customer. AgentId is the assigned sales agent used
// for sale attribution when the dispatching operator has no agent link.
type Partner struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CompanyName string    `gorm:"size:100" json:"company_name"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Address     string    `gorm:"size:255" json:"address"`
	AgentId     *int      `gorm:"index" json:"agent_id"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPartner struct {
	Name        string `json:"name" binding:"required"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone" binding:"omitempty,phone"`
	Address     string `json:"address"`
	AgentId     *int   `json:"agent_id"`
}

func (input *NewPartner) validate(ctx context.Context, s *Store) error {
	if input.Name == "" {
		return fmt.Errorf("%w: partner name is required", utils.ErrValidation)
	}
	if err := utils.ValidatePhone(input.Phone); err != nil {
		return err
	}
	if input.AgentId != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Agent{}).Where("id = ?", *input.AgentId).Count(&count).Error; err != nil {
			return fmt.Errorf("%w: %v", utils.ErrStorage, err)
		}
		if count <= 0 {
			return fmt.Errorf("%w: agent %d", utils.ErrNotFound, *input.AgentId)
		}
	}
	return nil
}

func (s *Store) CreatePartner(ctx context.Context, input *NewPartner) (*Partner, error) {
	if err := input.validate(ctx, s); err != nil {
		return nil, err
	}
	partner := Partner{
		Name:        input.Name,
		CompanyName: input.CompanyName,
		Phone:       input.Phone,
		Address:     input.Address,
		AgentId:     input.AgentId,
		IsActive:    utils.NewTrue(),
	}
	if err := s.db.WithContext(ctx).Create(&partner).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &partner, nil
}

func (s *Store) UpdatePartner(ctx context.Context, id int, input *NewPartner) (*Partner, error) {
	if err := input.validate(ctx, s); err != nil {
		return nil, err
	}
	var partner Partner
	if err := s.db.WithContext(ctx).First(&partner, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: partner %d", utils.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	partner.Name = input.Name
	partner.CompanyName = input.CompanyName
	partner.Phone = input.Phone
	partner.Address = input.Address
	partner.AgentId = input.AgentId
	if err := s.db.WithContext(ctx).Save(&partner).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &partner, nil
}

func (s *Store) ListPartners(ctx context.Context) ([]*Partner, error) {
	var partners []*Partner
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&partners).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return partners, nil
}

func (s *Store) validatePartnerId(ctx context.Context, partnerId int) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Partner{}).Where("id = ?", partnerId).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if count <= 0 {
		return fmt.Errorf("%w: partner %d", utils.ErrNotFound, partnerId)
	}
	return nil
}
