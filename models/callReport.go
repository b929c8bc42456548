package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
)

// CallReport logs one agent-partner contact for the sales follow-up screen.
type CallReport struct {
	ID           int        `gorm:"primary_key" json:"id"`
	AgentId      int        `gorm:"index;not null" json:"agent_id"`
	PartnerId    int        `gorm:"index;not null" json:"partner_id"`
	CallDate     time.Time  `gorm:"not null" json:"call_date"`
	Summary      string     `gorm:"type:text" json:"summary"`
	FollowUpDate *time.Time `json:"follow_up_date"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewCallReport struct {
	AgentId      int        `json:"agent_id" binding:"required"`
	PartnerId    int        `json:"partner_id" binding:"required"`
	CallDate     time.Time  `json:"call_date"`
	Summary      string     `json:"summary"`
	FollowUpDate *time.Time `json:"follow_up_date"`
}

func (s *Store) CreateCallReport(ctx context.Context, input *NewCallReport) (*CallReport, error) {
	if err := s.validatePartnerId(ctx, input.PartnerId); err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Agent{}).Where("id = ?", input.AgentId).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: agent %d", utils.ErrNotFound, input.AgentId)
	}

	callDate := input.CallDate
	if callDate.IsZero() {
		callDate = time.Now().UTC()
	}
	report := CallReport{
		AgentId:      input.AgentId,
		PartnerId:    input.PartnerId,
		CallDate:     callDate,
		Summary:      input.Summary,
		FollowUpDate: input.FollowUpDate,
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &report, nil
}

func (s *Store) ListCallReports(ctx context.Context) ([]*CallReport, error) {
	var reports []*CallReport
	if err := s.db.WithContext(ctx).Order("call_date DESC, id DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return reports, nil
}
