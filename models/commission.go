package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Commission is earned by the attributed agent when a dispatch commits.
// Amount = sale value x rate x revenue-share fraction from settings.
type Commission struct {
	ID        int             `gorm:"primary_key" json:"id"`
	SaleId    int             `gorm:"uniqueIndex;not null" json:"sale_id"`
	AgentId   int             `gorm:"index;not null" json:"agent_id"`
	Rate      decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// createCommissionForSaleTx runs inside the dispatch-commit transaction.
// Unattributed sales (system sentinel agent) earn no commission.
func createCommissionForSaleTx(ctx context.Context, tx *gorm.DB, s *Store, sale *Sale) error {
	if sale.AgentId == 0 {
		return nil
	}

	rate := decimal.Zero
	var agent Agent
	if err := tx.First(&agent, sale.AgentId).Error; err == nil {
		rate = agent.CommissionRate
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	if rate.IsZero() {
		rate = settings.DefaultCommissionRate
	}
	if rate.IsZero() {
		return nil
	}

	amount := sale.Value().Mul(rate).Mul(settings.CommissionShareFraction).Round(2)
	commission := Commission{
		SaleId:  sale.ID,
		AgentId: sale.AgentId,
		Rate:    rate,
		Amount:  amount,
	}
	if err := tx.Create(&commission).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return nil
}

func (s *Store) ListCommissions(ctx context.Context, agentId *int) ([]*Commission, error) {
	dbCtx := s.db.WithContext(ctx)
	if agentId != nil && *agentId > 0 {
		dbCtx = dbCtx.Where("agent_id = ?", *agentId)
	}
	var commissions []*Commission
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return commissions, nil
}
