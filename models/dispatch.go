package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DispatchDraft is the persisted, in-progress proposal to release stock
// against an order. At most one draft exists per order. Field edits are
// durable immediately so partial authorization survives reloads; Version
// increments on every merge so a commit can detect a stale draft.
type DispatchDraft struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OrderId         int             `gorm:"uniqueIndex;not null" json:"order_id"`
	InventoryItemId *int            `json:"inventory_item_id"`
	WeightKg        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight_kg"`
	UnitQty         int             `gorm:"not null;default:0" json:"unit_qty"`
	Notes           string          `gorm:"type:text" json:"notes"`
	OwnerApproved   *bool           `gorm:"not null;default:false" json:"owner_approved"`
	OfficerApproved *bool           `gorm:"not null;default:false" json:"officer_approved"`
	Version         int             `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DispatchDraftPatch merges into the draft; nil fields are left untouched.
// Approval flags are deliberately absent, they only move through
// RecordApproval.
type DispatchDraftPatch struct {
	InventoryItemId *int             `json:"inventory_item_id"`
	WeightKg        *decimal.Decimal `json:"weight_kg"`
	UnitQty         *int             `json:"unit_qty"`
	Notes           *string          `json:"notes"`
}

func draftApproved(flag *bool) bool {
	return flag != nil && *flag
}

// UpdatePendingDispatch persists a field-level edit to the order's draft,
// creating the draft on first touch. Valid only while the order is in a
// dispatchable state.
func (s *Store) UpdatePendingDispatch(ctx context.Context, orderId int, patch *DispatchDraftPatch) error {
	order, err := s.GetOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if order.CurrentStatus != OrderStatusReadyForDispatch && order.CurrentStatus != OrderStatusPartiallyFulfilled {
		return fmt.Errorf("%w: order %s is %s, dispatch drafts require ReadyForDispatch or PartiallyFulfilled", utils.ErrInvalidState, order.ReferenceNumber, order.CurrentStatus)
	}
	if patch.InventoryItemId != nil {
		if _, err := s.GetInventoryItem(ctx, *patch.InventoryItemId); err != nil {
			return err
		}
	}
	if patch.WeightKg != nil && patch.WeightKg.IsNegative() {
		return fmt.Errorf("%w: dispatch weight cannot be negative", utils.ErrValidation)
	}
	if patch.UnitQty != nil && *patch.UnitQty < 0 {
		return fmt.Errorf("%w: dispatch unit volume cannot be negative", utils.ErrValidation)
	}

	tx := s.db.Begin()
	draft := order.PendingDispatch
	if draft == nil {
		draft = &DispatchDraft{
			OrderId:         order.ID,
			OwnerApproved:   utils.NewFalse(),
			OfficerApproved: utils.NewFalse(),
		}
		if err := tx.WithContext(ctx).Create(draft).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %v", utils.ErrStorage, err)
		}
	}

	updates := map[string]interface{}{
		"version": draft.Version + 1,
	}
	if patch.InventoryItemId != nil {
		updates["inventory_item_id"] = *patch.InventoryItemId
	}
	if patch.WeightKg != nil {
		updates["weight_kg"] = *patch.WeightKg
	}
	if patch.UnitQty != nil {
		updates["unit_qty"] = *patch.UnitQty
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if err := tx.WithContext(ctx).Model(draft).Updates(updates).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return nil
}

// RecordApproval sets the approval flag of the given role class on the
// order's draft. Idempotent. The acting user must hold the matching role
// class; approving for the other class is rejected.
func (s *Store) RecordApproval(ctx context.Context, orderId int, class ApprovalRole) error {
	roleStr, _ := utils.GetUserRoleFromContext(ctx)
	if !ActorCanApprove(UserRole(roleStr), class) {
		return fmt.Errorf("%w: your role cannot approve as %s", utils.ErrAuthorization, class)
	}

	order, err := s.GetOrder(ctx, orderId)
	if err != nil {
		return err
	}
	draft := order.PendingDispatch
	if draft == nil {
		return fmt.Errorf("%w: order %s has no pending dispatch", utils.ErrInvalidState, order.ReferenceNumber)
	}

	var column string
	var already bool
	switch class {
	case ApprovalRoleSystemOwner:
		column, already = "owner_approved", draftApproved(draft.OwnerApproved)
	case ApprovalRoleAccountOfficer:
		column, already = "officer_approved", draftApproved(draft.OfficerApproved)
	default:
		return fmt.Errorf("%w: invalid approval role", utils.ErrValidation)
	}
	if already {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(draft).Update(column, true).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return nil
}

// CommitDispatch turns a fully authorized draft into an immutable Sale:
// it debits the inventory ledger, records the sale and its commission, clears
// the draft and advances the order, all in one transaction. expectedVersion,
// when supplied, guards against committing a draft someone else just edited.
func (s *Store) CommitDispatch(ctx context.Context, orderId int, expectedVersion *int) (*Sale, error) {
	if err := s.ActorCan(ctx, PermCommitDispatch); err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.CurrentStatus != OrderStatusReadyForDispatch && order.CurrentStatus != OrderStatusPartiallyFulfilled {
		return nil, fmt.Errorf("%w: order %s is %s, dispatch requires ReadyForDispatch or PartiallyFulfilled", utils.ErrInvalidState, order.ReferenceNumber, order.CurrentStatus)
	}
	draft := order.PendingDispatch
	if draft == nil {
		return nil, fmt.Errorf("%w: order has no pending dispatch", utils.ErrValidation)
	}
	if !draftApproved(draft.OwnerApproved) || !draftApproved(draft.OfficerApproved) {
		return nil, fmt.Errorf("%w: dual authorization required", utils.ErrAuthorization)
	}
	if draft.InventoryItemId == nil {
		return nil, fmt.Errorf("%w: no inventory item selected for dispatch", utils.ErrValidation)
	}
	if draft.WeightKg.IsNegative() || draft.UnitQty < 0 {
		return nil, fmt.Errorf("%w: dispatch amounts cannot be negative", utils.ErrValidation)
	}
	if !draft.WeightKg.IsPositive() && draft.UnitQty <= 0 {
		return nil, fmt.Errorf("%w: dispatch requires a positive weight or unit volume", utils.ErrValidation)
	}
	if expectedVersion != nil && *expectedVersion != draft.Version {
		return nil, fmt.Errorf("%w: dispatch draft was modified concurrently, re-read and retry", utils.ErrStorage)
	}

	item, err := s.GetInventoryItem(ctx, *draft.InventoryItemId)
	if err != nil {
		return nil, err
	}
	unitPrice, err := ResolveUnitPrice(order.Details, item.Category)
	if err != nil {
		return nil, err
	}
	agentId, err := s.resolveSaleAgent(ctx, order)
	if err != nil {
		return nil, err
	}

	release, err := s.itemLock(ctx, item.ID, "CommitDispatch")
	if err != nil {
		return nil, err
	}
	defer release()

	sale := Sale{
		OrderId:         order.ID,
		AgentId:         agentId,
		PartnerId:       order.PartnerId,
		InventoryItemId: item.ID,
		WeightKg:        draft.WeightKg,
		UnitQty:         draft.UnitQty,
		UnitPrice:       unitPrice,
		Notes:           draft.Notes,
	}

	tx := s.db.Begin()
	if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	notes := fmt.Sprintf("dispatched against %s", order.ReferenceNumber)
	logEntry, err := adjustInventoryTx(ctx, tx.WithContext(ctx), item.ID, -sale.UnitQty, sale.WeightKg.Neg(), InventoryLogTypeReduction, notes)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createCommissionForSaleTx(ctx, tx.WithContext(ctx), s, &sale); err != nil {
		tx.Rollback()
		return nil, err
	}

	// The delete is version guarded: if a racing commit already consumed the
	// draft, or an edit landed after our read, zero rows match and the whole
	// transaction rolls back instead of producing a second sale.
	res := tx.WithContext(ctx).Where("id = ? AND version = ?", draft.ID, draft.Version).Delete(&DispatchDraft{})
	if res.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: dispatch draft was committed or modified concurrently, re-read and retry", utils.ErrStorage)
	}
	order.PendingDispatch = nil

	next, err := fulfillmentStatusTx(tx.WithContext(ctx), order)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := transitionOrderTx(tx.WithContext(ctx), order, next); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	s.notifyInventoryChanged(InventoryChange{
		InventoryItemId: logEntry.InventoryItemId,
		Change:          logEntry.Change,
		FinalQty:        logEntry.FinalQty,
		Type:            logEntry.Type,
	})
	return &sale, nil
}

// fulfillmentStatusTx compares everything released so far (including rows
// written in this transaction) against the ordered amounts.
func fulfillmentStatusTx(tx *gorm.DB, order *Order) (OrderStatus, error) {
	type totals struct {
		WeightKg decimal.Decimal `gorm:"column:weight_kg"`
		UnitQty  int             `gorm:"column:unit_qty"`
	}
	var released totals
	if err := tx.Model(&Sale{}).
		Select("COALESCE(SUM(weight_kg), 0) AS weight_kg, COALESCE(SUM(unit_qty), 0) AS unit_qty").
		Where("order_id = ?", order.ID).
		Scan(&released).Error; err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	orderedWeight := decimal.Zero
	orderedQty := 0
	for _, d := range order.Details {
		orderedWeight = orderedWeight.Add(d.WeightKg)
		orderedQty += d.Qty
	}

	if released.WeightKg.GreaterThanOrEqual(orderedWeight) && released.UnitQty >= orderedQty {
		return OrderStatusFulfilled, nil
	}
	return OrderStatusPartiallyFulfilled, nil
}

// resolveSaleAgent attributes the sale: the operator's linked agent first,
// then the partner's assigned agent, then the system sentinel (0).
func (s *Store) resolveSaleAgent(ctx context.Context, order *Order) (int, error) {
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		var agent Agent
		err := s.db.WithContext(ctx).Where("user_id = ?", userId).First(&agent).Error
		if err == nil {
			return agent.ID, nil
		}
		if err != gorm.ErrRecordNotFound {
			return 0, fmt.Errorf("%w: %v", utils.ErrStorage, err)
		}
	}
	if order.PartnerId != nil {
		var partner Partner
		if err := s.db.WithContext(ctx).First(&partner, *order.PartnerId).Error; err == nil && partner.AgentId != nil {
			return *partner.AgentId, nil
		}
	}
	return 0, nil
}
