package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"gorm.io/gorm"
)

// WorkOrder is the production-floor ticket derived from one order. Status
// moves one way: Pending -> InProd -> Completed.
type WorkOrder struct {
	ID              int               `gorm:"primary_key" json:"id"`
	ReferenceNumber string            `gorm:"size:30;uniqueIndex" json:"reference_number"`
	OrderId         int               `gorm:"index;not null" json:"order_id"`
	Order           *Order            `gorm:"foreignKey:OrderId" json:"order,omitempty"`
	CurrentStatus   WorkOrderStatus   `gorm:"type:enum('Pending','InProd','Completed');not null;default:'Pending'" json:"current_status"`
	Priority        WorkOrderPriority `gorm:"type:enum('Normal','High','Critical');not null;default:'Normal'" json:"priority"`
	StartDate       *time.Time        `json:"start_date"`
	Notes           string            `gorm:"type:text" json:"notes"`
	CreatedBy       int               `json:"created_by"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IssueWorkOrder opens a production ticket for a Pending order and moves the
// order to AwaitingProd. An order that already left Pending cannot get a
// second ticket through this path.
func (s *Store) IssueWorkOrder(ctx context.Context, orderId int, priority WorkOrderPriority) (*WorkOrder, error) {
	if priority == "" {
		priority = WorkOrderPriorityNormal
	}
	switch priority {
	case WorkOrderPriorityNormal, WorkOrderPriorityHigh, WorkOrderPriorityCritical:
	default:
		return nil, fmt.Errorf("%w: invalid work order priority", utils.ErrValidation)
	}

	order, err := s.GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.CurrentStatus != OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s, work orders can only be issued while Pending", utils.ErrInvalidState, order.ReferenceNumber, order.CurrentStatus)
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	workOrder := WorkOrder{
		OrderId:       order.ID,
		CurrentStatus: WorkOrderStatusPending,
		Priority:      priority,
		CreatedBy:     userId,
	}

	tx := s.db.Begin()
	if err := tx.WithContext(ctx).Create(&workOrder).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	workOrder.ReferenceNumber = fmt.Sprintf("WO-%06d", workOrder.ID)
	if err := tx.WithContext(ctx).Model(&workOrder).Update("reference_number", workOrder.ReferenceNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := transitionOrderTx(tx.WithContext(ctx), order, OrderStatusAwaitingProd); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &workOrder, nil
}

// UpdateWorkOrderStatus advances a ticket. Starting production stamps
// StartDate and forwards the order; completion forwards the order to
// ReadyForDispatch and posts the produced quantities into inventory in the
// same transaction.
func (s *Store) UpdateWorkOrderStatus(ctx context.Context, id int, status WorkOrderStatus) error {
	var workOrder WorkOrder
	if err := s.db.WithContext(ctx).First(&workOrder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: work order %d", utils.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	switch {
	case workOrder.CurrentStatus == WorkOrderStatusPending && status == WorkOrderStatusInProd:
	case workOrder.CurrentStatus == WorkOrderStatusInProd && status == WorkOrderStatusCompleted:
	default:
		return fmt.Errorf("%w: work order %s cannot move from %s to %s", utils.ErrInvalidState, workOrder.ReferenceNumber, workOrder.CurrentStatus, status)
	}

	tx := s.db.Begin()
	order, err := fetchOrder(tx.WithContext(ctx), workOrder.OrderId)
	if err != nil {
		tx.Rollback()
		return err
	}
	var produced []*InventoryLog

	if status == WorkOrderStatusInProd {
		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Model(&workOrder).Updates(map[string]interface{}{
			"current_status": WorkOrderStatusInProd,
			"start_date":     now,
		}).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %v", utils.ErrStorage, err)
		}
		if err := transitionOrderTx(tx.WithContext(ctx), order, OrderStatusInProd); err != nil {
			tx.Rollback()
			return err
		}
	} else {
		if err := tx.WithContext(ctx).Model(&workOrder).Update("current_status", WorkOrderStatusCompleted).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %v", utils.ErrStorage, err)
		}
		if err := transitionOrderTx(tx.WithContext(ctx), order, OrderStatusReadyForDispatch); err != nil {
			tx.Rollback()
			return err
		}
		produced, err = postProductionOutputTx(ctx, tx.WithContext(ctx), order, &workOrder)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	for _, logEntry := range produced {
		s.notifyInventoryChanged(InventoryChange{
			InventoryItemId: logEntry.InventoryItemId,
			Change:          logEntry.Change,
			FinalQty:        logEntry.FinalQty,
			Type:            logEntry.Type,
		})
	}
	return nil
}

// postProductionOutputTx credits each order line's produced amount to the
// owning partner's inventory item (reserve pool for guest orders), creating
// the item on first production.
func postProductionOutputTx(ctx context.Context, tx *gorm.DB, order *Order, workOrder *WorkOrder) ([]*InventoryLog, error) {
	var logs []*InventoryLog
	for _, d := range order.Details {
		item, err := findOrCreateItemForProduction(tx, order.PartnerId, d.ProductName, d.Category)
		if err != nil {
			return nil, err
		}
		notes := fmt.Sprintf("production completed for %s (%s)", workOrder.ReferenceNumber, order.ReferenceNumber)
		logEntry, err := adjustInventoryTx(ctx, tx, item.ID, d.Qty, d.WeightKg, InventoryLogTypeRestock, notes)
		if err != nil {
			return nil, err
		}
		logs = append(logs, logEntry)
	}
	return logs, nil
}

func (s *Store) ListWorkOrders(ctx context.Context) ([]*WorkOrder, error) {
	var workOrders []*WorkOrder
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&workOrders).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return workOrders, nil
}

// DeleteWorkOrder is a privileged corrective action. It does not roll back
// the parent order's status.
func (s *Store) DeleteWorkOrder(ctx context.Context, id int) error {
	if err := s.ActorCan(ctx, PermDeleteWorkOrders); err != nil {
		return err
	}
	var workOrder WorkOrder
	if err := s.db.WithContext(ctx).First(&workOrder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: work order %d", utils.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := s.db.WithContext(ctx).Delete(&workOrder).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return nil
}
