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

// Order is a customer commitment to buy. Exactly one of PartnerId and
// GuestCompanyName is set; guest orders produce into the reserve pool.
type Order struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ReferenceNumber  string          `gorm:"size:30;uniqueIndex" json:"reference_number"`
	PartnerId        *int            `gorm:"index" json:"partner_id"`
	Partner          *Partner        `gorm:"foreignKey:PartnerId" json:"partner,omitempty"`
	GuestCompanyName string          `gorm:"size:100" json:"guest_company_name"`
	Details          []OrderDetail   `gorm:"foreignKey:OrderId" json:"details"`
	TotalValue       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_value"`
	OrderDate        time.Time       `gorm:"not null" json:"order_date"`
	CurrentStatus    OrderStatus     `gorm:"type:enum('Pending','AwaitingProd','InProd','ReadyForDispatch','PartiallyFulfilled','Fulfilled');not null;default:'Pending'" json:"current_status"`
	PendingDispatch  *DispatchDraft  `gorm:"foreignKey:OrderId" json:"pending_dispatch,omitempty"`
	CreatedBy        int             `json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderDetail struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OrderId     int             `gorm:"index;not null" json:"order_id"`
	ProductName string          `gorm:"size:100;not null" json:"product_name"`
	Category    ProductCategory `gorm:"type:enum('Roller','PackingBag');not null" json:"category"`
	Qty         int             `gorm:"not null;default:0" json:"qty"`
	WeightKg    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight_kg"`
	Rate        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	PartnerId        *int             `json:"partner_id"`
	GuestCompanyName string           `json:"guest_company_name"`
	Details          []NewOrderDetail `json:"details" binding:"required"`
	TotalValue       decimal.Decimal  `json:"total_value"`
	OrderDate        time.Time        `json:"order_date"`
}

type NewOrderDetail struct {
	ProductName string          `json:"product_name" binding:"required"`
	Category    ProductCategory `json:"category" binding:"required"`
	Qty         int             `json:"qty"`
	WeightKg    decimal.Decimal `json:"weight_kg"`
	Rate        decimal.Decimal `json:"rate"`
}

// totalTolerance allows for 2-decimal rounding between the client-computed
// total and the line-item sum.
var totalTolerance = decimal.New(1, -2)

// LineAmount is the billed value of one line: weight x rate for rollers,
// count x rate for packing bags.
func LineAmount(d NewOrderDetail) decimal.Decimal {
	if d.Category == ProductCategoryRoller {
		return d.WeightKg.Mul(d.Rate)
	}
	return decimal.NewFromInt(int64(d.Qty)).Mul(d.Rate)
}

// ValidateOrderTotals checks that the submitted total matches the line-item
// sum within rounding tolerance.
func ValidateOrderTotals(details []NewOrderDetail, total decimal.Decimal) error {
	if len(details) == 0 {
		return fmt.Errorf("%w: order must have at least one line item", utils.ErrValidation)
	}
	sum := decimal.Zero
	for _, d := range details {
		if d.Rate.IsNegative() {
			return fmt.Errorf("%w: line rate cannot be negative", utils.ErrValidation)
		}
		switch d.Category {
		case ProductCategoryRoller:
			if !d.WeightKg.IsPositive() {
				return fmt.Errorf("%w: roller line requires a positive weight", utils.ErrValidation)
			}
		case ProductCategoryPackingBag:
			if d.Qty <= 0 {
				return fmt.Errorf("%w: packing bag line requires a positive quantity", utils.ErrValidation)
			}
		default:
			return fmt.Errorf("%w: invalid product category", utils.ErrValidation)
		}
		sum = sum.Add(LineAmount(d))
	}
	if total.Sub(sum).Abs().GreaterThan(totalTolerance) {
		return fmt.Errorf("%w: total value %s does not match line item sum %s", utils.ErrValidation, total.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

// orderTransitions is the canonical, monotonic state machine. A missing entry
// means the transition is illegal; statuses never regress.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:            {OrderStatusAwaitingProd},
	OrderStatusAwaitingProd:       {OrderStatusInProd},
	OrderStatusInProd:             {OrderStatusReadyForDispatch},
	OrderStatusReadyForDispatch:   {OrderStatusPartiallyFulfilled, OrderStatusFulfilled},
	OrderStatusPartiallyFulfilled: {OrderStatusPartiallyFulfilled, OrderStatusFulfilled},
	OrderStatusFulfilled:          {},
}

func CanTransitionOrder(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ResolveUnitPrice picks the rate of the order line whose category matches
// the inventory item being dispatched.
func ResolveUnitPrice(details []OrderDetail, category ProductCategory) (decimal.Decimal, error) {
	for _, d := range details {
		if d.Category == category {
			return d.Rate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: order has no line item for category %s", utils.ErrValidation, category)
}

func (input *NewOrder) validate(ctx context.Context, s *Store) error {
	hasPartner := input.PartnerId != nil
	hasGuest := input.GuestCompanyName != ""
	if hasPartner == hasGuest {
		return fmt.Errorf("%w: exactly one of partner or guest company name must be set", utils.ErrValidation)
	}
	if hasPartner {
		if err := s.validatePartnerId(ctx, *input.PartnerId); err != nil {
			return err
		}
	}
	return ValidateOrderTotals(input.Details, input.TotalValue)
}

// CreateOrder validates totals before any write and stores the order as
// Pending with a human-readable reference code.
func (s *Store) CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if err := input.validate(ctx, s); err != nil {
		return nil, err
	}

	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	order := Order{
		PartnerId:        input.PartnerId,
		GuestCompanyName: input.GuestCompanyName,
		TotalValue:       input.TotalValue,
		OrderDate:        orderDate,
		CurrentStatus:    OrderStatusPending,
		CreatedBy:        userId,
	}
	for _, d := range input.Details {
		order.Details = append(order.Details, OrderDetail{
			ProductName: d.ProductName,
			Category:    d.Category,
			Qty:         d.Qty,
			WeightKg:    d.WeightKg,
			Rate:        d.Rate,
			Amount:      LineAmount(d),
		})
	}

	tx := s.db.Begin()
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	order.ReferenceNumber = fmt.Sprintf("ORD-%06d", order.ID)
	if err := tx.WithContext(ctx).Model(&order).Update("reference_number", order.ReferenceNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, orderId int) (*Order, error) {
	return fetchOrder(s.db.WithContext(ctx), orderId)
}

func fetchOrder(db *gorm.DB, orderId int) (*Order, error) {
	var order Order
	err := db.Preload("Details").Preload("PendingDispatch").Preload("Partner").First(&order, orderId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", utils.ErrNotFound, orderId)
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*Order, error) {
	var orders []*Order
	if err := s.db.WithContext(ctx).
		Preload("Details").Preload("PendingDispatch").Preload("Partner").
		Order("order_date DESC, id DESC").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return orders, nil
}

// transitionOrderTx forwards an order's status inside a caller-owned
// transaction, refusing regressions.
func transitionOrderTx(tx *gorm.DB, order *Order, to OrderStatus) error {
	if order.CurrentStatus == to {
		return nil
	}
	if !CanTransitionOrder(order.CurrentStatus, to) {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", utils.ErrInvalidState, order.ReferenceNumber, order.CurrentStatus, to)
	}
	if err := tx.Model(order).Update("current_status", to).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	order.CurrentStatus = to
	return nil
}
