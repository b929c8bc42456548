package models

import (
	"encoding/json"
	"errors"
)

// ProductCategory decides how a line is billed: rollers by weight (kg),
// packing bags by unit count.
type ProductCategory string

const (
	ProductCategoryRoller     ProductCategory = "Roller"
	ProductCategoryPackingBag ProductCategory = "PackingBag"
)

func (c *ProductCategory) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("product category must be string")
	}
	switch str {
	case "Roller":
		*c = ProductCategoryRoller
	case "PackingBag":
		*c = ProductCategoryPackingBag
	default:
		return errors.New("invalid product category")
	}
	return nil
}

type InventoryLogType string

const (
	InventoryLogTypeInitialStock InventoryLogType = "InitialStock"
	InventoryLogTypeRestock      InventoryLogType = "Restock"
	InventoryLogTypeAdjustment   InventoryLogType = "Adjustment"
	InventoryLogTypeReduction    InventoryLogType = "Reduction"
)

func (t *InventoryLogType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("inventory log type must be string")
	}
	switch str {
	case "InitialStock":
		*t = InventoryLogTypeInitialStock
	case "Restock":
		*t = InventoryLogTypeRestock
	case "Adjustment":
		*t = InventoryLogTypeAdjustment
	case "Reduction":
		*t = InventoryLogTypeReduction
	default:
		return errors.New("invalid inventory log type")
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusPending            OrderStatus = "Pending"
	OrderStatusAwaitingProd       OrderStatus = "AwaitingProd"
	OrderStatusInProd             OrderStatus = "InProd"
	OrderStatusReadyForDispatch   OrderStatus = "ReadyForDispatch"
	OrderStatusPartiallyFulfilled OrderStatus = "PartiallyFulfilled"
	OrderStatusFulfilled          OrderStatus = "Fulfilled"
)

type WorkOrderStatus string

const (
	WorkOrderStatusPending   WorkOrderStatus = "Pending"
	WorkOrderStatusInProd    WorkOrderStatus = "InProd"
	WorkOrderStatusCompleted WorkOrderStatus = "Completed"
)

func (s *WorkOrderStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("work order status must be string")
	}
	switch str {
	case "Pending":
		*s = WorkOrderStatusPending
	case "InProd":
		*s = WorkOrderStatusInProd
	case "Completed":
		*s = WorkOrderStatusCompleted
	default:
		return errors.New("invalid work order status")
	}
	return nil
}

type WorkOrderPriority string

const (
	WorkOrderPriorityNormal   WorkOrderPriority = "Normal"
	WorkOrderPriorityHigh     WorkOrderPriority = "High"
	WorkOrderPriorityCritical WorkOrderPriority = "Critical"
)

func (p *WorkOrderPriority) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("work order priority must be string")
	}
	switch str {
	case "", "Normal":
		*p = WorkOrderPriorityNormal
	case "High":
		*p = WorkOrderPriorityHigh
	case "Critical":
		*p = WorkOrderPriorityCritical
	default:
		return errors.New("invalid work order priority")
	}
	return nil
}

// ApprovalRole is the role class an approval flag belongs to. Exactly two
// classes exist and a dispatch needs one signature from each.
type ApprovalRole string

const (
	ApprovalRoleSystemOwner    ApprovalRole = "SystemOwner"
	ApprovalRoleAccountOfficer ApprovalRole = "AccountOfficer"
)

func (r *ApprovalRole) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("approval role must be string")
	}
	switch str {
	case "SystemOwner":
		*r = ApprovalRoleSystemOwner
	case "AccountOfficer":
		*r = ApprovalRoleAccountOfficer
	default:
		return errors.New("invalid approval role")
	}
	return nil
}

// UserRole is stored as a single char like the legacy user table:
// 'O' system owner, 'A' account officer, 'C' clerk.
type UserRole string

const (
	UserRoleOwner          UserRole = "O"
	UserRoleAccountOfficer UserRole = "A"
	UserRoleClerk          UserRole = "C"
)

func (r *UserRole) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("user role must be string")
	}
	switch str {
	case "O", "A", "C":
		*r = UserRole(str)
	default:
		return errors.New("invalid user role")
	}
	return nil
}
