package models_test

import (
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
)

// buildDispatchableOrder walks a partner order through production so the
// flow tests start from ReadyForDispatch with produced stock on hand.
func buildDispatchableOrder(t *testing.T, store *models.Store) (*models.Order, *models.InventoryItem, *models.Agent) {
	t.Helper()
	ctx := ownerContext()

	agent, err := store.CreateAgent(ctx, &models.NewAgent{
		Name:           "Aung Kyaw",
		Region:         "Yangon",
		CommissionRate: dec("0.05"),
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	partner, err := store.CreatePartner(ctx, &models.NewPartner{
		Name:        "U Mya",
		CompanyName: "Golden Plastics Trading",
		AgentId:     &agent.ID,
	})
	if err != nil {
		t.Fatalf("CreatePartner: %v", err)
	}

	order, err := store.CreateOrder(ctx, &models.NewOrder{
		PartnerId: &partner.ID,
		Details: []models.NewOrderDetail{{
			ProductName: "Clear Roller 40in",
			Category:    models.ProductCategoryRoller,
			Qty:         3,
			WeightKg:    dec("1000"),
			Rate:        dec("15.50"),
		}},
		TotalValue: dec("15500"),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.CurrentStatus != models.OrderStatusPending {
		t.Fatalf("new order status = %s, want Pending", order.CurrentStatus)
	}

	workOrder, err := store.IssueWorkOrder(ctx, order.ID, models.WorkOrderPriorityCritical)
	if err != nil {
		t.Fatalf("IssueWorkOrder: %v", err)
	}

	// A second ticket for the same order must be refused: the order already
	// left Pending.
	if _, err := store.IssueWorkOrder(ctx, order.ID, models.WorkOrderPriorityNormal); !utils.IsInvalidState(err) {
		t.Fatalf("second IssueWorkOrder returned %v, want invalid-state", err)
	}

	if err := store.UpdateWorkOrderStatus(ctx, workOrder.ID, models.WorkOrderStatusInProd); err != nil {
		t.Fatalf("start production: %v", err)
	}
	if err := store.UpdateWorkOrderStatus(ctx, workOrder.ID, models.WorkOrderStatusCompleted); err != nil {
		t.Fatalf("complete production: %v", err)
	}

	order, err = store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.CurrentStatus != models.OrderStatusReadyForDispatch {
		t.Fatalf("order status after completion = %s, want ReadyForDispatch", order.CurrentStatus)
	}

	// Production output landed in the partner's item for the produced product.
	items, err := store.ListInventory(ctx)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	var item *models.InventoryItem
	for _, candidate := range items {
		if candidate.ProductName == "Clear Roller 40in" && candidate.PartnerId != nil && *candidate.PartnerId == partner.ID {
			item = candidate
		}
	}
	if item == nil {
		t.Fatal("production did not create the partner's inventory item")
	}
	if item.Qty != 3 || !item.TotalWeightKg.Equal(dec("1000")) {
		t.Fatalf("produced item qty=%d weight=%s, want 3 / 1000", item.Qty, item.TotalWeightKg)
	}
	return order, item, agent
}

func TestDispatchDualAuthorizationFlow(t *testing.T) {
	store := setupIntegrationStore(t)
	order, item, agent := buildDispatchableOrder(t, store)
	ownerCtx := ownerContext()
	officerCtx := officerContext()

	patch := &models.DispatchDraftPatch{
		InventoryItemId: &item.ID,
		WeightKg:        utils.NewDecimalPtr(dec("1000")),
		UnitQty:         utils.NewIntPtr(3),
	}
	if err := store.UpdatePendingDispatch(ownerCtx, order.ID, patch); err != nil {
		t.Fatalf("UpdatePendingDispatch: %v", err)
	}

	// Nobody has approved yet.
	if _, err := store.CommitDispatch(ownerCtx, order.ID, nil); !utils.IsAuthorization(err) {
		t.Fatalf("commit without approvals returned %v, want authorization error", err)
	}

	// One approval is not enough, and an owner cannot supply the officer's.
	if err := store.RecordApproval(ownerCtx, order.ID, models.ApprovalRoleSystemOwner); err != nil {
		t.Fatalf("owner approval: %v", err)
	}
	if err := store.RecordApproval(ownerCtx, order.ID, models.ApprovalRoleAccountOfficer); !utils.IsAuthorization(err) {
		t.Fatalf("owner approving as officer returned %v, want authorization error", err)
	}
	if _, err := store.CommitDispatch(ownerCtx, order.ID, nil); !utils.IsAuthorization(err) {
		t.Fatalf("commit with one approval returned %v, want authorization error", err)
	}

	// Clerks hold neither approval class.
	if err := store.RecordApproval(clerkContext(), order.ID, models.ApprovalRoleAccountOfficer); !utils.IsAuthorization(err) {
		t.Fatalf("clerk approval returned %v, want authorization error", err)
	}

	// Re-approving is a no-op, not an error.
	if err := store.RecordApproval(ownerCtx, order.ID, models.ApprovalRoleSystemOwner); err != nil {
		t.Fatalf("repeated owner approval: %v", err)
	}

	if err := store.RecordApproval(officerCtx, order.ID, models.ApprovalRoleAccountOfficer); err != nil {
		t.Fatalf("officer approval: %v", err)
	}

	sale, err := store.CommitDispatch(ownerCtx, order.ID, nil)
	if err != nil {
		t.Fatalf("CommitDispatch: %v", err)
	}
	if !sale.UnitPrice.Equal(dec("15.50")) {
		t.Fatalf("sale unit price = %s, want 15.50 from the roller line", sale.UnitPrice)
	}
	if sale.AgentId != agent.ID {
		t.Fatalf("sale agent = %d, want partner's agent %d", sale.AgentId, agent.ID)
	}

	// Inventory debit went through the ledger.
	got, err := store.GetInventoryItem(ownerCtx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	if got.Qty != 0 || !got.TotalWeightKg.Equal(decimal.Zero) {
		t.Fatalf("item after dispatch qty=%d weight=%s, want 0 / 0", got.Qty, got.TotalWeightKg)
	}
	logs, err := store.GetInventoryLogs(ownerCtx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryLogs: %v", err)
	}
	last := logs[len(logs)-1]
	if last.Type != models.InventoryLogTypeReduction || last.Change != -3 || last.FinalQty != 0 {
		t.Fatalf("dispatch ledger entry = %+v", last)
	}

	// Whole ordered amount released: order is Fulfilled and the draft is gone.
	order, err = store.GetOrder(ownerCtx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.CurrentStatus != models.OrderStatusFulfilled {
		t.Fatalf("order status = %s, want Fulfilled", order.CurrentStatus)
	}
	if order.PendingDispatch != nil {
		t.Fatal("draft still present after commit")
	}

	// Committing again must fail: there is no draft and the order left the
	// dispatchable states.
	if _, err := store.CommitDispatch(ownerCtx, order.ID, nil); err == nil {
		t.Fatal("second commit accepted")
	}

	// Commission derived from the agent's own rate and the revenue share.
	commissions, err := store.ListCommissions(ownerCtx, &agent.ID)
	if err != nil {
		t.Fatalf("ListCommissions: %v", err)
	}
	if len(commissions) != 1 {
		t.Fatalf("commission rows = %d, want 1", len(commissions))
	}
	// 15500 x 0.05 x 0.35 (default share fraction) = 271.25
	if !commissions[0].Amount.Equal(dec("271.25")) {
		t.Fatalf("commission amount = %s, want 271.25", commissions[0].Amount)
	}
}

func TestDispatchDraftVersionConflict(t *testing.T) {
	store := setupIntegrationStore(t)
	order, item, _ := buildDispatchableOrder(t, store)
	ownerCtx := ownerContext()
	officerCtx := officerContext()

	if err := store.UpdatePendingDispatch(ownerCtx, order.ID, &models.DispatchDraftPatch{
		InventoryItemId: &item.ID,
		WeightKg:        utils.NewDecimalPtr(dec("400")),
		UnitQty:         utils.NewIntPtr(1),
	}); err != nil {
		t.Fatalf("UpdatePendingDispatch: %v", err)
	}
	if err := store.RecordApproval(ownerCtx, order.ID, models.ApprovalRoleSystemOwner); err != nil {
		t.Fatalf("owner approval: %v", err)
	}
	if err := store.RecordApproval(officerCtx, order.ID, models.ApprovalRoleAccountOfficer); err != nil {
		t.Fatalf("officer approval: %v", err)
	}

	order2, err := store.GetOrder(ownerCtx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	staleVersion := order2.PendingDispatch.Version

	// Someone edits the draft after our read.
	if err := store.UpdatePendingDispatch(officerCtx, order.ID, &models.DispatchDraftPatch{
		WeightKg: utils.NewDecimalPtr(dec("600")),
	}); err != nil {
		t.Fatalf("concurrent edit: %v", err)
	}

	if _, err := store.CommitDispatch(ownerCtx, order.ID, &staleVersion); !utils.IsStorage(err) {
		t.Fatalf("stale commit returned %v, want conflict", err)
	}

	// Committing with the current version succeeds and leaves the order
	// partially fulfilled (600kg of 1000kg released).
	order2, err = store.GetOrder(ownerCtx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	currentVersion := order2.PendingDispatch.Version
	sale, err := store.CommitDispatch(ownerCtx, order.ID, &currentVersion)
	if err != nil {
		t.Fatalf("CommitDispatch: %v", err)
	}
	if !sale.WeightKg.Equal(dec("600")) {
		t.Fatalf("sale weight = %s, want the edited 600", sale.WeightKg)
	}

	order2, err = store.GetOrder(ownerCtx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order2.CurrentStatus != models.OrderStatusPartiallyFulfilled {
		t.Fatalf("order status = %s, want PartiallyFulfilled", order2.CurrentStatus)
	}
}

func TestDispatchRejectsNegativeAmounts(t *testing.T) {
	store := setupIntegrationStore(t)
	order, item, _ := buildDispatchableOrder(t, store)
	ownerCtx := ownerContext()
	officerCtx := officerContext()

	err := store.UpdatePendingDispatch(ownerCtx, order.ID, &models.DispatchDraftPatch{
		InventoryItemId: &item.ID,
		WeightKg:        utils.NewDecimalPtr(dec("-5")),
		UnitQty:         utils.NewIntPtr(3),
	})
	if !utils.IsValidation(err) {
		t.Fatalf("negative weight patch returned %v, want validation error", err)
	}
	err = store.UpdatePendingDispatch(ownerCtx, order.ID, &models.DispatchDraftPatch{
		UnitQty: utils.NewIntPtr(-2),
	})
	if !utils.IsValidation(err) {
		t.Fatalf("negative unit volume patch returned %v, want validation error", err)
	}

	// Item selected but no amounts entered: fully authorized or not, the
	// commit must refuse a zero release.
	if err := store.UpdatePendingDispatch(ownerCtx, order.ID, &models.DispatchDraftPatch{
		InventoryItemId: &item.ID,
	}); err != nil {
		t.Fatalf("UpdatePendingDispatch: %v", err)
	}
	if err := store.RecordApproval(ownerCtx, order.ID, models.ApprovalRoleSystemOwner); err != nil {
		t.Fatalf("owner approval: %v", err)
	}
	if err := store.RecordApproval(officerCtx, order.ID, models.ApprovalRoleAccountOfficer); err != nil {
		t.Fatalf("officer approval: %v", err)
	}
	if _, err := store.CommitDispatch(ownerCtx, order.ID, nil); !utils.IsValidation(err) {
		t.Fatalf("zero-amount commit returned %v, want validation error", err)
	}

	// A negative amount written past the patch layer must not flip the
	// dispatch debit into a credit.
	if err := store.DB().Model(&models.DispatchDraft{}).
		Where("order_id = ?", order.ID).
		Updates(map[string]interface{}{"weight_kg": dec("-5"), "unit_qty": 3}).Error; err != nil {
		t.Fatalf("forcing negative draft row: %v", err)
	}
	if _, err := store.CommitDispatch(ownerCtx, order.ID, nil); !utils.IsValidation(err) {
		t.Fatalf("negative-weight commit returned %v, want validation error", err)
	}

	got, err := store.GetInventoryItem(ownerCtx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	if got.Qty != 3 || !got.TotalWeightKg.Equal(dec("1000")) {
		t.Fatalf("stock after rejected dispatches qty=%d weight=%s, want 3 / 1000", got.Qty, got.TotalWeightKg)
	}
}

func TestConcurrentCommitsCreateOneSale(t *testing.T) {
	store := setupIntegrationStore(t)
	order, item, _ := buildDispatchableOrder(t, store)
	ownerCtx := ownerContext()
	officerCtx := officerContext()

	// Release less than the ordered amounts so the stock floor alone cannot
	// stop a duplicate debit.
	if err := store.UpdatePendingDispatch(ownerCtx, order.ID, &models.DispatchDraftPatch{
		InventoryItemId: &item.ID,
		WeightKg:        utils.NewDecimalPtr(dec("400")),
		UnitQty:         utils.NewIntPtr(1),
	}); err != nil {
		t.Fatalf("UpdatePendingDispatch: %v", err)
	}
	if err := store.RecordApproval(ownerCtx, order.ID, models.ApprovalRoleSystemOwner); err != nil {
		t.Fatalf("owner approval: %v", err)
	}
	if err := store.RecordApproval(officerCtx, order.ID, models.ApprovalRoleAccountOfficer); err != nil {
		t.Fatalf("officer approval: %v", err)
	}

	// Two operators press commit at once: exactly one may win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.CommitDispatch(ownerCtx, order.ID, nil)
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, commitErr := range errs {
		if commitErr == nil {
			committed++
		}
	}
	if committed != 1 {
		t.Fatalf("%d of 2 concurrent commits succeeded, want exactly 1 (errors: %v)", committed, errs)
	}

	sales, err := store.ListSales(ownerCtx)
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("sale rows = %d, want 1", len(sales))
	}

	got, err := store.GetInventoryItem(ownerCtx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	if got.Qty != 2 || !got.TotalWeightKg.Equal(dec("600")) {
		t.Fatalf("stock after a single commit qty=%d weight=%s, want 2 / 600", got.Qty, got.TotalWeightKg)
	}
}

func TestDispatchDraftRequiresDispatchableOrder(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := ownerContext()

	order, err := store.CreateOrder(ctx, &models.NewOrder{
		GuestCompanyName: "Walk-in Mart",
		Details: []models.NewOrderDetail{{
			ProductName: "Shopping Bag Medium",
			Category:    models.ProductCategoryPackingBag,
			Qty:         200,
			Rate:        dec("1.25"),
		}},
		TotalValue: dec("250"),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	err = store.UpdatePendingDispatch(ctx, order.ID, &models.DispatchDraftPatch{
		UnitQty: utils.NewIntPtr(10),
	})
	if !utils.IsInvalidState(err) {
		t.Fatalf("draft on Pending order returned %v, want invalid-state", err)
	}
}
