package models

import "context"

// Gateway is the data-access boundary the HTTP layer and background jobs
// talk to. *Store is the local MySQL-backed implementation; a remote
// implementation would satisfy the same contract.
type Gateway interface {
	// Inventory ledger.
	CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error)
	AdjustInventory(ctx context.Context, itemId int, change int, logType InventoryLogType, notes string) error
	GetInventoryItem(ctx context.Context, itemId int) (*InventoryItem, error)
	GetInventoryLogs(ctx context.Context, itemId int) ([]*InventoryLog, error)
	ListInventory(ctx context.Context) ([]*InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, itemId int) error

	// Orders and production.
	CreateOrder(ctx context.Context, input *NewOrder) (*Order, error)
	GetOrder(ctx context.Context, orderId int) (*Order, error)
	ListOrders(ctx context.Context) ([]*Order, error)
	IssueWorkOrder(ctx context.Context, orderId int, priority WorkOrderPriority) (*WorkOrder, error)
	UpdateWorkOrderStatus(ctx context.Context, id int, status WorkOrderStatus) error
	ListWorkOrders(ctx context.Context) ([]*WorkOrder, error)
	DeleteWorkOrder(ctx context.Context, id int) error

	// Dispatch workflow.
	UpdatePendingDispatch(ctx context.Context, orderId int, patch *DispatchDraftPatch) error
	RecordApproval(ctx context.Context, orderId int, class ApprovalRole) error
	CommitDispatch(ctx context.Context, orderId int, expectedVersion *int) (*Sale, error)
	ListSales(ctx context.Context) ([]*Sale, error)
	ListCommissions(ctx context.Context, agentId *int) ([]*Commission, error)

	// Directory.
	CreatePartner(ctx context.Context, input *NewPartner) (*Partner, error)
	UpdatePartner(ctx context.Context, id int, input *NewPartner) (*Partner, error)
	ListPartners(ctx context.Context) ([]*Partner, error)
	CreateAgent(ctx context.Context, input *NewAgent) (*Agent, error)
	UpdateAgent(ctx context.Context, id int, input *NewAgent) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	CreateCallReport(ctx context.Context, input *NewCallReport) (*CallReport, error)
	ListCallReports(ctx context.Context) ([]*CallReport, error)

	// Settings.
	GetSettings(ctx context.Context) (*BusinessSettings, error)
	ApplyRecommendation(ctx context.Context, input *SettingsRecommendation) (*BusinessSettings, error)
}

var _ Gateway = (*Store)(nil)
