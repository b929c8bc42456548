package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/config"
	"bitbucket.org/mmdatafocus/plastics_backend/middlewares"
	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFromError maps the error taxonomy onto HTTP statuses.
func statusFromError(err error) int {
	switch {
	case utils.IsValidation(err):
		return http.StatusBadRequest
	case utils.IsNotFound(err):
		return http.StatusNotFound
	case utils.IsInvalidState(err):
		return http.StatusConflict
	case utils.IsAuthorization(err):
		return http.StatusForbidden
	case utils.IsStorage(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, logger *logrus.Logger, funcName string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		config.LogError(logger, "routes.go", funcName, c.Request.URL.Path, nil, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

func registerRoutes(r *gin.Engine, store *models.Store, logger *logrus.Logger) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.POST("/auth/login", loginHandler(store, logger))

	api := r.Group("/api")
	api.Use(middlewares.RequireAuth())
	{
		api.POST("/inventory", createInventoryItemHandler(store, logger))
		api.GET("/inventory", listInventoryHandler(store, logger))
		api.GET("/inventory/:id", getInventoryItemHandler(store, logger))
		api.POST("/inventory/:id/adjust", adjustInventoryHandler(store, logger))
		api.GET("/inventory/:id/logs", getInventoryLogsHandler(store, logger))
		api.GET("/inventory/:id/logs/export", exportInventoryLogsHandler(store, logger))
		api.DELETE("/inventory/:id", deleteInventoryItemHandler(store, logger))

		api.POST("/orders", createOrderHandler(store, logger))
		api.GET("/orders", listOrdersHandler(store, logger))
		api.GET("/orders/:id", getOrderHandler(store, logger))
		api.POST("/orders/:id/work-order", issueWorkOrderHandler(store, logger))
		api.PATCH("/orders/:id/dispatch", updatePendingDispatchHandler(store, logger))
		api.POST("/orders/:id/dispatch/approve", recordApprovalHandler(store, logger))
		api.POST("/orders/:id/dispatch/commit", commitDispatchHandler(store, logger))

		api.GET("/work-orders", listWorkOrdersHandler(store, logger))
		api.PATCH("/work-orders/:id/status", updateWorkOrderStatusHandler(store, logger))
		api.DELETE("/work-orders/:id", deleteWorkOrderHandler(store, logger))

		api.GET("/sales", listSalesHandler(store, logger))
		api.GET("/commissions", listCommissionsHandler(store, logger))

		api.POST("/partners", createPartnerHandler(store, logger))
		api.PUT("/partners/:id", updatePartnerHandler(store, logger))
		api.GET("/partners", listPartnersHandler(store, logger))
		api.POST("/agents", createAgentHandler(store, logger))
		api.PUT("/agents/:id", updateAgentHandler(store, logger))
		api.GET("/agents", listAgentsHandler(store, logger))
		api.POST("/call-reports", createCallReportHandler(store, logger))
		api.GET("/call-reports", listCallReportsHandler(store, logger))

		api.POST("/users", createUserHandler(store, logger))
		api.GET("/users", listUsersHandler(store, logger))

		api.GET("/settings", getSettingsHandler(store, logger))
		api.PUT("/settings/recommendation", applyRecommendationHandler(store, logger))
	}
}

func loginHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	type loginInput struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var input loginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "login")
		defer span.End()
		token, user, err := store.Login(ctx, input.Username, input.Password)
		if err != nil {
			// Login failures answer 401, not the generic authorization 403.
			if utils.IsAuthorization(err) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
				return
			}
			abortWithError(c, logger, "loginHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func createInventoryItemHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInventoryItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := store.CreateInventoryItem(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "createInventoryItemHandler", err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func listInventoryHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := store.ListInventory(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listInventoryHandler", err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func getInventoryItemHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := store.GetInventoryItem(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, logger, "getInventoryItemHandler", err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func adjustInventoryHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	type adjustInput struct {
		Change int                     `json:"change" binding:"required"`
		Type   models.InventoryLogType `json:"type" binding:"required"`
		Notes  string                  `json:"notes"`
	}
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input adjustInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.AdjustInventory(c.Request.Context(), id, input.Change, input.Type, input.Notes); err != nil {
			abortWithError(c, logger, "adjustInventoryHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func getInventoryLogsHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logs, err := store.GetInventoryLogs(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, logger, "getInventoryLogsHandler", err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

func deleteInventoryItemHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.DeleteInventoryItem(c.Request.Context(), id); err != nil {
			abortWithError(c, logger, "deleteInventoryItemHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func createOrderHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := store.CreateOrder(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "createOrderHandler", err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func listOrdersHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := store.ListOrders(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listOrdersHandler", err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func getOrderHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := store.GetOrder(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, logger, "getOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func issueWorkOrderHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	type issueInput struct {
		Priority models.WorkOrderPriority `json:"priority"`
	}
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input issueInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		workOrder, err := store.IssueWorkOrder(c.Request.Context(), id, input.Priority)
		if err != nil {
			abortWithError(c, logger, "issueWorkOrderHandler", err)
			return
		}
		c.JSON(http.StatusCreated, workOrder)
	}
}

func updatePendingDispatchHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var patch models.DispatchDraftPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.UpdatePendingDispatch(c.Request.Context(), id, &patch); err != nil {
			abortWithError(c, logger, "updatePendingDispatchHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func recordApprovalHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	type approvalInput struct {
		Role models.ApprovalRole `json:"role" binding:"required"`
	}
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input approvalInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.RecordApproval(c.Request.Context(), id, input.Role); err != nil {
			abortWithError(c, logger, "recordApprovalHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func commitDispatchHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	type commitInput struct {
		ExpectedVersion *int `json:"expected_version"`
	}
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input commitInput
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		ctx, span := tracer.Start(c.Request.Context(), "commitDispatch")
		defer span.End()
		sale, err := store.CommitDispatch(ctx, id, input.ExpectedVersion)
		if err != nil {
			abortWithError(c, logger, "commitDispatchHandler", err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	}
}

func listWorkOrdersHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		workOrders, err := store.ListWorkOrders(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listWorkOrdersHandler", err)
			return
		}
		c.JSON(http.StatusOK, workOrders)
	}
}

func updateWorkOrderStatusHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	type statusInput struct {
		Status models.WorkOrderStatus `json:"status" binding:"required"`
	}
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input statusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.UpdateWorkOrderStatus(c.Request.Context(), id, input.Status); err != nil {
			abortWithError(c, logger, "updateWorkOrderStatusHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func deleteWorkOrderHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.DeleteWorkOrder(c.Request.Context(), id); err != nil {
			abortWithError(c, logger, "deleteWorkOrderHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listSalesHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sales, err := store.ListSales(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listSalesHandler", err)
			return
		}
		c.JSON(http.StatusOK, sales)
	}
}

func listCommissionsHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var agentId *int
		if raw := c.Query("agent_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent_id"})
				return
			}
			agentId = &id
		}
		commissions, err := store.ListCommissions(c.Request.Context(), agentId)
		if err != nil {
			abortWithError(c, logger, "listCommissionsHandler", err)
			return
		}
		c.JSON(http.StatusOK, commissions)
	}
}

func createPartnerHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPartner
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		partner, err := store.CreatePartner(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "createPartnerHandler", err)
			return
		}
		c.JSON(http.StatusCreated, partner)
	}
}

func updatePartnerHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input models.NewPartner
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		partner, err := store.UpdatePartner(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, logger, "updatePartnerHandler", err)
			return
		}
		c.JSON(http.StatusOK, partner)
	}
}

func listPartnersHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		partners, err := store.ListPartners(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listPartnersHandler", err)
			return
		}
		c.JSON(http.StatusOK, partners)
	}
}

func createAgentHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAgent
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		agent, err := store.CreateAgent(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "createAgentHandler", err)
			return
		}
		c.JSON(http.StatusCreated, agent)
	}
}

func updateAgentHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var input models.NewAgent
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		agent, err := store.UpdateAgent(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, logger, "updateAgentHandler", err)
			return
		}
		c.JSON(http.StatusOK, agent)
	}
}

func listAgentsHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := store.ListAgents(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listAgentsHandler", err)
			return
		}
		c.JSON(http.StatusOK, agents)
	}
}

func createCallReportHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCallReport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		report, err := store.CreateCallReport(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "createCallReportHandler", err)
			return
		}
		c.JSON(http.StatusCreated, report)
	}
}

func listCallReportsHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, err := store.ListCallReports(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listCallReportsHandler", err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func createUserHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := store.CreateUser(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "createUserHandler", err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func listUsersHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := store.ListUsers(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "listUsersHandler", err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func getSettingsHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings, err := store.GetSettings(c.Request.Context())
		if err != nil {
			abortWithError(c, logger, "getSettingsHandler", err)
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func applyRecommendationHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.SettingsRecommendation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		settings, err := store.ApplyRecommendation(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, logger, "applyRecommendationHandler", err)
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

// runOutboxDispatcher drains committed inventory-change records for
// downstream consumers. With no broker deployed it logs and marks them
// processed; the table still gives an exactly-once handoff point.
func runOutboxDispatcher(ctx context.Context, store *models.Store, logger *logrus.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		records, err := store.ListUnprocessedInventoryChanges(ctx, 100)
		if err != nil {
			config.LogError(logger, "routes.go", "runOutboxDispatcher", "list", nil, err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		ids := make([]int, 0, len(records))
		for _, record := range records {
			logger.WithFields(logrus.Fields{
				"inventoryItemId": record.InventoryItemId,
				"correlationId":   record.CorrelationId,
				"change":          record.Change,
			}).Info("inventory change dispatched")
			ids = append(ids, record.ID)
		}
		if err := store.MarkInventoryChangesProcessed(ctx, ids); err != nil {
			config.LogError(logger, "routes.go", "runOutboxDispatcher", "mark", nil, err)
		}
	}
}
