package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// exportInventoryLogsHandler streams the item's full audit trail as an xlsx
// workbook. The FinalQty column lets an auditor replay the running balance
// without touching the database.
func exportInventoryLogsHandler(store *models.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		item, err := store.GetInventoryItem(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, logger, "exportInventoryLogsHandler", err)
			return
		}
		logs, err := store.GetInventoryLogs(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, logger, "exportInventoryLogsHandler", err)
			return
		}

		f := excelize.NewFile()
		defer f.Close()

		sheet := "Audit Log"
		f.SetSheetName("Sheet1", sheet)

		headers := []string{"Log ID", "Date", "Type", "Change", "Final Qty", "Actor", "Notes"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet, cell, h)
		}
		for row, logEntry := range logs {
			values := []interface{}{
				logEntry.ID,
				logEntry.CreatedAt.Format(time.RFC3339),
				string(logEntry.Type),
				logEntry.Change,
				logEntry.FinalQty,
				logEntry.ActorName,
				logEntry.Notes,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		filename := fmt.Sprintf("inventory-%d-audit-%s.xlsx", item.ID, time.Now().Format("20060102"))
		c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			logger.WithError(err).Error("xlsx write failed")
		}
	}
}
