package clients

import (
	"context"
	"fmt"

	"school-fees/internal/domain"
	ws "school-fees/internal/transport/websocket"
)

// ClassTopic is the websocket topic carrying invoice events for one class.
func ClassTopic(classID string) string {
	return "class#" + classID
}

// OperatorTopic is the websocket topic carrying export events for one operator.
func OperatorTopic(operatorID int64) string {
	return fmt.Sprintf("operator#%d", operatorID)
}

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) NotifyExportProgress(
	ctx context.Context,
	operatorID int64,
	exportID string,
	progress float64,
	stage string,
) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]any{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(OperatorTopic(operatorID), &ws.Message{
		Type: "export_progress",
		Data: data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(
	ctx context.Context,
	operatorID int64,
	exportID string,
	url string,
	filename string,
) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(OperatorTopic(operatorID), &ws.Message{
		Type: "export_complete",
		Data: map[string]any{
			"id":          exportID,
			"url":         url,
			"filename":    filename,
			"operator_id": operatorID,
		},
	})
	return nil
}

// NotifyExportFailed tells an operator that an export failed with the provided error message.
func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, operatorID int64, exportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(OperatorTopic(operatorID), &ws.Message{
		Type: "export_failed",
		Data: map[string]any{
			"id":          exportID,
			"message":     errMsg,
			"operator_id": operatorID,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyInvoiceUpdated(ctx context.Context, inv domain.Invoice) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(ClassTopic(inv.ClassID), &ws.Message{
		Type: "invoice_updated",
		Data: map[string]any{
			"invoice_id":  inv.ID,
			"student_id":  inv.StudentID,
			"month":       inv.Month,
			"year":        inv.Year,
			"paid_amount": inv.PaidAmount,
			"late_fine":   inv.LateFine,
			"status":      inv.Status,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyInvoicesGenerated(ctx context.Context, classID string, month, year, created int) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(ClassTopic(classID), &ws.Message{
		Type: "invoices_generated",
		Data: map[string]any{
			"class_id": classID,
			"month":    month,
			"year":     year,
			"created":  created,
		},
	})
	return nil
}
