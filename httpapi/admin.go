package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-shopsync/adapters/gocommand"
	shopcmd "github.com/goliatone/go-shopsync/command"
	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/providers/shopify"
	shopquery "github.com/goliatone/go-shopsync/query"
	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
)

type registerWebhooksRequest struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

type retryFailedRequest struct {
	Limit int `json:"limit"`
}

type markFailedRequest struct {
	ErrorMessage string `json:"errorMessage"`
}

type replayRequest struct {
	Batch int `json:"batch"`
}

type reconcileRequest struct {
	TenantID string `json:"tenantId"`
}

func (s *Server) handleRegisterWebhooks(c *gin.Context) {
	var req registerWebhooksRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = s.config.WebhookAddress
	}
	if address == "" && s.config.PublicURL != "" {
		address = s.config.PublicURL + s.config.WebhookPath
	}
	topics := make([]core.Topic, 0, len(req.Topics))
	for _, raw := range req.Topics {
		topics = append(topics, core.ParseTopic(raw))
	}
	results, err := gocommand.Execute[shopcmd.RegisterWebhooksMessage, []shopify.Registration](c.Request.Context(), shopcmd.RegisterWebhooksMessage{
		TenantID: c.Param("tenantId"),
		Address:  address,
		Topics:   topics,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook registration completed", "results": results})
}

func (s *Server) handleListWebhooks(c *gin.Context) {
	hooks, err := gocommand.Query[shopquery.ListWebhooksMessage, []shopify.Webhook](c.Request.Context(), shopquery.ListWebhooksMessage{
		TenantID: c.Param("tenantId"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: hooks})
}

func (s *Server) handleDeleteWebhooks(c *gin.Context) {
	results, err := gocommand.Execute[shopcmd.DeleteWebhooksMessage, []shopify.Registration](c.Request.Context(), shopcmd.DeleteWebhooksMessage{
		TenantID: c.Param("tenantId"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "All webhooks deleted", "results": results})
}

func (s *Server) handleListEvents(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	filter := core.EventFilter{
		TenantID: c.Param("tenantId"),
		Topic:    core.ParseTopic(c.Query("topic")),
		Page:     page,
		PerPage:  limit,
	}
	if raw, present := c.GetQuery("processed"); present {
		processed := strings.EqualFold(strings.TrimSpace(raw), "true")
		filter.Processed = &processed
	}
	result, err := gocommand.Query[shopquery.ListEventsMessage, core.EventPage](c.Request.Context(), shopquery.ListEventsMessage{Filter: filter})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newEventPageView(result)})
}

func (s *Server) handleRetryEvent(c *gin.Context) {
	outcome, err := gocommand.Execute[shopcmd.RetryEventMessage, core.RetryOutcome](c.Request.Context(), shopcmd.RetryEventMessage{
		EventID: c.Param("eventId"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	switch outcome.Status {
	case core.RetryStatusSuccess:
		c.JSON(http.StatusOK, envelope{Success: true, Message: "Webhook event retried successfully", Data: outcome.Result.Data})
	case core.RetryStatusFailed:
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: outcome.Error})
	default:
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: outcome.Error})
	}
}

func (s *Server) handleRetryFailed(c *gin.Context) {
	var req retryFailedRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	report, err := gocommand.Execute[shopcmd.RetryFailedMessage, core.RetryReport](c.Request.Context(), shopcmd.RetryFailedMessage{
		TenantID: c.Param("tenantId"),
		Limit:    req.Limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	message := fmt.Sprintf("Retry completed: %d successful, %d failed", report.Retried, report.Failed)
	if report.Total == 0 {
		message = "No failed events to retry"
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: newRetryReportView(report)})
}

func (s *Server) handleStats(c *gin.Context) {
	days, ok := queryInt(c, "days", shopquery.DefaultStatsDays)
	if !ok {
		return
	}
	stats, err := gocommand.Query[shopquery.EventStatsMessage, core.EventStats](c.Request.Context(), shopquery.EventStatsMessage{
		TenantID: c.Param("tenantId"),
		Days:     days,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if days == 0 {
		days = shopquery.DefaultStatsDays
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newStatsView(stats, days)})
}

func (s *Server) handleMarkFailed(c *gin.Context) {
	var req markFailedRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	event, err := gocommand.Execute[shopcmd.MarkFailedMessage, core.WebhookEvent](c.Request.Context(), shopcmd.MarkFailedMessage{
		EventID: c.Param("eventId"),
		Message: req.ErrorMessage,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Webhook event marked as failed", Data: newEventView(event)})
}

func (s *Server) handleListDeadLetters(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	entries, err := gocommand.Query[shopquery.ListDeadLettersMessage, []core.DeadLetterEntry](c.Request.Context(), shopquery.ListDeadLettersMessage{Limit: limit})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newDeadLetterViews(entries)})
}

func (s *Server) handleReplayDeadLetters(c *gin.Context) {
	var req replayRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	results, err := gocommand.Execute[shopcmd.ReplayDeadLettersMessage, []resilience.ReplayResult](c.Request.Context(), shopcmd.ReplayDeadLettersMessage{Batch: req.Batch})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: fmt.Sprintf("Replayed %d entries", len(results)), Data: newReplayViews(results)})
}

func (s *Server) handleRemoveDeadLetter(c *gin.Context) {
	err := gocommand.Dispatch(c.Request.Context(), shopcmd.RemoveDeadLetterMessage{EntryID: c.Param("entryId")})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Dead letter entry removed"})
}

func (s *Server) handleClearDeadLetters(c *gin.Context) {
	cleared, err := gocommand.Execute[shopcmd.ClearDeadLettersMessage, int](c.Request.Context(), shopcmd.ClearDeadLettersMessage{})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: fmt.Sprintf("Cleared %d entries", cleared), Data: gin.H{"cleared": cleared}})
}

func (s *Server) handleReconcile(c *gin.Context) {
	var req reconcileRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	report, err := gocommand.Execute[shopcmd.ReconcileNowMessage, reconcile.RunReport](c.Request.Context(), shopcmd.ReconcileNowMessage{TenantID: req.TenantID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newRunReportView(report)})
}

// bindOptionalJSON accepts an empty body; a malformed one answers 400.
func bindOptionalJSON(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "Invalid JSON payload", Code: core.IngestErrorBadInput})
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: key + " must be an integer", Code: core.IngestErrorBadInput})
		return 0, false
	}
	return value, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	mapped := core.MapError(err)
	if mapped == nil {
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: core.MessageInternalError})
		return
	}
	status := mapped.Code
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	message := mapped.Message
	if status >= http.StatusInternalServerError {
		s.observer.Error(c.Request.Context(), "admin request failed", map[string]any{
			"route": c.FullPath(),
			"error": err.Error(),
		})
	}
	c.JSON(status, envelope{Success: false, Error: message, Code: mapped.TextCode})
}
