package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/domain/repositories"
	"settle-gate.backend/internal/infrastructure/queue"
	"settle-gate.backend/internal/interfaces/http/response"
	"settle-gate.backend/internal/usecases"
	"settle-gate.backend/pkg/utils"
)

// QueueHandler exposes the operational queue surface: stats, dead-letter
// inspection and the job injection endpoints. Injection accepts either the
// internal UUID or the business identifier (settlement number, tx hash), and
// an optional delay.
type QueueHandler struct {
	settlements repositories.SettlementOrderRepository
	txs         repositories.OnchainTransactionRepository
	queues      map[string]*queue.Queue
}

func NewQueueHandler(settlements repositories.SettlementOrderRepository, txs repositories.OnchainTransactionRepository, queues ...*queue.Queue) *QueueHandler {
	byName := make(map[string]*queue.Queue, len(queues))
	for _, q := range queues {
		byName[q.Name()] = q
	}
	return &QueueHandler{settlements: settlements, txs: txs, queues: byName}
}

func (h *QueueHandler) lookup(c *gin.Context) (*queue.Queue, bool) {
	q, ok := h.queues[c.Param("name")]
	if !ok {
		response.Error(c, domainerrors.NotFound("unknown queue"))
		return nil, false
	}
	return q, true
}

// GetStats handles GET /api/v1/queue/:name/stats
func (h *QueueHandler) GetStats(c *gin.Context) {
	q, ok := h.lookup(c)
	if !ok {
		return
	}

	stats, err := q.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"queue": q.Name(),
		"stats": stats,
	})
}

// ListDead handles GET /api/v1/queue/:name/dead
func (h *QueueHandler) ListDead(c *gin.Context) {
	q, ok := h.lookup(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	params := utils.GetPaginationParams(page, limit)
	if params.Limit == 0 {
		params.Limit = 20
	}

	jobs, err := q.ListDead(c.Request.Context(), int64(params.CalculateOffset()), int64(params.Limit))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"queue": q.Name(),
		"jobs":  jobs,
		"page":  params.Page,
		"limit": params.Limit,
	})
}

// RequeueDead handles POST /api/v1/queue/:name/dead/requeue
func (h *QueueHandler) RequeueDead(c *gin.Context) {
	q, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Count int64 `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Count <= 0 {
		req.Count = 1
	}

	moved, err := q.RequeueDead(c.Request.Context(), req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"requeued": moved})
}

// parseDelay validates an optional delaySeconds field.
func parseDelay(c *gin.Context, seconds int) (time.Duration, bool) {
	if seconds < 0 {
		response.Error(c, domainerrors.BadRequest("delaySeconds must not be negative"))
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// EnqueueSettlement handles POST /api/v1/queue/settlement. The order is
// addressed by orderId or settlementNo.
func (h *QueueHandler) EnqueueSettlement(c *gin.Context) {
	var req struct {
		OrderID      *uuid.UUID `json:"orderId"`
		SettlementNo string     `json:"settlementNo"`
		DelaySeconds int        `json:"delaySeconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (req.OrderID == nil && req.SettlementNo == "") {
		response.Error(c, domainerrors.BadRequest("orderId or settlementNo is required"))
		return
	}
	delay, ok := parseDelay(c, req.DelaySeconds)
	if !ok {
		return
	}

	orderID := uuid.Nil
	if req.OrderID != nil {
		orderID = *req.OrderID
	} else {
		order, err := h.settlements.GetByNo(c.Request.Context(), req.SettlementNo)
		if err != nil {
			if errors.Is(err, domainerrors.ErrNotFound) {
				response.Error(c, domainerrors.NotFound("settlement order not found"))
				return
			}
			response.Error(c, err)
			return
		}
		orderID = order.ID
	}
	h.enqueue(c, usecases.QueueSettlement, usecases.SettlementJobPayload{OrderID: orderID}, delay)
}

// EnqueueTxConfirm handles POST /api/v1/queue/tx-confirm. The transfer record
// is addressed by transactionId or txHash.
func (h *QueueHandler) EnqueueTxConfirm(c *gin.Context) {
	var req struct {
		TransactionID *uuid.UUID `json:"transactionId"`
		TxHash        string     `json:"txHash"`
		DelaySeconds  int        `json:"delaySeconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (req.TransactionID == nil && req.TxHash == "") {
		response.Error(c, domainerrors.BadRequest("transactionId or txHash is required"))
		return
	}
	delay, ok := parseDelay(c, req.DelaySeconds)
	if !ok {
		return
	}

	transactionID := uuid.Nil
	if req.TransactionID != nil {
		transactionID = *req.TransactionID
	} else {
		rec, err := h.txs.GetByTxHash(c.Request.Context(), req.TxHash)
		if err != nil {
			if errors.Is(err, domainerrors.ErrNotFound) {
				response.Error(c, domainerrors.NotFound("transfer record not found"))
				return
			}
			response.Error(c, err)
			return
		}
		transactionID = rec.ID
	}
	h.enqueue(c, usecases.QueueTxConfirm, usecases.TxConfirmJobPayload{TransactionID: transactionID}, delay)
}

// EnqueueCallback handles POST /api/v1/queue/callback
func (h *QueueHandler) EnqueueCallback(c *gin.Context) {
	var req struct {
		CallbackID   uuid.UUID `json:"callbackId" binding:"required"`
		DelaySeconds int       `json:"delaySeconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest("callbackId is required"))
		return
	}
	delay, ok := parseDelay(c, req.DelaySeconds)
	if !ok {
		return
	}
	h.enqueue(c, usecases.QueueCallback, usecases.CallbackJobPayload{CallbackID: req.CallbackID}, delay)
}

func (h *QueueHandler) enqueue(c *gin.Context, queueName string, payload interface{}, delay time.Duration) {
	q, ok := h.queues[queueName]
	if !ok {
		response.Error(c, domainerrors.NotFound("unknown queue"))
		return
	}

	jobID, err := q.Enqueue(c.Request.Context(), payload, delay, c.GetHeader("Idempotency-Key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"queue": queueName,
		"jobId": jobID,
	})
}
