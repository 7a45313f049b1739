package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/infrastructure/queue"
	"settle-gate.backend/internal/interfaces/http/handlers"
	"settle-gate.backend/internal/interfaces/http/middleware"
)

// decodePayload unmarshals a job payload. A payload that does not parse will
// never parse, so the error is permanent and the job goes straight to the
// dead list.
func decodePayload(job *queue.Job, dst interface{}) error {
	if err := json.Unmarshal(job.Payload, dst); err != nil {
		return domainerrors.Permanent(fmt.Errorf("decode %s payload: %w", job.Queue, err))
	}
	return nil
}

func newRouter(queueHandler *handlers.QueueHandler, sqlDB *sql.DB) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := sqlDB.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	q := r.Group("/api/v1/queue")
	{
		q.GET("/:name/stats", queueHandler.GetStats)
		q.GET("/:name/dead", queueHandler.ListDead)
		q.POST("/:name/dead/requeue", queueHandler.RequeueDead)
		q.POST("/settlement", queueHandler.EnqueueSettlement)
		q.POST("/tx-confirm", queueHandler.EnqueueTxConfirm)
		q.POST("/callback", queueHandler.EnqueueCallback)
	}

	return r
}
