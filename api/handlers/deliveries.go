package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/tracing"
)

// EnqueueDelivery accepts a send request and returns the queued job. Requests
// with missing recipients, subject, or body are rejected here; everything else
// fails asynchronously and lands in the delivery log.
func EnqueueDelivery(dispatchService interfaces.DispatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EnqueueDelivery", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request interfaces.EnqueueRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		job, err := dispatchService.Enqueue(ctx, request)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, job)
	}
}

// GetDelivery returns the job together with its attempt log
func GetDelivery(jobRepository interfaces.DeliveryJobRepository, logRepository interfaces.DeliveryLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetDelivery", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		job, err := jobRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		attempts, err := logRepository.ListByJob(ctx, job.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"job": job, "attempts": attempts})
	}
}

// CancelDelivery withdraws a pending job; terminal jobs conflict
func CancelDelivery(dispatchService interfaces.DispatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "CancelDelivery", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		if err := dispatchService.Cancel(ctx, c.Param("id")); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "delivery cancelled", "id": c.Param("id")})
	}
}

// SearchDeliveryLog filters log entries by task type and time window
func SearchDeliveryLog(logRepository interfaces.DeliveryLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SearchDeliveryLog", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var from, to *time.Time
		if raw := c.Query("from"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp, expected RFC3339"})
				return
			}
			from = &parsed
		}
		if raw := c.Query("to"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp, expected RFC3339"})
				return
			}
			to = &parsed
		}

		limit := queryInt(c, "limit", 50)
		offset := queryInt(c, "offset", 0)

		entries, total, err := logRepository.Search(ctx, c.Query("taskType"), from, to, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
	}
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
