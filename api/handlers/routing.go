package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/tracing"
)

type routingRuleRequest struct {
	ProviderIDs []string `json:"providerIds"`
}

// SetRoutingRule creates or replaces the provider list for a task type
func SetRoutingRule(routingService interfaces.RoutingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SetRoutingRule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		span.SetTag(tracing.SpanTagTaskType, c.Param("taskType"))

		var request routingRuleRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rule, err := routingService.SetRule(ctx, c.Param("taskType"), request.ProviderIDs)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, rule)
	}
}

// GetRoutingRule returns the explicit rule for a task type
func GetRoutingRule(routingService interfaces.RoutingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetRoutingRule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		span.SetTag(tracing.SpanTagTaskType, c.Param("taskType"))

		rule, err := routingService.GetRule(ctx, c.Param("taskType"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, rule)
	}
}

// ListRoutingRules returns all explicit routing rules
func ListRoutingRules(routingService interfaces.RoutingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListRoutingRules", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		rules, err := routingService.ListRules(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"rules": rules})
	}
}

// DeleteRoutingRule removes the rule; the task type falls back to priority
// order
func DeleteRoutingRule(routingService interfaces.RoutingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "DeleteRoutingRule", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		span.SetTag(tracing.SpanTagTaskType, c.Param("taskType"))

		if err := routingService.DeleteRule(ctx, c.Param("taskType")); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "routing rule deleted", "taskType": c.Param("taskType")})
	}
}

// ResolveRoute previews the candidate order a delivery for this task type
// would try right now
func ResolveRoute(routingService interfaces.RoutingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ResolveRoute", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		span.SetTag(tracing.SpanTagTaskType, c.Param("taskType"))

		candidates, err := routingService.ResolveCandidates(ctx, c.Param("taskType"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		ids := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			ids = append(ids, candidate.ID)
		}

		c.JSON(http.StatusOK, gin.H{"taskType": c.Param("taskType"), "providerIds": ids})
	}
}
