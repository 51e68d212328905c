package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
	"github.com/packsmith/mailflow/services/health"
)

// RegisterProvider creates a new sending identity
func RegisterProvider(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RegisterProvider", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var spec interfaces.ProviderSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		provider, err := registryService.Register(ctx, spec)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, provider)
	}
}

// ListProviders returns all providers with secrets masked
func ListProviders(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListProviders", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		providers, err := registryService.List(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"providers": providers})
	}
}

// GetProvider returns a single provider with secrets masked
func GetProvider(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetProvider", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		provider, err := registryService.Get(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, provider)
	}
}

// UpdateProvider updates provider settings; omitted secret fields keep the
// stored ciphertext
func UpdateProvider(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "UpdateProvider", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		var spec interfaces.ProviderSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		provider, err := registryService.Update(ctx, c.Param("id"), spec)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, provider)
	}
}

// DeleteProvider removes a provider permanently
func DeleteProvider(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "DeleteProvider", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		if err := registryService.Delete(ctx, c.Param("id")); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "provider deleted", "id": c.Param("id")})
	}
}

// PromoteProvider moves a provider to priority 1 and renumbers the rest
func PromoteProvider(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "PromoteProvider", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		if err := registryService.Promote(ctx, c.Param("id")); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "provider promoted", "id": c.Param("id")})
	}
}

// TestProvider runs the transport diagnostic check and records the outcome
func TestProvider(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TestProvider", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		provider, err := registryService.Test(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, provider)
	}
}

type providerHealth struct {
	ProviderID          string `json:"providerId"`
	DisplayName         string `json:"displayName"`
	SenderAddress       string `json:"senderAddress"`
	Status              string `json:"status"`
	IsVerified          bool   `json:"isVerified"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	LastErrorMessage    string `json:"lastErrorMessage,omitempty"`
}

// ListProviderHealth reports the derived health status of every provider
func ListProviderHealth(registryService interfaces.RegistryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListProviderHealth", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		providers, err := registryService.List(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}

		statuses := make([]providerHealth, 0, len(providers))
		for i := range providers {
			statuses = append(statuses, healthOf(&providers[i]))
		}

		c.JSON(http.StatusOK, gin.H{"providers": statuses})
	}
}

func healthOf(provider *models.Provider) providerHealth {
	return providerHealth{
		ProviderID:          provider.ID,
		DisplayName:         provider.DisplayName,
		SenderAddress:       provider.SenderAddress,
		Status:              health.StatusOf(provider).String(),
		IsVerified:          provider.IsVerified,
		ConsecutiveFailures: provider.ConsecutiveFailures,
		LastErrorMessage:    provider.LastErrorMessage,
	}
}
