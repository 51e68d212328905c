package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		provider models.Provider
		expected enum.HealthStatus
	}{
		{
			name:     "unverified provider is error regardless of counters",
			provider: models.Provider{IsVerified: false, ConsecutiveFailures: 0},
			expected: enum.HealthStatusError,
		},
		{
			name:     "unverified with failures is still error",
			provider: models.Provider{IsVerified: false, ConsecutiveFailures: 10},
			expected: enum.HealthStatusError,
		},
		{
			name:     "verified with zero failures is healthy",
			provider: models.Provider{IsVerified: true, ConsecutiveFailures: 0},
			expected: enum.HealthStatusHealthy,
		},
		{
			name:     "one failure is warning",
			provider: models.Provider{IsVerified: true, ConsecutiveFailures: 1},
			expected: enum.HealthStatusWarning,
		},
		{
			name:     "three failures is still warning",
			provider: models.Provider{IsVerified: true, ConsecutiveFailures: 3},
			expected: enum.HealthStatusWarning,
		},
		{
			name:     "four failures crosses into critical",
			provider: models.Provider{IsVerified: true, ConsecutiveFailures: 4},
			expected: enum.HealthStatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(&tt.provider))
		})
	}
}
