package health

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/sal/saltest"
	"github.com/stretchr/testify/assert"
)

func TestStatusDebounce(t *testing.T) {
	ok := Result{Healthy: true, CheckedAt: time.Now()}
	fail := Result{Healthy: false, CheckedAt: time.Now()}

	tests := []struct {
		name    string
		config  Config
		results []Result
		healthy bool
	}{
		{name: "single failure with default config", config: DefaultConfig(), results: []Result{fail}, healthy: false},
		{name: "below retry threshold", config: Config{Retries: 3}, results: []Result{fail, fail}, healthy: true},
		{name: "at retry threshold", config: Config{Retries: 3}, results: []Result{fail, fail, fail}, healthy: false},
		{name: "success resets", config: Config{Retries: 2}, results: []Result{fail, ok, fail}, healthy: true},
		{name: "recovers after one success", config: Config{Retries: 1}, results: []Result{fail, fail, ok}, healthy: true},
		{name: "zero retries treated as one", config: Config{}, results: []Result{fail}, healthy: false},
		{name: "start period ignores failures", config: Config{Retries: 1, StartPeriod: time.Hour}, results: []Result{fail, fail}, healthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatus()
			for _, r := range tt.results {
				s.Update(r, tt.config)
			}
			assert.Equal(t, tt.healthy, s.Healthy)
		})
	}
}

func TestGatewayChecker(t *testing.T) {
	gw := saltest.NewGateway("gw-a")
	checker := NewGatewayChecker("gw-a", gw, time.Second)
	assert.Equal(t, CheckTypeGateway, checker.Type())

	result := checker.Check(context.Background())
	assert.True(t, result.Healthy, result.Message)

	gw.SetUp(false)
	result = checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "unreachable")
}
