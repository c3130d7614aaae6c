package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/sal"
)

// GatewayChecker treats a successful info call as proof of life
type GatewayChecker struct {
	Name    string
	Gateway sal.Gateway
	Timeout time.Duration
}

// NewGatewayChecker creates a checker for the named gateway
func NewGatewayChecker(name string, gw sal.Gateway, timeout time.Duration) *GatewayChecker {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &GatewayChecker{Name: name, Gateway: gw, Timeout: timeout}
}

// Check calls info on the gateway
func (g *GatewayChecker) Check(ctx context.Context) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	info, err := g.Gateway.Info(ctx)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("gateway %s unreachable: %v", g.Name, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	if !info.Running {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("gateway %s is not running", g.Name),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("gateway %s is up", g.Name),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (g *GatewayChecker) Type() CheckType {
	return CheckTypeGateway
}
