package health

import (
	"context"
	"fmt"
	"time"
)

// PingChecker always reports healthy. Used for liveness.
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{name: name}
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "Service is alive",
		Timestamp: time.Now(),
	}
}

func (c *PingChecker) Name() string { return c.name }

// SubscriberSource is what BroadcasterChecker needs from a broadcaster.
type SubscriberSource interface {
	Count() int
	Closed() bool
}

// BroadcasterChecker reports the live subscriber count of a broadcaster.
// A closed broadcaster no longer accepts streams and is unhealthy.
type BroadcasterChecker struct {
	name   string
	source SubscriberSource
}

// NewBroadcasterChecker creates a checker named name for source.
func NewBroadcasterChecker(name string, source SubscriberSource) *BroadcasterChecker {
	return &BroadcasterChecker{name: name, source: source}
}

func (c *BroadcasterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	count := c.source.Count()
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("%d subscribers", count),
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"subscribers": count},
	}
	if c.source.Closed() {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = "broadcaster closed"
	}
	result.Duration = time.Since(start)
	return result
}

func (c *BroadcasterChecker) Name() string { return c.name }
