package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
)

// Per-minute budgets for sensitive write actions, keyed per user.
const (
	ActionProductUpload = "product_upload"
	ActionDealRequest   = "deal_request"
	ActionProfileUpdate = "profile_update"
)

var defaultActionBudgets = map[string]int{
	ActionProductUpload: 5,
	ActionDealRequest:   10,
	ActionProfileUpdate: 3,
}

// ActionLimiter enforces per-(user, action) budgets on top of the
// request-level rate limiter. A refused action is logged as a security
// event so repeated abuse is visible in the audit trail.
type ActionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	budgets  map[string]int
	logger   *logging.Logger
}

// NewActionLimiter creates an ActionLimiter with the default budgets.
func NewActionLimiter(logger *logging.Logger) *ActionLimiter {
	return &ActionLimiter{
		limiters: make(map[string]*rate.Limiter),
		budgets:  defaultActionBudgets,
		logger:   logger,
	}
}

func (al *ActionLimiter) getLimiter(userID, action string, budget int) *rate.Limiter {
	key := fmt.Sprintf("%s:%s", userID, action)

	al.mu.Lock()
	defer al.mu.Unlock()

	limiter, exists := al.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(budget)/60, budget)
		al.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether the user is within budget for the action.
// Unknown actions are always allowed.
func (al *ActionLimiter) Allow(ctx context.Context, userID, action string) error {
	budget, known := al.budgets[action]
	if !known {
		return nil
	}

	if !al.getLimiter(userID, action, budget).Allow() {
		al.logger.LogSecurityEvent(ctx, "rate_limit_exceeded", map[string]interface{}{
			"user_id": userID,
			"action":  action,
		})
		return svcerr.RateLimitExceeded(budget, "1m")
	}
	return nil
}

// Cleanup drops accumulated limiters once the map grows past a bound.
func (al *ActionLimiter) Cleanup() {
	al.mu.Lock()
	defer al.mu.Unlock()

	if len(al.limiters) > 10000 {
		al.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on the given interval until stop is closed.
func (al *ActionLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				al.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}
