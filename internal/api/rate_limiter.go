package api

import (
	"net/http"
	"sync"

	"github.com/wallet-intelligence/internal/types"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-caller rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	// Rate limits per tier (requests per second)
	freeTierLimit    rate.Limit
	partnerTierLimit rate.Limit
	adminTierLimit   rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(freeTierRPS, partnerTierRPS, adminTierRPS int) *RateLimiter {
	return &RateLimiter{
		limiters:         make(map[string]*rate.Limiter),
		freeTierLimit:    rate.Limit(freeTierRPS),
		partnerTierLimit: rate.Limit(partnerTierRPS),
		adminTierLimit:   rate.Limit(adminTierRPS),
		burstSize:        10,
	}
}

// getLimiter returns the rate limiter for a specific caller and tier
func (rl *RateLimiter) getLimiter(callerID string, tier types.AccessTier) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[callerID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	var limit rate.Limit
	switch tier {
	case types.TierAdmin:
		limit = rl.adminTierLimit
	case types.TierPartner:
		limit = rl.partnerTierLimit
	default:
		limit = rl.freeTierLimit
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[callerID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[callerID] = limiter

	return limiter
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := r.Header.Get("X-User-ID")
			if callerID == "" {
				// No caller ID, fall back to the remote address
				callerID = r.RemoteAddr
			}

			tier := types.AccessTier(r.Header.Get("X-Access-Tier"))
			if tier == "" {
				tier = types.TierFree
			}

			limiter := rl.getLimiter(callerID, tier)

			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", map[string]interface{}{
					"tier":  tier,
					"limit": limiter.Limit(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
