package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitStrategy selects how clients are told apart.
type RateLimitStrategy string

const (
	// StrategyIP keys buckets by client IP
	StrategyIP RateLimitStrategy = "ip"

	// StrategyCustom keys buckets with RateLimitConfig.KeyExtractor
	StrategyCustom RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Unique identifier for this rate limit bucket
	// Interceptors sharing a limiter and a BucketName share the same rate limit
	BucketName string

	// Maximum number of requests allowed in the time window
	Limit int

	// Time window for the rate limit (e.g., 1 minute, 1 hour)
	Window time.Duration

	// Strategy for identifying clients. Defaults to StrategyIP.
	Strategy RateLimitStrategy

	// Custom key extractor function (used when Strategy is StrategyCustom)
	KeyExtractor func(*intercept.Request) (string, error)

	// App served when the rate limit is exceeded
	// If nil, a default 429 Too Many Requests response is sent
	ExceededApp exchange.App
}

// RateLimiter defines the interface for rate limiting algorithms
type RateLimiter interface {
	// Allow reports whether a request under key may proceed, the number of
	// requests left and how long until the next one is allowed.
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

// TokenBucketLimiter implements RateLimiter with one token bucket per key.
// Each bucket refills at limit/window and holds at most limit tokens.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	mu       sync.Mutex
}

// NewTokenBucketLimiter creates a new token bucket rate limiter
func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{}
}

// getLimiter gets or creates a limiter for the given key
func (t *TokenBucketLimiter) getLimiter(key string, limit int, window time.Duration) *rate.Limiter {
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring lock
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
	t.limiters.Store(key, limiter)
	return limiter
}

// Allow implements RateLimiter.
func (t *TokenBucketLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	limiter := t.getLimiter(key, limit, window)

	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, 0, delay
	}

	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, window
}

type rateLimitKey struct{}

// rateLimitInfo is what the Send hook stamps on the response.
type rateLimitInfo struct {
	limit     int
	remaining int
	reset     time.Duration
}

type rateLimit struct {
	intercept.Base
	config  *RateLimitConfig
	limiter RateLimiter
	logger  *zap.Logger
}

// RateLimit creates an interceptor that enforces config with limiter.
// Every response carries X-RateLimit-* headers. Rejected requests get
// 429 Too Many Requests with Retry-After, or config.ExceededApp when set.
func RateLimit(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) intercept.Interceptor {
	if limiter == nil {
		limiter = NewTokenBucketLimiter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &rateLimit{config: config, limiter: limiter, logger: logger}
}

func (rl *rateLimit) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	// Skip rate limiting if config is nil
	if rl.config == nil {
		return intercept.Continue(), nil
	}

	key, err := rl.key(req)
	if err != nil {
		rl.logger.Error("Failed to extract rate limit key",
			zap.Error(err),
			zap.String("method", req.Method()),
			zap.String("path", req.Path()),
		)
		return intercept.Override(exchange.Error(http.StatusInternalServerError)), nil
	}

	// Combine bucket name and key to create a unique identifier
	bucketKey := rl.config.BucketName + ":" + key
	allowed, remaining, reset := rl.limiter.Allow(bucketKey, rl.config.Limit, rl.config.Window)
	info := &rateLimitInfo{limit: rl.config.Limit, remaining: remaining, reset: reset}
	req.Set(rateLimitKey{}, info)

	if allowed {
		return intercept.Continue(), nil
	}

	rl.logger.Warn("Rate limit exceeded",
		zap.String("method", req.Method()),
		zap.String("path", req.Path()),
		zap.String("key", key),
		zap.Int("limit", rl.config.Limit),
		zap.Int("remaining", remaining),
	)

	if rl.config.ExceededApp != nil {
		return intercept.Override(rl.config.ExceededApp), nil
	}
	resp := exchange.Error(http.StatusTooManyRequests)
	resp.Headers.Set("retry-after", strconv.Itoa(retryAfterSeconds(reset)))
	return intercept.Override(resp), nil
}

func (rl *rateLimit) Send(ctx context.Context, req *intercept.Request, msg exchange.Message, next exchange.Send) error {
	if msg.Type == exchange.MessageResponseStart {
		if v, ok := req.Get(rateLimitKey{}); ok {
			info := v.(*rateLimitInfo)
			msg.Headers = msg.Headers.Clone()
			msg.Headers.Set("x-ratelimit-limit", strconv.Itoa(info.limit))
			msg.Headers.Set("x-ratelimit-remaining", strconv.Itoa(info.remaining))
			msg.Headers.Set("x-ratelimit-reset", strconv.FormatInt(time.Now().Add(info.reset).Unix(), 10))
		}
	}
	return next(ctx, msg)
}

func (rl *rateLimit) key(req *intercept.Request) (string, error) {
	if rl.config.Strategy == StrategyCustom && rl.config.KeyExtractor != nil {
		return rl.config.KeyExtractor(req)
	}
	return GetClientIP(req), nil
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ThrottleConfig defines configuration for request pacing
type ThrottleConfig struct {
	// Rate is the number of requests let through per Per. Zero disables pacing.
	Rate int

	// Per is the period Rate applies to. Defaults to one second.
	Per time.Duration

	// Slack is how many unused slots may be banked for bursts. Zero disables slack.
	Slack int

	// KeyFunc picks the bucket a request is paced in.
	// If nil, all requests share one bucket.
	KeyFunc func(*intercept.Request) string
}

type throttle struct {
	intercept.Base
	config   ThrottleConfig
	limiters sync.Map // map[string]ratelimit.Limiter
	mu       sync.Mutex
}

// Throttle creates an interceptor that paces requests through a leaky bucket
// instead of rejecting them: each request waits for its slot before the inner
// app runs.
func Throttle(config ThrottleConfig) intercept.Interceptor {
	return &throttle{config: config}
}

// getLimiter gets or creates the limiter for key
func (t *throttle) getLimiter(key string) ratelimit.Limiter {
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring lock
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}

	var limiter ratelimit.Limiter
	if t.config.Rate <= 0 {
		limiter = ratelimit.NewUnlimited()
	} else {
		opts := []ratelimit.Option{ratelimit.WithoutSlack}
		if t.config.Slack > 0 {
			opts = []ratelimit.Option{ratelimit.WithSlack(t.config.Slack)}
		}
		if t.config.Per > 0 {
			opts = append(opts, ratelimit.Per(t.config.Per))
		}
		limiter = ratelimit.New(t.config.Rate, opts...)
	}
	t.limiters.Store(key, limiter)
	return limiter
}

func (t *throttle) BeforeRequest(ctx context.Context, req *intercept.Request) (intercept.Result, error) {
	key := ""
	if t.config.KeyFunc != nil {
		key = t.config.KeyFunc(req)
	}
	t.getLimiter(key).Take()
	if err := ctx.Err(); err != nil {
		return intercept.Result{}, err
	}
	return intercept.Continue(), nil
}
