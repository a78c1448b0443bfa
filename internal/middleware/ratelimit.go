package middleware

import (
	"fmt"
	"net/http"

	"github.com/myrecipebook/web-gateway/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	// DefaultLoginRate is applied to credential endpoints when no rate is configured
	DefaultLoginRate = "10-M"

	rateLimitPrefix = "recipebook:ratelimit"
)

// RateLimit limits requests per client IP using ulule/limiter.
// Counters live in Redis when a client is given so limits hold across replicas,
// otherwise in process memory.
func RateLimit(rate string, redisClient *redis.Client) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultLoginRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	opts := limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		MaxRetry:        limiter.DefaultMaxRetry,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}

	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			respondErrorJSON(w, r, http.StatusTooManyRequests, "Too Many Requests",
				"Too many attempts. Please wait before trying again.", nil)
		}),
	)
	return mw.Handler, nil
}
