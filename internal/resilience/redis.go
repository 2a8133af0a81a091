package resilience

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

// Lua scripts keep multi-key health transitions atomic so two gateway
// instances recording outcomes concurrently never lose an update.

// allowScript checks whether the circuit is open.
// Keys: [open_until_key]
// Returns: 1 if open, 0 otherwise
var allowScript = redis.NewScript(`
local openUntil = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(redis.call('TIME')[1])

if openUntil > now then
    return 1
end
return 0
`)

// recordFailureScript increments the failure counters and opens the
// circuit once the consecutive count reaches the threshold.
// Keys: [consecutive_key, total_failures_key, last_failure_key, open_until_key, providers_set_key]
// Args: [failure_threshold, cooldown_seconds, provider]
// Returns: 1 if the circuit opened on this failure, 0 otherwise
var recordFailureScript = redis.NewScript(`
local consecutive = redis.call('INCR', KEYS[1])
redis.call('INCR', KEYS[2])
local now = tonumber(redis.call('TIME')[1])
redis.call('SET', KEYS[3], now)
redis.call('SADD', KEYS[5], ARGV[3])

if consecutive >= tonumber(ARGV[1]) then
    redis.call('SET', KEYS[4], now + tonumber(ARGV[2]))
    return 1
end
return 0
`)

// recordSuccessScript resets consecutive failures and closes the
// circuit regardless of prior state.
// Keys: [consecutive_key, total_successes_key, last_success_key, open_until_key, providers_set_key]
// Args: [provider]
// Returns: 1 if the circuit was still open before this success, 0 otherwise
var recordSuccessScript = redis.NewScript(`
redis.call('SET', KEYS[1], '0')
redis.call('INCR', KEYS[2])
local now = tonumber(redis.call('TIME')[1])
redis.call('SET', KEYS[3], now)
redis.call('SADD', KEYS[5], ARGV[1])

local openUntil = tonumber(redis.call('GETDEL', KEYS[4]) or '0')
if openUntil > now then
    return 1
end
return 0
`)

// RedisHealthTracker keeps per-provider health state in Redis so the
// circuit breaker is shared across gateway instances.
type RedisHealthTracker struct {
	client *redis.Client
	config HealthConfig

	onOpen  func(provider string)
	onClose func(provider string)
}

var _ HealthReporter = (*RedisHealthTracker)(nil)

func NewRedisHealthTracker(redisURL string, cfg HealthConfig) (*RedisHealthTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisHealthTracker{client: client, config: cfg}, nil
}

func NewRedisHealthTrackerWithClient(client *redis.Client, cfg HealthConfig) *RedisHealthTracker {
	return &RedisHealthTracker{client: client, config: cfg}
}

// SetStateChangeHooks installs callbacks fired when a circuit opens or
// closes on this instance.
func (t *RedisHealthTracker) SetStateChangeHooks(onOpen, onClose func(provider string)) {
	t.onOpen = onOpen
	t.onClose = onClose
}

// providersSetKey tracks every provider that ever recorded an outcome,
// so Snapshot can enumerate state without scanning the keyspace.
const providersSetKey = "health:providers"

func (t *RedisHealthTracker) key(provider, field string) string {
	return fmt.Sprintf("health:%s:%s", provider, field)
}

func (t *RedisHealthTracker) Allow(ctx context.Context, provider string) error {
	result, err := allowScript.Run(ctx, t.client, []string{t.key(provider, "open_until")}).Int()
	if err != nil {
		// On Redis failure the breaker fails open: availability over
		// protection, matching the in-memory tracker's default posture.
		return nil
	}
	if result == 1 {
		return domain.ErrCircuitOpen
	}
	return nil
}

func (t *RedisHealthTracker) RecordSuccess(ctx context.Context, provider string) {
	keys := []string{
		t.key(provider, "consecutive"),
		t.key(provider, "total_successes"),
		t.key(provider, "last_success"),
		t.key(provider, "open_until"),
		providersSetKey,
	}
	result, err := recordSuccessScript.Run(ctx, t.client, keys, provider).Int()
	if err == nil && result == 1 && t.onClose != nil {
		t.onClose(provider)
	}
}

func (t *RedisHealthTracker) RecordFailure(ctx context.Context, provider string) {
	keys := []string{
		t.key(provider, "consecutive"),
		t.key(provider, "total_failures"),
		t.key(provider, "last_failure"),
		t.key(provider, "open_until"),
		providersSetKey,
	}
	args := []interface{}{
		t.config.FailureThreshold,
		int(t.config.Cooldown.Seconds()),
		provider,
	}
	result, err := recordFailureScript.Run(ctx, t.client, keys, args...).Int()
	if err == nil && result == 1 && t.onOpen != nil {
		t.onOpen(provider)
	}
}

// Snapshot reads the shared state of every provider that ever recorded
// an outcome on any gateway instance.
func (t *RedisHealthTracker) Snapshot(ctx context.Context) ([]ProviderHealth, error) {
	names, err := t.client.SMembers(ctx, providersSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list tracked providers: %w", err)
	}
	sort.Strings(names)

	snapshot := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		vals, err := t.client.MGet(ctx,
			t.key(name, "consecutive"),
			t.key(name, "total_failures"),
			t.key(name, "total_successes"),
			t.key(name, "last_failure"),
			t.key(name, "last_success"),
			t.key(name, "open_until"),
		).Result()
		if err != nil {
			return nil, fmt.Errorf("read health state for %s: %w", name, err)
		}

		consecutive := intField(vals[0])
		snapshot = append(snapshot, ProviderHealth{
			Provider:            name,
			Status:              t.status(int(consecutive)),
			ConsecutiveFailures: int(consecutive),
			TotalFailures:       intField(vals[1]),
			TotalSuccesses:      intField(vals[2]),
			LastFailure:         timeField(vals[3]),
			LastSuccess:         timeField(vals[4]),
			CircuitOpenUntil:    timeField(vals[5]),
		})
	}
	return snapshot, nil
}

func (t *RedisHealthTracker) status(consecutiveFailures int) Status {
	switch {
	case consecutiveFailures >= t.config.FailureThreshold:
		return StatusUnhealthy
	case consecutiveFailures >= t.config.DegradedThreshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

func intField(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func timeField(v interface{}) time.Time {
	unix := intField(v)
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

// Reset clears a provider's state. Operator action only.
func (t *RedisHealthTracker) Reset(ctx context.Context, provider string) error {
	pipe := t.client.Pipeline()
	pipe.Set(ctx, t.key(provider, "consecutive"), "0", 0)
	pipe.Del(ctx, t.key(provider, "open_until"))
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisHealthTracker) Close() error {
	return t.client.Close()
}
