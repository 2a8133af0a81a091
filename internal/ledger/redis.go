package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/license"
)

// deductScript checks and decrements the balance in one atomic step.
// Keys: [balance_key]
// Args: [amount]
// Returns: new balance, -1 if insufficient, -2 if the key is unknown
var deductScript = redis.NewScript(`
local balance = redis.call('GET', KEYS[1])
if not balance then
    return -2
end

balance = tonumber(balance)
local amount = tonumber(ARGV[1])

if balance < amount then
    return -1
end

return redis.call('DECRBY', KEYS[1], amount)
`)

// RedisLedger keeps license balances in Redis, for deployments where
// the ledger of record is synced out-of-band.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(redisURL string) (*RedisLedger, error) {
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

	return &RedisLedger{client: client}, nil
}

func NewRedisLedgerWithClient(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Deduct(ctx context.Context, licenseKey string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative deduction", domain.ErrInvalidRequest)
	}

	key := "credits:" + license.HashKey(licenseKey)
	result, err := deductScript.Run(ctx, l.client, []string{key}, amount).Int64()
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}

	switch result {
	case -2:
		return 0, domain.ErrLicenseNotFound
	case -1:
		return 0, domain.ErrInsufficientCredits
	default:
		return result, nil
	}
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}
