package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"shop_service/internal/repository/compensating"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ compensating.Journal = (*Journal)(nil)

const (
	journalPrefix     = "shop:journal:"
	journalPendingKey = "shop:journal:pending"
)

// KEYS: pending set, lease, steps hash. ARGV: tx id, owner, ttl ms, [seq, step].
// The lease is extended only by its holder; an expired lease that nobody
// claimed is picked up again by the original owner.
var recordScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then return 0 end
local holder = redis.call('GET', KEYS[2])
if holder and holder ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
if #ARGV == 5 then redis.call('HSET', KEYS[3], ARGV[4], ARGV[5]) end
return 1
`)

// KEYS: pending set, lease, steps hash. ARGV: tx id, owner.
var completeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then return 0 end
local holder = redis.call('GET', KEYS[2])
if holder and holder ~= ARGV[2] then return 0 end
redis.call('DEL', KEYS[2], KEYS[3])
redis.call('SREM', KEYS[1], ARGV[1])
return 1
`)

// KEYS: pending set, lease. ARGV: tx id, owner, ttl ms.
var claimScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then return 0 end
if redis.call('SET', KEYS[2], ARGV[2], 'NX', 'PX', ARGV[3]) then return 1 end
return 0
`)

// Journal stores each unit of work as a hash of seq -> step, tracks open units
// in a set, and leases every unit to the process running it with a key that
// expires unless renewed.
type Journal struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

func NewJournal(client *redis.Client, ttl time.Duration) *Journal {
	if ttl <= 0 {
		ttl = compensating.DefaultLeaseTTL
	}
	return &Journal{client: client, owner: uuid.NewString(), ttl: ttl}
}

func stepsKey(txID string) string { return journalPrefix + txID }

func leaseKey(txID string) string { return journalPrefix + txID + ":lease" }

func (j *Journal) Begin(ctx context.Context) (string, error) {
	txID := uuid.NewString()
	_, err := j.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, journalPendingKey, txID)
		pipe.Set(ctx, leaseKey(txID), j.owner, j.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("could not open journal: %w", err)
	}
	return txID, nil
}

func (j *Journal) Record(ctx context.Context, txID string, step compensating.Step) error {
	payload, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("could not encode journal step: %w", err)
	}
	return j.extend(ctx, txID, strconv.Itoa(step.Seq), string(payload))
}

func (j *Journal) Renew(ctx context.Context, txID string) error {
	return j.extend(ctx, txID)
}

func (j *Journal) extend(ctx context.Context, txID string, step ...interface{}) error {
	args := append([]interface{}{txID, j.owner, j.ttl.Milliseconds()}, step...)
	held, err := recordScript.Run(ctx, j.client, []string{journalPendingKey, leaseKey(txID), stepsKey(txID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("could not write journal %s: %w", txID, err)
	}
	if held == 0 {
		return fmt.Errorf("journal %s: %w", txID, compensating.ErrLeaseLost)
	}
	return nil
}

func (j *Journal) Complete(ctx context.Context, txID string) error {
	closed, err := completeScript.Run(ctx, j.client, []string{journalPendingKey, leaseKey(txID), stepsKey(txID)}, txID, j.owner).Int()
	if err != nil {
		return fmt.Errorf("could not close journal %s: %w", txID, err)
	}
	if closed == 0 {
		return fmt.Errorf("journal %s: %w", txID, compensating.ErrLeaseLost)
	}
	return nil
}

func (j *Journal) Pending(ctx context.Context) ([]string, error) {
	ids, err := j.client.SMembers(ctx, journalPendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("could not list pending journals: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	leases := make([]*redis.IntCmd, len(ids))
	_, err = j.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			leases[i] = pipe.Exists(ctx, leaseKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not read journal leases: %w", err)
	}

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if leases[i].Val() == 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func (j *Journal) Claim(ctx context.Context, txID string) ([]compensating.Step, bool, error) {
	claimed, err := claimScript.Run(ctx, j.client, []string{journalPendingKey, leaseKey(txID)}, txID, j.owner, j.ttl.Milliseconds()).Int()
	if err != nil {
		return nil, false, fmt.Errorf("could not claim journal %s: %w", txID, err)
	}
	if claimed == 0 {
		return nil, false, nil
	}

	fields, err := j.client.HGetAll(ctx, stepsKey(txID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("could not read journal %s: %w", txID, err)
	}
	steps := make(map[int]compensating.Step, len(fields))
	for _, raw := range fields {
		var step compensating.Step
		if err := json.Unmarshal([]byte(raw), &step); err != nil {
			return nil, false, fmt.Errorf("could not decode step of journal %s: %w", txID, err)
		}
		steps[step.Seq] = step
	}
	return compensating.SortSteps(steps), true, nil
}
