package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapter.
const DefaultPrefix = "espalier:"

// Repository implements ports.StateRepository using one Redis hash per
// process instance: key "<prefix>state:<instanceId>", field
// "graphId:nodeId", value the integer state code.
type Repository struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Repository)

// WithTTL expires an instance's states after ttl without writes.
func WithTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.prefix = prefix
	}
}

// New creates a new Redis repository with options.
func New(address, password string, db int, opts ...Option) *Repository {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis repository from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Repository {
	r := &Repository{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client returns the underlying client, shared with the Locker.
func (r *Repository) Client() *backend.Client {
	return r.client
}

// Prefix returns the key prefix.
func (r *Repository) Prefix() string {
	return r.prefix
}

func (r *Repository) key(instanceID string) string {
	return r.prefix + "state:" + instanceID
}

// Get returns the state of the node, or TaskStateUnknown when absent.
func (r *Repository) Get(ctx context.Context, instanceID string, node *domain.Node) (domain.TaskState, error) {
	val, err := r.client.HGet(ctx, r.key(instanceID), node.Key()).Result()
	if errors.Is(err, backend.Nil) {
		return domain.TaskStateUnknown, nil
	}
	if err != nil {
		return domain.TaskStateUnknown, fmt.Errorf("failed to load state from redis: %w", err)
	}
	return parseState(val)
}

// Put stores the state of the node and refreshes the instance TTL.
func (r *Repository) Put(ctx context.Context, instanceID string, node *domain.Node, state domain.TaskState) error {
	key := r.key(instanceID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, node.Key(), int(state))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save state to redis: %w", err)
	}
	return nil
}

// Remove deletes the state of the node.
func (r *Repository) Remove(ctx context.Context, instanceID string, node *domain.Node) error {
	if err := r.client.HDel(ctx, r.key(instanceID), node.Key()).Err(); err != nil {
		return fmt.Errorf("failed to remove state from redis: %w", err)
	}
	return nil
}

// Clear deletes every entry of the instance.
func (r *Repository) Clear(ctx context.Context, instanceID string) error {
	if err := r.client.Del(ctx, r.key(instanceID)).Err(); err != nil {
		return fmt.Errorf("failed to clear instance in redis: %w", err)
	}
	return nil
}

// Snapshot returns every entry of the instance.
func (r *Repository) Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error) {
	vals, err := r.client.HGetAll(ctx, r.key(instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list states from redis: %w", err)
	}
	out := make(map[string]domain.TaskState, len(vals))
	for field, val := range vals {
		state, err := parseState(val)
		if err != nil {
			return nil, err
		}
		out[field] = state
	}
	return out, nil
}

func parseState(val string) (domain.TaskState, error) {
	code, err := strconv.Atoi(val)
	if err != nil {
		return domain.TaskStateUnknown, fmt.Errorf("failed to parse state code %q: %w", val, err)
	}
	return domain.TaskStateOf(code), nil
}
