package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes task events to an external channel so a client
// watching a task (an HTTP long-poller, a websocket bridge) can learn
// about new activity without polling storage directly.
type Notifier interface {
	// Notify publishes one event for taskID. event is marshaled to JSON
	// as-is; callers typically pass a *Task or a response.Event.
	Notify(ctx context.Context, taskID string, event interface{}) error
	Close() error
}

// NoopNotifier discards every notification. It is the default when no
// Redis address is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, taskID string, event interface{}) error { return nil }
func (NoopNotifier) Close() error                                                       { return nil }

// RedisNotifier publishes a pub/sub marker plus an appended list entry
// per task, matching the dual-channel shape a client can either subscribe
// to live or drain on reconnect.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
	// ResponseListTTL bounds how long a task's response list survives
	// after its last write. Zero means no expiry is set.
	ResponseListTTL time.Duration
}

// RedisNotifierOptions mirrors RedisCacheOptions' connection shape.
type RedisNotifierOptions struct {
	Addrs    []string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces the pub/sub channel and list keys, e.g.
	// "agent_run" to match "agent_run:<taskId>:new_response".
	KeyPrefix string

	ResponseListTTL time.Duration
}

// NewRedisNotifier creates a notifier against a single Redis address.
func NewRedisNotifier(addr, password string, db int) (*RedisNotifier, error) {
	return NewRedisNotifierWithOptions(&RedisNotifierOptions{
		Addrs:    []string{addr},
		Password: password,
		DB:       db,
	})
}

// NewRedisNotifierWithOptions creates a notifier with full connection
// control, including cluster mode when more than one address is given.
func NewRedisNotifierWithOptions(opts *RedisNotifierOptions) (*RedisNotifier, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis notifier options cannot be nil")
	}

	if len(opts.Addrs) == 0 {
		opts.Addrs = []string{"localhost:6379"}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = 5
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "agent_run"
	}

	var client redis.UniversalClient
	if len(opts.Addrs) == 1 {
		client = redis.NewClient(&redis.Options{
			Addr:         opts.Addrs[0],
			Password:     opts.Password,
			DB:           opts.DB,
			PoolSize:     opts.PoolSize,
			MinIdleConns: opts.MinIdleConns,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		})
	} else {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        opts.Addrs,
			Password:     opts.Password,
			PoolSize:     opts.PoolSize,
			MinIdleConns: opts.MinIdleConns,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w\n\n"+
			"Fix:\n"+
			"  1. Check Redis is running: redis-cli ping\n"+
			"  2. Verify connection: redis://localhost:6379\n"+
			"  3. Check firewall/network settings\n"+
			"  4. Start Redis: redis-server or docker run -p 6379:6379 redis\n", err)
	}

	return &RedisNotifier{client: client, prefix: opts.KeyPrefix, ResponseListTTL: opts.ResponseListTTL}, nil
}

func (n *RedisNotifier) markerKey(taskID string) string {
	return fmt.Sprintf("%s:%s:new_response", n.prefix, taskID)
}

func (n *RedisNotifier) listKey(taskID string) string {
	return fmt.Sprintf("%s:%s:responses", n.prefix, taskID)
}

// Notify PUBLISHes a marker to the task's notification channel and
// RPUSHes the JSON-encoded event onto its response list.
func (n *RedisNotifier) Notify(ctx context.Context, taskID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	listKey := n.listKey(taskID)
	pipe := n.client.TxPipeline()
	pipe.RPush(ctx, listKey, payload)
	if n.ResponseListTTL > 0 {
		pipe.Expire(ctx, listKey, n.ResponseListTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: rpush response list: %w", err)
	}

	if err := n.client.Publish(ctx, n.markerKey(taskID), taskID).Err(); err != nil {
		return fmt.Errorf("notify: publish marker: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// MemoryNotifier is an in-process Notifier test double: every Notify call
// fans out to every channel currently subscribed to the task, matching
// RedisNotifier's pub/sub semantics without a live Redis server.
type MemoryNotifier struct {
	mu   sync.RWMutex
	subs map[string][]chan interface{}
}

// NewMemoryNotifier creates an empty in-process notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string][]chan interface{})}
}

// Subscribe returns a channel receiving every event subsequently
// notified for taskID. The returned func unsubscribes and closes the
// channel.
func (n *MemoryNotifier) Subscribe(taskID string) (<-chan interface{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan interface{}, 16)
	n.subs[taskID] = append(n.subs[taskID], ch)

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		chans := n.subs[taskID]
		for i, c := range chans {
			if c == ch {
				n.subs[taskID] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe
}

func (n *MemoryNotifier) Notify(ctx context.Context, taskID string, event interface{}) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs[taskID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (n *MemoryNotifier) Close() error { return nil }
