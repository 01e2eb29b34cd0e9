package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
	"procurement-signals/internal/config"
	"procurement-signals/internal/domain"
)

// RedisStore keeps one JSON value per material and concern:
//
//	<prefix>:materials
//	<prefix>:prices:<material>
//	<prefix>:vendors:<material>
//	<prefix>:inventory:<material>
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  clock.Clock
	logger zerolog.Logger
}

// NewRedisClient connects and pings redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func buildRedisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// NewRedisStore 构造 redis 快照存储。
func NewRedisStore(client *redis.Client, prefix string, clk clock.Clock, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "procsignal"
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		clock:  clk,
		logger: logger.With().Str("component", "snapshot_redis").Logger(),
	}
}

func (r *RedisStore) materialsKey() string { return r.prefix + ":materials" }

func (r *RedisStore) key(kind, material string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, kind, material)
}

// maxTxAttempts bounds the optimistic retries when a concurrent Save touches
// the materials key between WATCH and EXEC.
const maxTxAttempts = 5

var snapshotKinds = []string{"prices", "vendors", "inventory"}

// Load implements Source. The materials key is watched and every per-material
// key is read inside one MULTI/EXEC, so a concurrent Save is never observed
// half applied.
func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	var doc Document
	err := r.withWatch(ctx, func(tx *redis.Tx) error {
		materials, found, err := r.readMaterials(ctx, tx)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: redis key %s is missing", domain.ErrInsufficientData, r.materialsKey())
		}

		cmds := make(map[string]*redis.StringCmd, len(materials)*len(snapshotKinds))
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range materials {
				for _, kind := range snapshotKinds {
					k := r.key(kind, m)
					cmds[k] = pipe.Get(ctx, k)
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		doc = Document{
			Materials: materials,
			Vendors:   make(map[string][]domain.Vendor),
			Inventory: make(map[string]domain.InventoryRecord),
		}
		for _, m := range materials {
			var rows []PriceRow
			if r.decode(cmds, r.key("prices", m), &rows) {
				doc.Prices = append(doc.Prices, rows...)
			}
			var vendors []domain.Vendor
			if r.decode(cmds, r.key("vendors", m), &vendors) {
				doc.Vendors[m] = vendors
			}
			var inv domain.InventoryRecord
			if r.decode(cmds, r.key("inventory", m), &inv) {
				doc.Inventory[m] = inv
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Build(doc, r.clock.Now(), r.logger), nil
}

// Save writes every key of the snapshot in one MULTI/EXEC and deletes the
// keys of materials (or concerns) the previous snapshot had and this one lacks.
func (r *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	doc := snap.Document()
	rowsByMaterial := make(map[string][]PriceRow)
	for _, row := range doc.Prices {
		rowsByMaterial[row.Material] = append(rowsByMaterial[row.Material], row)
	}

	values := map[string]any{r.materialsKey(): doc.Materials}
	for _, m := range doc.Materials {
		values[r.key("prices", m)] = rowsByMaterial[m]
		if vendors, ok := doc.Vendors[m]; ok {
			values[r.key("vendors", m)] = vendors
		}
		if inv, ok := doc.Inventory[m]; ok {
			values[r.key("inventory", m)] = inv
		}
	}

	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		body, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", k, err)
		}
		encoded[k] = body
	}

	var stale []string
	err := r.withWatch(ctx, func(tx *redis.Tx) error {
		previous, _, err := r.readMaterials(ctx, tx)
		if err != nil {
			return err
		}
		stale = stale[:0]
		for _, m := range previous {
			for _, kind := range snapshotKinds {
				if _, ok := encoded[r.key(kind, m)]; !ok {
					stale = append(stale, r.key(kind, m))
				}
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(stale) > 0 {
				pipe.Del(ctx, stale...)
			}
			for k, body := range encoded {
				pipe.Set(ctx, k, body, 0)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis save snapshot: %w", err)
	}
	r.logger.Info().
		Int("materials", len(doc.Materials)).
		Int("keys", len(encoded)).
		Int("stale_keys", len(stale)).
		Msg("快照已写入 redis")
	return nil
}

// withWatch runs fn under WATCH on the materials key and retries when the
// transaction is aborted by a concurrent writer.
func (r *RedisStore) withWatch(ctx context.Context, fn func(tx *redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.client.Watch(ctx, fn, r.materialsKey())
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		r.logger.Debug().Int("attempt", attempt+1).Msg("redis 事务冲突, 重试")
	}
	return err
}

func (r *RedisStore) readMaterials(ctx context.Context, tx *redis.Tx) ([]string, bool, error) {
	raw, err := tx.Get(ctx, r.materialsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", r.materialsKey(), err)
	}
	var materials []string
	if err := json.Unmarshal(raw, &materials); err != nil {
		r.logger.Warn().Err(err).Str("key", r.materialsKey()).Msg("跳过无法解析的 redis 值")
		return nil, false, nil
	}
	return materials, true, nil
}

// decode reports whether the GET for key held a parseable value.
func (r *RedisStore) decode(cmds map[string]*redis.StringCmd, key string, dst any) bool {
	cmd, ok := cmds[key]
	if !ok {
		return false
	}
	raw, err := cmd.Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("key", key).Msg("读取 redis 值失败")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("跳过无法解析的 redis 值")
		return false
	}
	return true
}

var _ Source = (*RedisStore)(nil)
