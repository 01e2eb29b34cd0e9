package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test", clock.Fixed{T: loadedAt}, zerolog.Nop()), mr
}

func TestRedisStoreSaveThenLoad(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, Build(sampleDocument(), loadedAt, zerolog.Nop())); err != nil {
		t.Fatalf("写入 redis 不应报错: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("读取 redis 不应报错: %v", err)
	}
	if len(snap.Materials) != 3 || snap.Materials[0] != "Copper" {
		t.Fatalf("物料列表不正确: %v", snap.Materials)
	}
	if len(snap.Prices["Copper"]) != 3 {
		t.Fatalf("Copper 应有 3 条价格, 实际 %d", len(snap.Prices["Copper"]))
	}
	if p, ok := snap.CurrentPrice("Copper"); !ok || p != 8100 {
		t.Fatalf("Copper 最新价格应为 8100, 实际 %v", p)
	}
	if len(snap.Vendors["Copper"]) != 1 || snap.Vendors["Copper"][0].Price != 8000 {
		t.Fatalf("供应商应去重并保留第一条: %+v", snap.Vendors["Copper"])
	}
	if _, ok := snap.Inventory["Copper"]; !ok {
		t.Fatal("Copper 库存应存在")
	}
}

func TestRedisStoreSaveRemovesStaleKeys(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, Build(sampleDocument(), loadedAt, zerolog.Nop())); err != nil {
		t.Fatalf("写入 redis 不应报错: %v", err)
	}
	if !mr.Exists("test:inventory:Copper") || !mr.Exists("test:prices:Aluminum") {
		t.Fatal("首次写入后键应存在")
	}

	next := Document{
		Materials: []string{"Copper"},
		Prices:    []PriceRow{{Date: "2026-03-09", Material: "Copper", Price: 8200}},
	}
	if err := store.Save(ctx, Build(next, loadedAt, zerolog.Nop())); err != nil {
		t.Fatalf("第二次写入不应报错: %v", err)
	}
	for _, k := range []string{"test:prices:Aluminum", "test:prices:Steel", "test:inventory:Steel", "test:vendors:Copper", "test:inventory:Copper"} {
		if mr.Exists(k) {
			t.Fatalf("过期键 %s 应被删除", k)
		}
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("读取 redis 不应报错: %v", err)
	}
	if len(snap.Materials) != 1 || len(snap.Vendors) != 0 {
		t.Fatalf("应只剩 Copper 且无供应商: %+v", snap)
	}
	if p, _ := snap.CurrentPrice("Copper"); p != 8200 {
		t.Fatalf("Copper 价格应为新值 8200, 实际 %v", p)
	}
}

func TestRedisStoreLoadMissingAndMalformed(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("缺少 materials 键应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}

	if err := mr.Set("test:materials", `["Copper"]`); err != nil {
		t.Fatalf("写入 miniredis 失败: %v", err)
	}
	if err := mr.Set("test:prices:Copper", `[{"date":"2026-03-09","material":"Copper","price":8100}]`); err != nil {
		t.Fatalf("写入 miniredis 失败: %v", err)
	}
	if err := mr.Set("test:vendors:Copper", `{not json`); err != nil {
		t.Fatalf("写入 miniredis 失败: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("无法解析的值应被跳过而不是报错: %v", err)
	}
	if len(snap.Vendors["Copper"]) != 0 || len(snap.Prices["Copper"]) != 1 {
		t.Fatalf("应跳过损坏的供应商值并保留价格: %+v", snap)
	}
}
