package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type memoryCooldownStore struct {
	records map[string]CooldownRecord
	failGet bool
	failPut bool
}

func newMemoryCooldownStore() *memoryCooldownStore {
	return &memoryCooldownStore{records: map[string]CooldownRecord{}}
}

func (m *memoryCooldownStore) GetCooldown(ctx context.Context, code string, dir Direction) (CooldownRecord, bool, error) {
	if m.failGet {
		return CooldownRecord{}, false, errors.New("boom")
	}
	rec, ok := m.records[code+":"+string(dir)]
	return rec, ok, nil
}

func (m *memoryCooldownStore) PutCooldown(ctx context.Context, rec CooldownRecord) error {
	if m.failPut {
		return errors.New("boom")
	}
	m.records[rec.Code+":"+string(rec.Direction)] = rec
	return nil
}

func (m *memoryCooldownStore) DeleteCooldown(ctx context.Context, code string, dir Direction) (bool, error) {
	key := code + ":" + string(dir)
	if _, ok := m.records[key]; !ok {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

func newTestDedup(store CooldownStore, now time.Time) *Deduplicator {
	d := NewDeduplicator(store, 60*time.Minute, decimal.NewFromFloat(2.0), zerolog.Nop())
	d.now = func() time.Time { return now }
	return d
}

func TestDedupFirstBreachAlerts(t *testing.T) {
	store := newMemoryCooldownStore()
	d := newTestDedup(store, time.Now())

	isNew, err := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51))
	if err != nil {
		t.Fatalf("首次突破不应报错: %v", err)
	}
	if !isNew {
		t.Fatal("首次突破应产生告警")
	}
	if len(store.records) != 1 {
		t.Fatalf("应写入一条冷却记录, 实际 %d", len(store.records))
	}
}

func TestDedupRepeatWithinWindowSuppressed(t *testing.T) {
	store := newMemoryCooldownStore()
	base := time.Now()

	d := newTestDedup(store, base)
	if isNew, _ := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51)); !isNew {
		t.Fatal("首次突破应产生告警")
	}

	// 30 分钟后，价格几乎未动
	d.now = func() time.Time { return base.Add(30 * time.Minute) }
	isNew, err := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromFloat(51.2))
	if err != nil {
		t.Fatalf("冷却期判定不应报错: %v", err)
	}
	if isNew {
		t.Fatal("冷却期内的小幅波动应被抑制")
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	store := newMemoryCooldownStore()
	base := time.Now()

	d := newTestDedup(store, base)
	_, _ = d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51))

	d.now = func() time.Time { return base.Add(61 * time.Minute) }
	isNew, err := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51))
	if err != nil {
		t.Fatalf("冷却期过后不应报错: %v", err)
	}
	if !isNew {
		t.Fatal("冷却窗口过期后应重新告警")
	}
}

func TestDedupSignificantMoveOverride(t *testing.T) {
	store := newMemoryCooldownStore()
	base := time.Now()

	d := newTestDedup(store, base)
	_, _ = d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(100))

	d.now = func() time.Time { return base.Add(10 * time.Minute) }

	// 1% 涨幅不足以突破冷却
	if isNew, _ := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(101)); isNew {
		t.Fatal("1% 变动应被冷却抑制")
	}

	// 3% 涨幅覆盖冷却
	isNew, err := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(103))
	if err != nil {
		t.Fatalf("显著波动判定不应报错: %v", err)
	}
	if !isNew {
		t.Fatal("3% 变动应覆盖冷却并再次告警")
	}

	// 覆盖后冷却基准应更新为新价格
	rec := store.records["600036.SH:"+string(DirectionUp)]
	if rec.LastPrice.Cmp(decimal.NewFromInt(103)) != 0 {
		t.Fatalf("冷却基准价应更新为 103, 实际 %s", rec.LastPrice)
	}
}

func TestDedupDirectionsIndependent(t *testing.T) {
	store := newMemoryCooldownStore()
	d := newTestDedup(store, time.Now())

	if isNew, _ := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51)); !isNew {
		t.Fatal("UP 方向首次突破应告警")
	}
	if isNew, _ := d.IsNewAlert(context.Background(), "600036.SH", DirectionDown, decimal.NewFromInt(39)); !isNew {
		t.Fatal("DOWN 方向冷却独立，应告警")
	}
}

func TestDedupStoreErrors(t *testing.T) {
	store := newMemoryCooldownStore()
	store.failGet = true
	d := newTestDedup(store, time.Now())

	if _, err := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51)); err == nil {
		t.Fatal("读取冷却记录失败应返回错误")
	}

	store.failGet = false
	store.failPut = true
	if _, err := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51)); err == nil {
		t.Fatal("写入冷却记录失败应返回错误")
	}
}

func TestDedupReset(t *testing.T) {
	store := newMemoryCooldownStore()
	base := time.Now()
	d := newTestDedup(store, base)

	_, _ = d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51))

	deleted, err := d.Reset(context.Background(), "600036.SH", DirectionUp)
	if err != nil {
		t.Fatalf("Reset 不应报错: %v", err)
	}
	if !deleted {
		t.Fatal("存在冷却记录时 Reset 应返回 true")
	}

	// 重置后同方向立即可再次告警
	d.now = func() time.Time { return base.Add(time.Minute) }
	if isNew, _ := d.IsNewAlert(context.Background(), "600036.SH", DirectionUp, decimal.NewFromInt(51)); !isNew {
		t.Fatal("重置后应立即允许告警")
	}

	if deleted, _ := d.Reset(context.Background(), "999999.SZ", DirectionDown); deleted {
		t.Fatal("不存在的记录 Reset 应返回 false")
	}
}

func TestParseDirection(t *testing.T) {
	if _, err := ParseDirection("UP"); err != nil {
		t.Fatalf("UP 应合法: %v", err)
	}
	if _, err := ParseDirection("DOWN"); err != nil {
		t.Fatalf("DOWN 应合法: %v", err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatal("未知方向应报错")
	}
}
