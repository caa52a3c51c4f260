package enrich

import (
	"context"
	"errors"
	"testing"

	logx "trophybot/pkg/logx"
)

type fakeSource struct {
	pct   map[string]float64
	err   error
	calls int
}

func (f *fakeSource) GlobalAchievementPercentages(context.Context, int) (map[string]float64, error) {
	f.calls++
	return f.pct, f.err
}

type memCache struct {
	data map[int]map[string]float64
}

func (m *memCache) GetRarity(_ context.Context, appID int) (map[string]float64, bool, error) {
	pct, ok := m.data[appID]
	return pct, ok, nil
}

func (m *memCache) PutRarity(_ context.Context, appID int, pct map[string]float64) error {
	if m.data == nil {
		m.data = map[int]map[string]float64{}
	}
	m.data[appID] = pct
	return nil
}

func TestRarityDisabled(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeSource{pct: map[string]float64{"A": 1}}, logx.Nop())
	if _, ok := s.Rarity(context.Background(), 1); ok {
		t.Fatal("disabled service returned data")
	}
}

func TestRarityLookup(t *testing.T) {
	src := &fakeSource{pct: map[string]float64{"A": 3.5}}
	s := New(Config{Enabled: true}, src, logx.Nop())

	pct, ok := s.Rarity(context.Background(), 400)
	if !ok || pct["A"] != 3.5 {
		t.Fatalf("got (%v, %v)", pct, ok)
	}
}

func TestRarityFailureDegrades(t *testing.T) {
	src := &fakeSource{err: errors.New("api down")}
	s := New(Config{Enabled: true}, src, logx.Nop())
	if _, ok := s.Rarity(context.Background(), 400); ok {
		t.Fatal("failure should degrade to no rarity")
	}
}

func TestRarityEmptyResultIsMiss(t *testing.T) {
	s := New(Config{Enabled: true}, &fakeSource{pct: map[string]float64{}}, logx.Nop())
	if _, ok := s.Rarity(context.Background(), 400); ok {
		t.Fatal("empty result should report no rarity")
	}
}

func TestRarityCache(t *testing.T) {
	src := &fakeSource{pct: map[string]float64{"A": 3.5}}
	s := New(Config{Enabled: true}, src, logx.Nop())
	s.SetCache(&memCache{})

	ctx := context.Background()
	s.Rarity(ctx, 400)
	s.Rarity(ctx, 400)
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1 (second hit from cache)", src.calls)
	}
}
