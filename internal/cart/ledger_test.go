package cart

import (
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/shopfront/internal/domain"
)

func product(id string, price float64) *domain.Product {
	return &domain.Product{ID: id, Title: "product " + id, Price: price}
}

func ids(l *Ledger) []string {
	out := []string{}
	for _, it := range l.Items() {
		out = append(out, it.Product.ID)
	}
	return out
}

// checkAggregates 汇总值必须与行项目一致
func checkAggregates(t *testing.T, l *Ledger) {
	t.Helper()
	s := l.Snapshot()
	total, price := 0, 0.0
	for _, it := range s.Items {
		require.GreaterOrEqual(t, it.Quantity, 1)
		total += it.Quantity
		price += it.Product.Price * float64(it.Quantity)
	}
	assert.Equal(t, total, s.TotalItems)
	assert.InDelta(t, price, s.TotalPrice, 1e-9)
}

func TestLedgerAdd(t *testing.T) {
	l := New()
	l.Add(product("1", 10))
	l.Add(product("2", 2.5))
	l.Add(product("1", 99)) // 已存在：保留加入时的价格

	assert.Equal(t, []string{"1", "2"}, ids(l))
	assert.Equal(t, 3, l.TotalItems())
	assert.InDelta(t, 22.5, l.TotalPrice(), 1e-9)
	assert.Equal(t, 10.0, l.Items()[0].Product.Price)
	checkAggregates(t, l)
}

func TestLedgerAddIgnoresNil(t *testing.T) {
	l := New()
	l.Add(nil)
	l.Add(&domain.Product{})
	assert.Equal(t, 0, l.Len())
}

func TestLedgerSnapshotIsolation(t *testing.T) {
	p := product("1", 10)
	l := New()
	l.Add(p)
	p.Price = 1000

	s := l.Snapshot()
	s.Items[0].Product.Price = 5
	s.Items[0].Quantity = 7

	assert.Equal(t, 10.0, l.Items()[0].Product.Price)
	assert.Equal(t, 1, l.TotalItems())
}

func TestLedgerRemove(t *testing.T) {
	l := New()
	l.Add(product("1", 1))
	l.Add(product("2", 2))
	l.Add(product("3", 3))

	l.Remove("2")
	assert.Equal(t, []string{"1", "3"}, ids(l))
	checkAggregates(t, l)

	before := l.Snapshot()
	l.Remove("missing")
	assert.Empty(t, cmp.Diff(before, l.Snapshot()))

	// 删除后索引仍然正确
	l.Add(product("3", 3))
	assert.Equal(t, 2, l.Items()[1].Quantity)
}

func TestLedgerDecrease(t *testing.T) {
	l := New()
	l.Add(product("1", 4))
	l.Add(product("1", 4))

	l.Decrease("1")
	require.Equal(t, 1, l.TotalItems())
	l.Decrease("1")
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0.0, l.TotalPrice())

	l.Decrease("1")
	assert.Equal(t, 0, l.Len())
}

func TestLedgerUpdateQuantity(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		quantity  int
		wantLen   int
		wantTotal int
	}{
		{name: "set quantity", id: "1", quantity: 5, wantLen: 2, wantTotal: 6},
		{name: "zero removes", id: "1", quantity: 0, wantLen: 1, wantTotal: 1},
		{name: "negative removes", id: "1", quantity: -3, wantLen: 1, wantTotal: 1},
		{name: "absent is no-op", id: "9", quantity: 4, wantLen: 2, wantTotal: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			l.Add(product("1", 2))
			l.Add(product("2", 3))

			l.UpdateQuantity(tt.id, tt.quantity)
			assert.Equal(t, tt.wantLen, l.Len())
			assert.Equal(t, tt.wantTotal, l.TotalItems())
			checkAggregates(t, l)
		})
	}
}

func TestLedgerClear(t *testing.T) {
	l := New()
	l.Add(product("1", 2))
	l.Add(product("2", 3))
	l.Clear()

	s := l.Snapshot()
	assert.Empty(t, s.Items)
	assert.Zero(t, s.TotalItems)
	assert.Zero(t, s.TotalPrice)

	l.Add(product("2", 3))
	assert.Equal(t, []string{"2"}, ids(l))
}

func TestLedgerRestore(t *testing.T) {
	stored := domain.CartSnapshot{
		Items: []domain.LineItem{
			{Product: product("1", 2), Quantity: 2},
			{Product: product("2", 5), Quantity: 0},
			{Product: nil, Quantity: 3},
			{Product: product("1", 2), Quantity: 1},
			{Product: product("3", 1.5), Quantity: 4},
		},
		// 损坏的汇总值不应被信任
		TotalItems: 999,
		TotalPrice: -1,
	}

	l := New()
	l.Add(product("old", 1))
	l.Restore(stored)

	assert.Equal(t, []string{"1", "3"}, ids(l))
	assert.Equal(t, 7, l.TotalItems())
	assert.InDelta(t, 12.0, l.TotalPrice(), 1e-9)
	checkAggregates(t, l)
}

func TestLedgerRoundTrip(t *testing.T) {
	l := New()
	l.Add(product("1", 19.99))
	l.Add(product("2", 5))
	l.UpdateQuantity("2", 3)

	restored := New()
	restored.Restore(l.Snapshot())
	assert.Empty(t, cmp.Diff(l.Snapshot(), restored.Snapshot()))
}

func TestLedgerConcurrentAdds(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				l.Add(product("a", 1))
			} else {
				l.Add(product("b", 2))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.TotalItems())
	assert.Equal(t, 75.0, math.Round(l.TotalPrice()))
	checkAggregates(t, l)
}

// TestLedgerRandomSequences 任意操作序列之后汇总值都与行项目一致，且与简单模型的数量相同
func TestLedgerRandomSequences(t *testing.T) {
	prices := []float64{0, 0.1, 1.99, 10, 109.95, 0.3}

	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		l := New()
		model := map[string]int{}

		for step := 0; step < 300; step++ {
			n := rng.IntN(len(prices))
			id := strconv.Itoa(n)
			switch rng.IntN(4) {
			case 0:
				l.Add(product(id, prices[n]))
				model[id]++
			case 1:
				l.Remove(id)
				delete(model, id)
			case 2:
				l.Decrease(id)
				if model[id] > 1 {
					model[id]--
				} else {
					delete(model, id)
				}
			case 3:
				q := rng.IntN(6) - 1
				l.UpdateQuantity(id, q)
				if _, ok := model[id]; ok {
					if q <= 0 {
						delete(model, id)
					} else {
						model[id] = q
					}
				}
			}

			checkAggregates(t, l)
			got := map[string]int{}
			for _, it := range l.Items() {
				got[it.Product.ID] = it.Quantity
			}
			if diff := cmp.Diff(model, got); diff != "" {
				t.Fatalf("seed %d step %d: quantities mismatch (-want +got):\n%s", seed, step, diff)
			}
		}
	}
}
