// Package cart 实现购物车账本：有序的行项目集合及其汇总值。
package cart

import (
	"sync"

	"github.com/MorseWayne/shopfront/internal/domain"
)

// Ledger 购物车账本，并发安全。
// 每次变更都会在同一临界区内重新计算 TotalItems 与 TotalPrice。
type Ledger struct {
	mu         sync.RWMutex
	items      []domain.LineItem
	index      map[string]int
	totalItems int
	totalPrice float64
}

// New 创建空账本
func New() *Ledger {
	return &Ledger{index: make(map[string]int)}
}

// Add 加入商品：已存在则数量加一并保留原快照，否则以数量 1 追加
func (l *Ledger) Add(p *domain.Product) {
	if p == nil || p.ID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if i, ok := l.index[p.ID]; ok {
		l.items[i].Quantity++
	} else {
		l.index[p.ID] = len(l.items)
		l.items = append(l.items, domain.LineItem{Product: p.Clone(), Quantity: 1})
	}
	l.recompute()
}

// Remove 删除行项目，不存在时为空操作
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.removeLocked(id) {
		l.recompute()
	}
}

// Decrease 数量减一，减到 0 时删除行项目
func (l *Ledger) Decrease(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return
	}
	if l.items[i].Quantity > 1 {
		l.items[i].Quantity--
	} else {
		l.removeLocked(id)
	}
	l.recompute()
}

// UpdateQuantity 设置数量，quantity <= 0 时删除行项目
func (l *Ledger) UpdateQuantity(id string, quantity int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return
	}
	if quantity <= 0 {
		l.removeLocked(id)
	} else {
		l.items[i].Quantity = quantity
	}
	l.recompute()
}

// Clear 清空购物车
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	l.index = make(map[string]int)
	l.recompute()
}

// Snapshot 返回当前状态的深拷贝
func (l *Ledger) Snapshot() domain.CartSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	items := make([]domain.LineItem, len(l.items))
	for i, it := range l.items {
		items[i] = domain.LineItem{Product: it.Product.Clone(), Quantity: it.Quantity}
	}
	return domain.CartSnapshot{
		Items:      items,
		TotalItems: l.totalItems,
		TotalPrice: l.totalPrice,
	}
}

// Restore 用持久化的快照替换当前状态。
// 汇总值总是根据行项目重新计算；数量小于 1 或缺少商品的行被丢弃，重复 ID 合并数量。
func (l *Ledger) Restore(s domain.CartSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	l.index = make(map[string]int)
	for _, it := range s.Items {
		if it.Product == nil || it.Product.ID == "" || it.Quantity < 1 {
			continue
		}
		if i, ok := l.index[it.Product.ID]; ok {
			l.items[i].Quantity += it.Quantity
			continue
		}
		l.index[it.Product.ID] = len(l.items)
		l.items = append(l.items, domain.LineItem{Product: it.Product.Clone(), Quantity: it.Quantity})
	}
	l.recompute()
}

// Items 返回行项目副本
func (l *Ledger) Items() []domain.LineItem {
	return l.Snapshot().Items
}

// Len 行项目数
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// TotalItems 商品总件数
func (l *Ledger) TotalItems() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalItems
}

// TotalPrice 商品总价
func (l *Ledger) TotalPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalPrice
}

func (l *Ledger) removeLocked(id string) bool {
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.items); j++ {
		l.index[l.items[j].Product.ID] = j
	}
	return true
}

func (l *Ledger) recompute() {
	total, price := 0, 0.0
	for _, it := range l.items {
		total += it.Quantity
		price += it.Subtotal()
	}
	l.totalItems = total
	l.totalPrice = price
}
