package ssa

import (
	"sort"

	"github.com/xandfury/radeco/pkg/ir"
)

// addrMap is an ordered map keyed by MAddress, supporting the "largest
// key <= query" floor lookup the phi placer needs for both the
// per-variable definition maps and the block-start index (§9: "an
// address-keyed ordered map per variable... lookup is largest key <=
// query").
type addrMap[V any] struct {
	keys []ir.MAddress
	vals map[ir.MAddress]V
}

func newAddrMap[V any]() *addrMap[V] {
	return &addrMap[V]{vals: make(map[ir.MAddress]V)}
}

// Insert records value v at key k, keeping keys sorted.
func (m *addrMap[V]) Insert(k ir.MAddress, v V) {
	if _, ok := m.vals[k]; !ok {
		i := sort.Search(len(m.keys), func(i int) bool { return k.Less(m.keys[i]) })
		m.keys = append(m.keys, ir.MAddress{})
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = k
	}
	m.vals[k] = v
}

// Get returns the value at exactly key k.
func (m *addrMap[V]) Get(k ir.MAddress) (V, bool) {
	v, ok := m.vals[k]
	return v, ok
}

// Floor returns the entry at the largest key <= query, if any.
func (m *addrMap[V]) Floor(query ir.MAddress) (ir.MAddress, V, bool) {
	i := sort.Search(len(m.keys), func(i int) bool { return query.Less(m.keys[i]) })
	if i == 0 {
		var zero V
		return ir.MAddress{}, zero, false
	}
	k := m.keys[i-1]
	return k, m.vals[k], true
}

// Keys returns the keys in ascending order.
func (m *addrMap[V]) Keys() []ir.MAddress { return m.keys }

// Len reports the number of entries.
func (m *addrMap[V]) Len() int { return len(m.keys) }
