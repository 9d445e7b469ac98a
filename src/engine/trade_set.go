package engine

import (
	"github.com/google/btree"
)

type tradeItem struct {
	trade Trade
}

func (t *tradeItem) Less(than btree.Item) bool {
	return tradeLess(t.trade, than.(*tradeItem).trade)
}

// TradeSet keeps trades ordered by (timestamp, trade id) and drops repeats of
// a trade id. Feeds merge overlapping pages through it.
type TradeSet struct {
	tree *btree.BTree
	ids  map[int64]struct{}
}

func NewTradeSet() *TradeSet {
	return &TradeSet{
		tree: btree.New(32),
		ids:  make(map[int64]struct{}),
	}
}

// Add reports whether the trade was new.
func (s *TradeSet) Add(trade Trade) bool {
	if _, seen := s.ids[trade.ID]; seen {
		return false
	}
	s.ids[trade.ID] = struct{}{}
	s.tree.ReplaceOrInsert(&tradeItem{trade: trade})
	return true
}

// AddAll returns how many trades were new.
func (s *TradeSet) AddAll(trades []Trade) int {
	added := 0
	for _, t := range trades {
		if s.Add(t) {
			added++
		}
	}
	return added
}

func (s *TradeSet) Len() int {
	return s.tree.Len()
}

// Trades returns the set in ascending order.
func (s *TradeSet) Trades() []Trade {
	out := make([]Trade, 0, s.tree.Len())
	s.tree.Ascend(func(item btree.Item) bool {
		out = append(out, item.(*tradeItem).trade)
		return true
	})
	return out
}

// Latest returns the newest trade, false when empty.
func (s *TradeSet) Latest() (Trade, bool) {
	item := s.tree.Max()
	if item == nil {
		return Trade{}, false
	}
	return item.(*tradeItem).trade, true
}
