package session

import "github.com/alejandrodnm/legbook/internal/domain"

// Join enriches each selection with the quote of its (kind, strike) in chain.
// A strike or side missing from chain gives null bid and ask, never the
// numbers of an earlier snapshot.
func Join(selections []domain.Selection, chain domain.ChainSnapshot) []domain.LivePosition {
	out := make([]domain.LivePosition, len(selections))
	for i, sel := range selections {
		out[i] = joinOne(sel, chain)
	}
	return out
}

func joinOne(sel domain.Selection, chain domain.ChainSnapshot) domain.LivePosition {
	pos := domain.LivePosition{Selection: sel}
	if inst := chain.Quote(sel.Kind, sel.Strike); inst != nil {
		pos.BestBid = inst.BestBid
		pos.BestAsk = inst.BestAsk
	}
	return pos
}
