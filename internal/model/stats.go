package model

// UserStats are aggregate counters derived from the bet collection. They are
// recomputed from the bets, never mutated independently, with one exception:
// TotalWinnings is additive and grows only when a payout is claimed.
type UserStats struct {
	TotalBets     int     `json:"total_bets"`
	TotalWon      int     `json:"total_won"`
	TotalStaked   float64 `json:"total_staked"`
	TotalWinnings float64 `json:"total_winnings"`
	PendingBets   int     `json:"pending_bets"`
	WinRate       float64 `json:"win_rate"`
}

// ComputeStats derives counters from a bet collection. The winnings total is
// carried over from the previous stats since it reflects claims, not bet
// state.
func ComputeStats(bets []*Bet, totalWinnings float64) UserStats {
	stats := UserStats{TotalWinnings: totalWinnings}
	for _, bet := range bets {
		stats.TotalBets++
		stats.TotalStaked += bet.Stake
		switch bet.Status {
		case BetPending:
			stats.PendingBets++
		case BetWon, BetClaimed:
			stats.TotalWon++
		}
	}
	if stats.TotalBets > 0 {
		stats.WinRate = float64(stats.TotalWon) / float64(stats.TotalBets) * 100
	}
	return stats
}
