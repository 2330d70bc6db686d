package store

import (
	"math"
	"strings"

	"flarebets/internal/model"
)

// mergeBetLocked folds one bet into the collection and reports whether it
// was inserted. The identity key is the contract id when present, the local
// id otherwise. On collision the existing record wins wholesale, except
// that a local record missing its contract id adopts the incoming one so a
// degraded placement heals on the next reconciliation.
func (s *Store) mergeBetLocked(incoming *model.Bet) bool {
	if incoming.ContractID != nil {
		if _, ok := s.byContractID[*incoming.ContractID]; ok {
			return false
		}
		// The chain copy of a bet whose placement lost its BetPlaced log
		// this session: the contract read carries no tx hash, so match on
		// the bet's identity fields instead and attach the id in place.
		for _, existing := range s.bets {
			if existing.ContractID != nil {
				continue
			}
			// Addresses compare case-insensitively: checksummed hex from
			// the chain, possibly lower-case locally.
			if strings.EqualFold(existing.Owner, incoming.Owner) &&
				existing.RaceID == incoming.RaceID &&
				existing.DriverID == incoming.DriverID &&
				sameStake(existing.Stake, incoming.Stake) {
				id := *incoming.ContractID
				existing.ContractID = &id
				s.byContractID[id] = existing
				return false
			}
		}
	}

	if _, ok := s.byLocalID[incoming.ID]; ok {
		return false
	}

	s.bets = append(s.bets, incoming)
	s.byLocalID[incoming.ID] = incoming
	if incoming.ContractID != nil {
		s.byContractID[*incoming.ContractID] = incoming
	}
	return true
}

// sameStake compares stakes across the wei round trip.
func sameStake(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
