package model

import "time"

// RaceStatus is the lifecycle state of a race. Transitions are monotonic:
// upcoming -> closed -> settled.
type RaceStatus string

const (
	RaceUpcoming RaceStatus = "upcoming"
	RaceClosed   RaceStatus = "closed"
	RaceSettled  RaceStatus = "settled"
)

// Driver is a race entrant. Odds are race-scoped and cached; the pool on
// chain is the source of truth.
type Driver struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Number int     `json:"number"`
	Team   string  `json:"team"`
	Odds   float64 `json:"odds"`
}

// Race is a betting market for one grand prix. WinningDriverID is set if and
// only if Status is RaceSettled.
type Race struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Circuit         string     `json:"circuit"`
	Country         string     `json:"country"`
	Date            time.Time  `json:"date"`
	CutoffTime      time.Time  `json:"cutoff_time"`
	Status          RaceStatus `json:"status"`
	Drivers         []Driver   `json:"drivers"`
	WinningDriverID string     `json:"winning_driver_id,omitempty"`
}

// DriverByID returns the race entrant with the given id.
func (r *Race) DriverByID(driverID string) (Driver, bool) {
	for _, d := range r.Drivers {
		if d.ID == driverID {
			return d, true
		}
	}
	return Driver{}, false
}
