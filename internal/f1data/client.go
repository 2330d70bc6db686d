package f1data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"flarebets/internal/model"
)

// DefaultBaseURL is the public Jolpica mirror of the Ergast F1 API.
const DefaultBaseURL = "https://api.jolpi.ca/ergast/f1"

// initialOddsLadder seeds driver odds by grid position before any pool
// exists on chain. Drivers past the ladder share the last rung.
var initialOddsLadder = []float64{1.85, 2.10, 2.50, 3.20, 4.00, 5.00, 6.50, 8.00, 10.00, 12.00}

// cutoffBeforeStart is how long before lights out betting closes.
const cutoffBeforeStart = time.Hour

// Client fetches season data from a Jolpica/Ergast-compatible API and maps
// it onto betting markets. Failures here are never fatal to a session; the
// caller runs with an empty calendar instead.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// New builds a client. baseURL defaults to the public Jolpica endpoint.
func New(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *Client) drivers(ctx context.Context, season string) ([]apiDriver, error) {
	var resp driversResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/drivers.json", c.baseURL, season), &resp); err != nil {
		return nil, err
	}
	return resp.MRData.DriverTable.Drivers, nil
}

// Races returns the season calendar mapped to betting markets. Each race
// carries the full driver field with ladder-seeded odds; the pool on chain
// replaces those once bets exist.
func (c *Client) Races(ctx context.Context, season string) ([]model.Race, error) {
	var resp racesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/races.json", c.baseURL, season), &resp); err != nil {
		return nil, err
	}

	drivers, err := c.drivers(ctx, season)
	if err != nil {
		return nil, err
	}
	teams := c.teamsBySeasonResults(ctx, season)

	entrants := make([]model.Driver, 0, len(drivers))
	for i, d := range drivers {
		number, _ := strconv.Atoi(d.PermanentNumber)
		entrants = append(entrants, model.Driver{
			ID:     d.DriverID,
			Name:   d.GivenName + " " + d.FamilyName,
			Number: number,
			Team:   teams[d.DriverID],
			Odds:   ladderOdds(i),
		})
	}

	now := time.Now()
	races := make([]model.Race, 0, len(resp.MRData.RaceTable.Races))
	for _, r := range resp.MRData.RaceTable.Races {
		start, err := parseStart(r.Date, r.Time)
		if err != nil {
			c.logger.Warn("unparseable race start",
				zap.String("race", r.RaceName),
				zap.Error(err))
			continue
		}
		cutoff := start.Add(-cutoffBeforeStart)

		status := model.RaceUpcoming
		if now.After(cutoff) {
			// Past races without an on-chain result stay closed, never
			// settled; settlement only ever comes from the contract.
			status = model.RaceClosed
		}

		races = append(races, model.Race{
			ID:         r.Season + "-" + r.Round,
			Name:       r.RaceName,
			Circuit:    r.Circuit.CircuitName,
			Country:    r.Circuit.Location.Country,
			Date:       start,
			CutoffTime: cutoff,
			Status:     status,
			Drivers:    append([]model.Driver(nil), entrants...),
		})
	}
	return races, nil
}

// RaceWinner returns the winning driver id of a completed round, or empty
// when no result is published yet.
func (c *Client) RaceWinner(ctx context.Context, season, round string) (string, error) {
	var resp resultsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/%s/results.json", c.baseURL, season, round), &resp); err != nil {
		return "", err
	}
	for _, race := range resp.MRData.RaceTable.Races {
		for _, result := range race.Results {
			if result.Position == "1" {
				return result.Driver.DriverID, nil
			}
		}
	}
	return "", nil
}

// teamsBySeasonResults derives a driver to constructor mapping from the
// season's most recent published results. Best effort: an empty map just
// leaves the team field blank.
func (c *Client) teamsBySeasonResults(ctx context.Context, season string) map[string]string {
	var resp resultsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/last/results.json", c.baseURL, season), &resp); err != nil {
		c.logger.Debug("team mapping unavailable", zap.Error(err))
		return nil
	}
	teams := make(map[string]string)
	for _, race := range resp.MRData.RaceTable.Races {
		for _, result := range race.Results {
			teams[result.Driver.DriverID] = result.Constructor.Name
		}
	}
	return teams
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func ladderOdds(position int) float64 {
	if position < len(initialOddsLadder) {
		return initialOddsLadder[position]
	}
	return initialOddsLadder[len(initialOddsLadder)-1]
}

func parseStart(date, clock string) (time.Time, error) {
	if clock == "" {
		return time.Parse("2006-01-02", date)
	}
	return time.Parse(time.RFC3339, date+"T"+clock)
}
