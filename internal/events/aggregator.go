package events

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"flarebets/internal/model"
)

// Source is the slice of the gateway the aggregator needs.
type Source interface {
	QueryEvents(ctx context.Context, eventType model.EventType, fromBlock, toBlock uint64) ([]model.ContractEvent, error)
	SubscribeEvents(ctx context.Context, handler func(model.ContractEvent)) (func(), error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// Sink receives each refreshed feed, e.g. for durable append.
type Sink interface {
	AppendEvents(ctx context.Context, events []model.ContractEvent) error
}

// Aggregator maintains the unified event feed: every category fetched over a
// bounded lookback window, deduplicated by (tx hash, log index), and sorted
// newest first. Categories are fetched in parallel and fail independently; a
// partial feed is preferred over no feed.
type Aggregator struct {
	source   Source
	sink     Sink
	lookback uint64
	logger   *zap.Logger

	mu   sync.Mutex
	feed []model.ContractEvent
	seen map[string]struct{}
}

// New builds an aggregator over a gateway with the given lookback window in
// blocks. sink may be nil.
func New(source Source, sink Sink, lookback uint64, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		source:   source,
		sink:     sink,
		lookback: lookback,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// Refresh rebuilds the feed from the chain. Only the lookback window behind
// the latest block is scanned; a category whose query fails is skipped and
// the remaining categories still land.
func (a *Aggregator) Refresh(ctx context.Context) error {
	latest, err := a.source.LatestBlock(ctx)
	if err != nil {
		return err
	}

	var fromBlock uint64
	if latest > a.lookback {
		fromBlock = latest - a.lookback
	}

	types := model.EventTypes()
	results := make([][]model.ContractEvent, len(types))

	var wg sync.WaitGroup
	for i, eventType := range types {
		wg.Add(1)
		go func(i int, eventType model.EventType) {
			defer wg.Done()
			events, err := a.source.QueryEvents(ctx, eventType, fromBlock, latest)
			if err != nil {
				a.logger.Warn("event query failed",
					zap.String("event_type", string(eventType)),
					zap.Uint64("from_block", fromBlock),
					zap.Uint64("to_block", latest),
					zap.Error(err))
				return
			}
			results[i] = events
		}(i, eventType)
	}
	wg.Wait()

	a.mu.Lock()
	var fresh []model.ContractEvent
	for _, events := range results {
		for _, event := range events {
			key := event.Key()
			if _, ok := a.seen[key]; ok {
				continue
			}
			a.seen[key] = struct{}{}
			a.feed = append(a.feed, event)
			fresh = append(fresh, event)
		}
	}
	sortFeed(a.feed)
	total := len(a.feed)
	a.mu.Unlock()

	a.logger.Debug("event feed refreshed",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", latest),
		zap.Int("new_events", len(fresh)),
		zap.Int("feed_size", total))

	if a.sink != nil && len(fresh) > 0 {
		if err := a.sink.AppendEvents(ctx, fresh); err != nil {
			a.logger.Warn("event sink append failed", zap.Error(err))
		}
	}
	return nil
}

// Subscribe starts live tracking. Each incoming event triggers a full
// refresh so batched neighbors in the same block are picked up together.
// The returned stop function is idempotent.
func (a *Aggregator) Subscribe(ctx context.Context) (func(), error) {
	unsubscribe, err := a.source.SubscribeEvents(ctx, func(event model.ContractEvent) {
		a.logger.Debug("live contract event",
			zap.String("event_type", string(event.Type)),
			zap.String("tx_hash", event.TxHash))
		if err := a.Refresh(ctx); err != nil {
			a.logger.Warn("refresh after live event failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	stop := func() {
		once.Do(unsubscribe)
	}
	return stop, nil
}

// Feed returns a copy of the current feed, newest first.
func (a *Aggregator) Feed() []model.ContractEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.ContractEvent, len(a.feed))
	copy(out, a.feed)
	return out
}

// FeedByType returns the feed filtered to one category, newest first.
func (a *Aggregator) FeedByType(eventType model.EventType) []model.ContractEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.ContractEvent
	for _, event := range a.feed {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// sortFeed orders newest first, with the feed identity as a stable
// tiebreaker for events sharing a timestamp.
func sortFeed(feed []model.ContractEvent) {
	sort.SliceStable(feed, func(i, j int) bool {
		if feed[i].Timestamp != feed[j].Timestamp {
			return feed[i].Timestamp > feed[j].Timestamp
		}
		if feed[i].BlockNumber != feed[j].BlockNumber {
			return feed[i].BlockNumber > feed[j].BlockNumber
		}
		if feed[i].TxHash != feed[j].TxHash {
			return feed[i].TxHash > feed[j].TxHash
		}
		return feed[i].LogIndex > feed[j].LogIndex
	})
}
