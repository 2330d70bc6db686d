package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"flarebets/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	latest   uint64
	events   map[model.EventType][]model.ContractEvent
	failing  map[model.EventType]bool
	lastFrom uint64
	handler  func(model.ContractEvent)
}

func newFakeSource(latest uint64) *fakeSource {
	return &fakeSource{
		latest:  latest,
		events:  make(map[model.EventType][]model.ContractEvent),
		failing: make(map[model.EventType]bool),
	}
}

func (f *fakeSource) QueryEvents(_ context.Context, eventType model.EventType, fromBlock, _ uint64) ([]model.ContractEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom = fromBlock
	if f.failing[eventType] {
		return nil, errors.New("filter query failed")
	}
	return f.events[eventType], nil
}

func (f *fakeSource) SubscribeEvents(_ context.Context, handler func(model.ContractEvent)) (func(), error) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}, nil
}

func (f *fakeSource) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeSource) emit(event model.ContractEvent) {
	f.mu.Lock()
	f.events[event.Type] = append(f.events[event.Type], event)
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func betPlaced(txHash string, block, logIndex, timestamp uint64) model.ContractEvent {
	return model.ContractEvent{
		Type:        model.EventBetPlaced,
		TxHash:      txHash,
		BlockNumber: block,
		LogIndex:    logIndex,
		Timestamp:   timestamp,
		Data:        model.BetPlacedData{BetID: txHash, RaceID: "2025-24", DriverID: "max_verstappen"},
	}
}

func TestRefreshDeduplicatesAndSorts(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(100)
	source.events[model.EventBetPlaced] = []model.ContractEvent{
		betPlaced("0xa", 90, 0, 1000),
		betPlaced("0xb", 95, 1, 2000),
		betPlaced("0xa", 90, 0, 1000),
	}
	source.events[model.EventRaceResultSet] = []model.ContractEvent{
		{Type: model.EventRaceResultSet, TxHash: "0xc", BlockNumber: 98, LogIndex: 0, Timestamp: 3000,
			Data: model.RaceResultSetData{RaceID: "2025-24", WinningDriverID: "max_verstappen"}},
	}

	agg := New(source, nil, 50, nil)
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	feed := agg.Feed()
	if len(feed) != 3 {
		t.Fatalf("expected 3 deduplicated events, got %d", len(feed))
	}
	for i := 1; i < len(feed); i++ {
		if feed[i-1].Timestamp < feed[i].Timestamp {
			t.Fatalf("feed not sorted newest first: %v before %v", feed[i-1].Timestamp, feed[i].Timestamp)
		}
	}
	if feed[0].TxHash != "0xc" {
		t.Fatalf("newest event should lead: %+v", feed[0])
	}
}

func TestRefreshBoundsLookback(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(100000)
	agg := New(source, nil, 50000, nil)
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if source.lastFrom != 50000 {
		t.Fatalf("lookback window mismatch: from=%d", source.lastFrom)
	}

	// A chain shorter than the window is scanned from genesis.
	source.latest = 100
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if source.lastFrom != 0 {
		t.Fatalf("short chain should scan from 0, got %d", source.lastFrom)
	}
}

func TestRefreshIsolatesCategoryFailure(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(100)
	source.events[model.EventBetPlaced] = []model.ContractEvent{betPlaced("0xa", 90, 0, 1000)}
	source.failing[model.EventPayoutClaimed] = true

	agg := New(source, nil, 50, nil)
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("refresh should survive one failing category: %v", err)
	}
	if len(agg.Feed()) != 1 {
		t.Fatalf("healthy categories should still land, got %d events", len(agg.Feed()))
	}
}

func TestSubscribeTriggersRefresh(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(100)
	agg := New(source, nil, 50, nil)

	stop, err := agg.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	source.emit(betPlaced("0xa", 99, 0, 1000))
	if len(agg.Feed()) != 1 {
		t.Fatalf("live event should trigger a refresh, feed has %d", len(agg.Feed()))
	}

	stop()
	stop()

	source.mu.Lock()
	subscribed := source.handler != nil
	source.mu.Unlock()
	if subscribed {
		t.Fatalf("stop should unsubscribe")
	}
}

func TestFeedByType(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(100)
	source.events[model.EventBetPlaced] = []model.ContractEvent{betPlaced("0xa", 90, 0, 1000)}
	source.events[model.EventPayoutClaimed] = []model.ContractEvent{
		{Type: model.EventPayoutClaimed, TxHash: "0xb", BlockNumber: 95, LogIndex: 0, Timestamp: 2000,
			Data: model.PayoutClaimedData{BetID: "0xa"}},
	}

	agg := New(source, nil, 50, nil)
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims := agg.FeedByType(model.EventPayoutClaimed)
	if len(claims) != 1 || claims[0].TxHash != "0xb" {
		t.Fatalf("filtered feed mismatch: %+v", claims)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.ContractEvent
}

func (r *recordingSink) AppendEvents(_ context.Context, events []model.ContractEvent) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

func TestSinkReceivesOnlyFreshEvents(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(100)
	source.events[model.EventBetPlaced] = []model.ContractEvent{betPlaced("0xa", 90, 0, 1000)}

	sink := &recordingSink{}
	agg := New(source, sink, 50, nil)
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := agg.Refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("sink should see each event once, got %d", len(sink.events))
	}
}
