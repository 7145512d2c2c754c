package window

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mijorus/collector/engine/drop"
	"github.com/mijorus/collector/pkg/logger"
)

type resolution struct {
	item       *drop.Item
	transition drop.Transition
}

// ResolvePending runs CompleteLoad for every pending item, one task per item.
// Each task owns its item until the group finishes; transitions are then
// published from the calling goroutine in drop order.
func (w *Window) ResolvePending(ctx context.Context) ([]Event, error) {
	var pending []*drop.Item
	for _, it := range w.items {
		if it.Pending() {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	logger.FromContext(ctx).Debug("Resolving links", "count", len(pending))
	results := make(chan resolution, len(pending))
	group, groupCtx := errgroup.WithContext(ctx)
	if w.maxResolvers > 0 {
		group.SetLimit(w.maxResolvers)
	}
	for _, it := range pending {
		group.Go(func() error {
			tr, err := it.CompleteLoad(groupCtx)
			results <- resolution{item: it, transition: tr}
			return err
		})
	}
	err := group.Wait()
	close(results)
	byID := make(map[string]drop.Transition, len(pending))
	for r := range results {
		byID[r.item.ID()] = r.transition
	}
	var events []Event
	for _, it := range pending {
		tr, ok := byID[it.ID()]
		if !ok || !tr.Changed {
			continue
		}
		ev := Event{ItemID: it.ID(), From: tr.From, To: tr.To}
		events = append(events, ev)
		w.emit(ctx, ev)
	}
	return events, err
}
