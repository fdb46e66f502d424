package engine

import (
	"context"
	"sync"

	"github.com/scalarorg/xtransfer/pkg/events"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// View is a live, read-only window on the transfer history. While a view is
// open the reconciler keeps polling the chains.
type View struct {
	Snapshot []*types.Transfer
	Events   <-chan *types.TransferChanged

	bus     *events.EventBus
	topic   string
	release func()
	once    sync.Once
}

// Watch subscribes before taking the snapshot so no change between the two is
// lost. An empty secretHash watches every transfer.
func (s *Service) Watch(ctx context.Context, secretHash string) (*View, error) {
	topic := secretHash
	if topic == "" {
		topic = events.TOPIC_ALL
	}
	receiver := s.EventBus.Subscribe(topic)
	var snapshot []*types.Transfer
	if secretHash == "" {
		transfers, err := s.Store.QueryTransfers(ctx, types.TransferFilter{})
		if err != nil {
			s.EventBus.Unsubscribe(topic, receiver)
			return nil, err
		}
		snapshot = transfers
	} else {
		transfer, err := s.Store.GetTransfer(ctx, secretHash)
		if err != nil {
			s.EventBus.Unsubscribe(topic, receiver)
			return nil, err
		}
		snapshot = []*types.Transfer{transfer}
	}
	return &View{
		Snapshot: snapshot,
		Events:   receiver,
		bus:      s.EventBus,
		topic:    topic,
		release:  s.Reconciler.Acquire(ctx),
	}, nil
}

// Close unsubscribes the view and closes its Events channel.
func (v *View) Close() {
	v.once.Do(func() {
		v.bus.Unsubscribe(v.topic, v.Events)
		v.release()
	})
}
