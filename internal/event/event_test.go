package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/supaquiz/server/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive the events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("score.reconciled"),
						eventWithName("room.closed"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"score.reconciled"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("score.reconciled")}, out.received["s1"])
			},
		},

		"every publish should reach the subscriber once": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("score.reconciled"),
						eventWithName("score.reconciled"),
						eventWithName("score.reconciled"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"score.reconciled"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 3)
			},
		},

		"an event should fan out to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("room.closed"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"room.closed"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"room.closed"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("room.closed")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("room.closed")}, out.received["s2"])
			},
		},

		"mixed events and subscriptions should dispatch correctly": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("score.reconciled"),
						eventWithName("leaderboard.updated"),
						eventWithName("score.reconciled"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"score.reconciled"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"score.reconciled", "leaderboard.updated"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 2)
				assert.Len(t, out.received["s2"], 3)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				s := s
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_PanickingHandlerDoesNotStopDispatch(t *testing.T) {
	b := event.NewBus()

	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		panic("boom")
	})

	var mu sync.Mutex
	var got int
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		got++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), eventWithName("e1"))
	}
	b.Stop()

	assert.Equal(t, 5, got, "healthy subscriber should receive every event")
}

func TestBus_SlowHandlerDoesNotBlockOthers(t *testing.T) {
	b := event.NewBus()

	release := make(chan struct{})
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		<-release
		return nil
	})

	done := make(chan struct{})
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		close(done)
		return nil
	})

	b.Publish(context.Background(), eventWithName("e1"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by the slow one")
	}

	close(release)
	b.Stop()
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
