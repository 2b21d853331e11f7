package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satchelwiki/satchel/internal/model"
)

func rev(bag string, id int64) model.Revision {
	return model.Revision{ID: id, Bag: bag, Title: "T", Fields: model.Fields{"title": "T"}}
}

func TestBus_DeliversToMatchingBags(t *testing.T) {
	b := NewBus(nil)

	var got []int64
	unsub := b.Subscribe([]string{"b1", "b2"}, func(r model.Revision) {
		got = append(got, r.ID)
	})
	defer unsub()

	b.Publish(rev("b1", 1))
	b.Publish(rev("other", 2))
	b.Publish(rev("b2", 3))

	assert.Equal(t, []int64{1, 3}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(nil)

	calls := 0
	unsub := b.Subscribe([]string{"b1"}, func(model.Revision) { calls++ })

	b.Publish(rev("b1", 1))
	unsub()
	b.Publish(rev("b1", 2))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.SubscriberCount())

	// Double unsubscribe is harmless.
	unsub()
}

func TestBus_PanickingListenerIsolated(t *testing.T) {
	b := NewBus(nil)

	var delivered []int64
	b.Subscribe([]string{"b1"}, func(model.Revision) { panic("boom") })
	unsub := b.Subscribe([]string{"b1"}, func(r model.Revision) {
		delivered = append(delivered, r.ID)
	})
	defer unsub()

	require.NotPanics(t, func() { b.Publish(rev("b1", 7)) })
	assert.Equal(t, []int64{7}, delivered)
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus(nil)

	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := b.Subscribe([]string{"b1"}, func(model.Revision) {
				mu.Lock()
				total++
				mu.Unlock()
			})
			defer unsub()
			for j := 0; j < 50; j++ {
				b.Publish(rev("b1", int64(j)))
			}
		}()
	}
	wg.Wait()

	// Every publish reached at least the publishing goroutine's own
	// subscription; exact totals depend on interleaving.
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, total, 8*50)
	assert.Equal(t, 0, b.SubscriberCount())
}
