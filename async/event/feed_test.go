package event

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeedPanicsOnTypeMismatch(t *testing.T) {
	var f Feed
	f.Send(2)
	require.Panics(t, func() { f.Send("not an int") })
}

func TestFeedSubscribePanicsOnBadChannel(t *testing.T) {
	var f Feed
	require.Panics(t, func() { f.Subscribe(make(<-chan int)) })
	require.Panics(t, func() { f.Subscribe(0) })
}

func TestFeedSubscribePanicsOnTypeMismatch(t *testing.T) {
	var f Feed
	f.Send(2)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(feedTypeError)
		require.True(t, ok)
	}()
	f.Subscribe(make(chan uint64))
}

func TestFeedDeliversToAllSubscribers(t *testing.T) {
	var feed Feed
	const n = 50
	var done, subscribed sync.WaitGroup
	done.Add(n)
	subscribed.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			ch := make(chan int)
			sub := feed.Subscribe(ch)
			defer sub.Unsubscribe()
			subscribed.Done()
			select {
			case v := <-ch:
				require.Equal(t, 1, v)
			case <-time.After(2 * time.Second):
				t.Error("receive timeout")
			}
			done.Done()
		}()
	}
	subscribed.Wait()
	require.Equal(t, n, feed.Send(1))
	done.Wait()
	require.Equal(t, 0, feed.Send(2))
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	var feed Feed
	ch := make(chan int)
	sub := feed.Subscribe(ch)
	sub.Unsubscribe()

	require.Equal(t, 0, feed.Send(7))
	_, ok := <-sub.Err()
	require.False(t, ok, "error channel should be closed after unsubscribe")
}

func TestFeedSubscribeDifferentTypeFirst(t *testing.T) {
	var f Feed
	ch := make(chan uint64)
	f.Subscribe(ch)
	require.Equal(t, reflect.TypeOf(uint64(0)), f.etype)
}
