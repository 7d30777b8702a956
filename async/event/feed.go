// Package event implements a type-checked one-to-many event feed used for
// cross-component notifications that must not create a direct dependency
// between publisher and subscriber.
package event

import (
	"errors"
	"reflect"
	"sync"
)

var errBadChannel = errors.New("event: Subscribe argument does not have sendable channel type")

// feedTypeError describes a Feed method call with the wrong channel/value type.
type feedTypeError struct {
	got, want reflect.Type
	op        string
}

func (e feedTypeError) Error() string {
	return "event: wrong type in " + e.op + " got " + e.got.String() + ", want " + e.want.String()
}

// Feed implements one-to-many subscriptions where the carried event is a
// single value of a static type, chosen by the first Send or Subscribe call.
// The zero value is ready to use.
type Feed struct {
	once  sync.Once
	mu    sync.Mutex
	etype reflect.Type
	subs  map[*feedSub]struct{}
}

type feedSub struct {
	feed    *Feed
	channel reflect.Value
	quit    chan struct{}
	err     chan error
}

func (f *Feed) init(etype reflect.Type) {
	f.etype = etype
	f.subs = make(map[*feedSub]struct{})
}

// Subscribe adds a channel to the feed. Future sends will be delivered on the
// channel until the subscription is cancelled. All channels added to the same
// feed must have the same element type. The channel must be sendable
// (chan<- T or chan T), not receive-only.
func (f *Feed) Subscribe(channel interface{}) Subscription {
	chanval := reflect.ValueOf(channel)
	chantyp := chanval.Type()
	if chantyp.Kind() != reflect.Chan || chantyp.ChanDir()&reflect.SendDir == 0 {
		panic(errBadChannel)
	}
	sub := &feedSub{channel: chanval, quit: make(chan struct{}), err: make(chan error, 1)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.once.Do(func() { f.init(chantyp.Elem()) })
	if chantyp.Elem() != f.etype {
		panic(feedTypeError{op: "Subscribe", got: chantyp, want: reflect.ChanOf(reflect.SendDir, f.etype)})
	}
	sub.feed = f
	f.subs[sub] = struct{}{}
	return sub
}

// Send delivers value to all currently-subscribed channels concurrently and
// blocks until each live subscriber has received it or unsubscribed. It
// returns the number of subscribers the value was delivered to.
func (f *Feed) Send(value interface{}) (nsent int) {
	rvalue := reflect.ValueOf(value)

	f.mu.Lock()
	f.once.Do(func() { f.init(rvalue.Type()) })
	if rvalue.Type() != f.etype {
		f.mu.Unlock()
		panic(feedTypeError{op: "Send", got: rvalue.Type(), want: f.etype})
	}
	subs := make([]*feedSub, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(len(subs))
	for _, sub := range subs {
		go func(sub *feedSub) {
			defer wg.Done()
			cases := []reflect.SelectCase{
				{Dir: reflect.SelectSend, Chan: sub.channel, Send: rvalue},
				{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub.quit)},
			}
			if chosen, _, _ := reflect.Select(cases); chosen == 0 {
				mu.Lock()
				nsent++
				mu.Unlock()
			}
		}(sub)
	}
	wg.Wait()
	return nsent
}

func (f *Feed) remove(sub *feedSub) {
	f.mu.Lock()
	_, ok := f.subs[sub]
	delete(f.subs, sub)
	f.mu.Unlock()
	if ok {
		close(sub.quit)
	}
}

// Subscription represents a feed subscription created via Feed.Subscribe.
type Subscription interface {
	// Unsubscribe cancels the subscription. No further events will be
	// delivered and Err's channel is closed.
	Unsubscribe()
	// Err returns a channel closed when the subscription ends.
	Err() <-chan error
}

func (s *feedSub) Unsubscribe() {
	s.feed.remove(s)
	close(s.err)
}

func (s *feedSub) Err() <-chan error {
	return s.err
}
