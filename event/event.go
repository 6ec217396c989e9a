// Package event implements a one-to-many publish/subscribe feed, mirroring
// the shape of go-ethereum's event package: Feed fans a value out to every
// subscribed channel, and SubscriptionScope lets a component unsubscribe
// every feed it ever joined with a single call on shutdown.
package event

import (
	"errors"
	"reflect"
	"sync"
)

// Subscription represents a stream of events. The carrier of the event
// decides the event type, which must be a concrete type. Subscription is
// an interface because a Feed and a resubscribing loop both implement it.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Feed implements one-to-many subscriptions where the carrier of events is
// a channel. Values sent to a Feed are delivered to all subscribed
// channels, possibly with some delay. The zero value is ready to use.
type Feed struct {
	sendLock  chan struct{} // sendLock has a one-element buffer and is empty when held
	removeSub chan any      // interrupts Send
	sendCases caseList      // the active set of select cases used by Send

	mu     sync.Mutex
	typ    reflect.Type
	inbox  caseList
	etype  reflect.Type
	closed bool
}

type feedSub struct {
	feed    *Feed
	channel reflect.Value
	errc    chan error
}

func (f *Feed) init(etype reflect.Type) {
	f.etype = etype
	f.sendLock = make(chan struct{}, 1)
	f.sendLock <- struct{}{}
	f.removeSub = make(chan any)
	f.sendCases = caseList{{Chan: reflect.ValueOf(f.removeSub), Dir: reflect.SelectRecv}}
}

// Subscribe adds a channel to the feed. Future sends on the feed will be
// delivered on the channel until the subscription is canceled. All
// channels added must have the same element type.
func (f *Feed) Subscribe(channel any) Subscription {
	chanval := reflect.ValueOf(channel)
	chantyp := chanval.Type()
	if chantyp.Kind() != reflect.Chan || chantyp.ChanDir()&reflect.SendDir == 0 {
		panic(errors.New("event: Subscribe argument does not have sendable channel type"))
	}
	sub := &feedSub{feed: f, channel: chanval, errc: make(chan error, 1)}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendLock == nil {
		f.init(chantyp.Elem())
	} else if f.etype != chantyp.Elem() {
		panic(errors.New("event: Subscribe channel of wrong type"))
	}

	cas := reflect.SelectCase{Dir: reflect.SelectSend, Chan: chanval}
	f.inbox = append(f.inbox, cas)
	return sub
}

func (sub *feedSub) Unsubscribe() {
	f := sub.feed
	ch := sub.channel.Interface()
	f.mu.Lock()
	if i := f.inbox.find(ch); i != -1 {
		f.inbox = f.inbox.delete(i)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	select {
	case f.removeSub <- sub:
		// The Send in progress removes the channel.
	case <-f.sendLock:
		if i := f.sendCases.find(ch); i != -1 {
			f.sendCases = f.sendCases.delete(i)
		}
		f.sendLock <- struct{}{}
	}
}

func (sub *feedSub) Err() <-chan error {
	return sub.errc
}

// Send delivers to all subscribed channels simultaneously. It returns the
// number of subscribers that the value was sent to.
func (f *Feed) Send(value any) (nsent int) {
	rvalue := reflect.ValueOf(value)

	f.mu.Lock()
	if f.sendLock == nil {
		f.init(rvalue.Type())
	}
	f.mu.Unlock()

	f.sendLock_take()
	defer f.sendLock_release()

	f.mu.Lock()
	if f.etype != nil && f.etype != rvalue.Type() {
		f.mu.Unlock()
		panic(errors.New("event: Send different type than Subscribe"))
	}

	f.sendCases = append(f.sendCases, f.inbox...)
	f.inbox = nil
	f.mu.Unlock()

	for i := 1; i < len(f.sendCases); i++ {
		f.sendCases[i].Send = rvalue
	}

	cases := f.sendCases
	for {
		for i := 1; i < len(cases); i++ {
			if cases[i].Chan.TrySend(rvalue) {
				nsent++
				cases = cases.deactivate(i)
				i--
			}
		}
		if len(cases) == 1 {
			break
		}
		chosen, recv, _ := reflect.Select(cases)
		if chosen == 0 {
			index := f.remove(recv)
			if index >= 0 && index < len(cases) {
				// The removed case was still active; shrink cases with it.
				cases = f.sendCases[:len(cases)-1]
			}
		} else {
			cases = cases.deactivate(chosen)
			nsent++
		}
	}

	for i := 1; i < len(f.sendCases); i++ {
		f.sendCases[i].Send = reflect.Value{}
	}
	return nsent
}

func (f *Feed) sendLock_take() { <-f.sendLock }
func (f *Feed) sendLock_release() {
	f.sendLock <- struct{}{}
}

func (f *Feed) remove(recv reflect.Value) int {
	sub := recv.Interface().(*feedSub)
	sub.errc <- nil
	f.mu.Lock()
	defer f.mu.Unlock()
	index := f.sendCases.find(sub.channel.Interface())
	if index >= 0 {
		f.sendCases = f.sendCases.delete(index)
	}
	return index
}

type caseList []reflect.SelectCase

func (cs caseList) find(channel any) int {
	for i, cas := range cs {
		if cas.Chan.Interface() == channel {
			return i
		}
	}
	return -1
}

func (cs caseList) delete(index int) caseList {
	return append(cs[:index], cs[index+1:]...)
}

func (cs caseList) deactivate(index int) caseList {
	last := len(cs) - 1
	cs[index], cs[last] = cs[last], cs[index]
	return cs[:last]
}

// SubscriptionScope provides a facility to unsubscribe multiple
// subscriptions at once, e.g. on shutdown of a component that fanned out
// into several feeds.
type SubscriptionScope struct {
	mu     sync.Mutex
	subs   map[*scopeSub]struct{}
	closed bool
}

type scopeSub struct {
	sc *SubscriptionScope
	s  Subscription
}

// Track starts tracking a subscription. The returned subscription wraps
// the original one, removing it from the tracked set when unsubscribed.
func (sc *SubscriptionScope) Track(s Subscription) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		s.Unsubscribe()
		return nil
	}
	if sc.subs == nil {
		sc.subs = make(map[*scopeSub]struct{})
	}
	ss := &scopeSub{sc, s}
	sc.subs[ss] = struct{}{}
	return ss
}

func (s *scopeSub) Unsubscribe() {
	s.s.Unsubscribe()
	s.sc.mu.Lock()
	defer s.sc.mu.Unlock()
	delete(s.sc.subs, s)
}

func (s *scopeSub) Err() <-chan error {
	return s.s.Err()
}

// Close calls Unsubscribe on all tracked subscriptions and prevents
// further additions to the tracked set.
func (sc *SubscriptionScope) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	for s := range sc.subs {
		s.s.Unsubscribe()
	}
	sc.subs = nil
}

// Count returns the number of tracked subscriptions.
func (sc *SubscriptionScope) Count() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.subs)
}
