package event

import (
	"reflect"
	"testing"
)

func TestFeedSendDeliversToAllSubscribers(t *testing.T) {
	var feed Feed
	c1 := make(chan int)
	c2 := make(chan int)
	feed.Subscribe(c1)
	feed.Subscribe(c2)

	done := make(chan int)
	go func() { done <- feed.Send(42) }()

	recv := 0
	for recv < 2 {
		select {
		case v := <-c1:
			if v != 42 {
				t.Fatalf("c1 received %d, want 42", v)
			}
			recv++
		case v := <-c2:
			if v != 42 {
				t.Fatalf("c2 received %d, want 42", v)
			}
			recv++
		}
	}
	if n := <-done; n != 2 {
		t.Fatalf("Send() = %d, want 2", n)
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	var feed Feed
	c1 := make(chan int, 1)
	c2 := make(chan int, 1)
	sub1 := feed.Subscribe(c1)
	feed.Subscribe(c2)

	sub1.Unsubscribe()
	feed.Send(1)

	select {
	case v := <-c1:
		t.Fatalf("unsubscribed channel received %d", v)
	default:
	}
	if v := <-c2; v != 1 {
		t.Fatalf("c2 received %d, want 1", v)
	}
}

func TestFeedSubscribeWrongTypePanics(t *testing.T) {
	var feed Feed
	feed.Subscribe(make(chan int))

	defer func() {
		if recover() == nil {
			t.Fatal("Subscribe with a mismatched channel type did not panic")
		}
	}()
	feed.Subscribe(make(chan string))
}

func TestFeedSendWrongTypePanics(t *testing.T) {
	var feed Feed
	feed.Subscribe(make(chan int))

	defer func() {
		if recover() == nil {
			t.Fatal("Send with a mismatched value type did not panic")
		}
	}()
	feed.Send("not an int")
}

func TestSubscriptionScopeTracksAndClosesAll(t *testing.T) {
	var feed Feed
	var scope SubscriptionScope

	c1 := make(chan int, 1)
	c2 := make(chan int, 1)
	scope.Track(feed.Subscribe(c1))
	scope.Track(feed.Subscribe(c2))

	if got := scope.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	scope.Close()
	if got := scope.Count(); got != 0 {
		t.Fatalf("Count() after Close() = %d, want 0", got)
	}

	feed.Send(7)
	select {
	case v := <-c1:
		t.Fatalf("channel received %d after its scope was closed", v)
	default:
	}
}

func TestSubscriptionScopeTrackAfterCloseUnsubscribesImmediately(t *testing.T) {
	var feed Feed
	var scope SubscriptionScope
	scope.Close()

	c := make(chan int, 1)
	if got := scope.Track(feed.Subscribe(c)); got != nil {
		t.Fatalf("Track() on a closed scope = %v, want nil", got)
	}
}

func TestCaseListDeactivate(t *testing.T) {
	cs := caseList{
		{Chan: reflect.ValueOf(make(chan int))},
		{Chan: reflect.ValueOf(make(chan int))},
		{Chan: reflect.ValueOf(make(chan int))},
	}
	want := cs[1].Chan.Interface()

	deactivated := cs.deactivate(1)
	if len(deactivated) != 2 {
		t.Fatalf("deactivate() left %d cases, want 2", len(deactivated))
	}
	if deactivated.find(want) != -1 {
		t.Fatalf("deactivated case is still findable")
	}
}
