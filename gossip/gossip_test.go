package gossip

import (
	"testing"
)

func TestPublishFansOut(t *testing.T) {
	g := New()
	ch1, cancel1 := g.Subscribe()
	defer cancel1()
	ch2, cancel2 := g.Subscribe()
	defer cancel2()

	g.Publish(Event{Type: WinnerDeclared, SeqNo: 7, Competitor: "horse-a"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != WinnerDeclared || ev.SeqNo != 7 || ev.Competitor != "horse-a" {
				t.Errorf("subscriber %d got %+v", i, ev)
			}
		default:
			t.Errorf("subscriber %d got nothing", i)
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	g := New()
	ch, cancel := g.Subscribe()
	cancel()

	// Publishing after cancel must not panic on the closed channel.
	g.Publish(Event{Type: RoundClosed, SeqNo: 1})

	if ev, ok := <-ch; ok {
		t.Errorf("cancelled subscriber received %+v", ev)
	}

	// Cancelling twice is harmless.
	cancel()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	g := New()
	ch, cancel := g.Subscribe()
	defer cancel()

	// Nobody drains ch, so Publish must never block; overflow is dropped.
	for i := 0; i < subscriberBuffer+5; i++ {
		g.Publish(Event{Type: StakeRecorded, SeqNo: int64(i)})
	}

	var got int
	for {
		select {
		case ev := <-ch:
			if ev.SeqNo != int64(got) {
				t.Fatalf("event %d has SeqNo %d; drops must come off the tail", got, ev.SeqNo)
			}
			got++
			continue
		default:
		}
		break
	}
	if got != subscriberBuffer {
		t.Errorf("received %d events, want %d", got, subscriberBuffer)
	}
}
