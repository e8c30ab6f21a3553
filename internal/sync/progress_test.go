package sync

import "testing"

func TestNotifierDeliversInSubscriptionOrder(t *testing.T) {
	n := NewNotifier(nil)

	var order []int
	n.Subscribe(func(p Progress) { order = append(order, 1) })
	n.Subscribe(func(p Progress) { order = append(order, 2) })
	n.Subscribe(func(p Progress) { order = append(order, 3) })

	n.Publish(Progress{Total: 1})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected delivery order 1,2,3, got %v", order)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier(nil)

	var count int
	cancel := n.Subscribe(func(p Progress) { count++ })

	n.Publish(Progress{})
	cancel()
	n.Publish(Progress{})
	cancel() // second call is a no-op

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}

func TestNotifierIsolatesPanics(t *testing.T) {
	n := NewNotifier(nil)

	var after int
	n.Subscribe(func(p Progress) { panic("bad observer") })
	n.Subscribe(func(p Progress) { after++ })

	n.Publish(Progress{})

	if after != 1 {
		t.Errorf("observer after panicking one not delivered: %d", after)
	}
}
