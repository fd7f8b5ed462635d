package pubsub

import "testing"

func TestPublishDeliversInOrder(t *testing.T) {
	topic := NewTopic[int]()
	var got []int
	topic.Subscribe(func(v int) { got = append(got, v) })
	topic.Subscribe(func(v int) { got = append(got, v*10) })

	topic.Publish(1)
	topic.Publish(2)

	want := []int{1, 10, 2, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery order: got %v, want %v", got, want)
			break
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	topic := NewTopic[string]()
	count := 0
	unsub := topic.Subscribe(func(string) { count++ })

	topic.Publish("a")
	unsub()
	topic.Publish("b")

	if count != 1 {
		t.Errorf("subscriber called %d times after unsubscribe, want 1", count)
	}
	if topic.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", topic.SubscriberCount())
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	topic := NewTopic[int]()
	unsub := topic.Subscribe(func(int) {})
	topic.Subscribe(func(int) {})

	unsub()
	unsub() // must not remove the remaining subscriber

	if topic.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", topic.SubscriberCount())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	topic := NewTopic[int]()
	count := 0
	topic.Subscribe(func(int) { count++ })

	topic.Close()
	topic.Close()
	topic.Publish(1)

	if count != 0 {
		t.Error("publish after close reached a subscriber")
	}
	if unsub := topic.Subscribe(func(int) {}); unsub == nil {
		t.Error("Subscribe after close returned nil unsubscribe")
	}
	if topic.SubscriberCount() != 0 {
		t.Error("Subscribe after close registered a subscriber")
	}
}
