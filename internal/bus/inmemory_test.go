package bus

import (
	"testing"
)

func TestInMemoryBusFansOutToEverySubscriber(t *testing.T) {
	b := NewInMemoryBus()
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var first, second Message
	b.Subscribe("topic.a", func(m Message) { first = m })
	b.Subscribe("topic.a", func(m Message) { second = m })

	msg := NewMessage("topic.a", map[string]interface{}{"key": "value"}, "corr-1")
	b.Publish(msg)

	if first.CorrelationID != "corr-1" || second.CorrelationID != "corr-1" {
		t.Fatalf("both subscribers should observe the published correlation id, got %q and %q", first.CorrelationID, second.CorrelationID)
	}
}

func TestInMemoryBusPreservesCorrelationID(t *testing.T) {
	b := NewInMemoryBus()
	b.Start()

	received := make(chan Message, 1)
	b.Subscribe(Topics.DownloadRequest, func(m Message) { received <- m })

	b.Publish(NewMessage(Topics.DownloadRequest, map[string]interface{}{"url": "http://example.com/ep.mp3"}, "abc-123"))

	msg := <-received
	if msg.CorrelationID != "abc-123" {
		t.Fatalf("correlation id not preserved: got %q", msg.CorrelationID)
	}
}

func TestInMemoryBusDoesNotDeliverBeforeStart(t *testing.T) {
	b := NewInMemoryBus()

	delivered := false
	b.Subscribe("topic.a", func(m Message) { delivered = true })
	b.Publish(NewMessage("topic.a", nil, ""))

	if delivered {
		t.Fatalf("publish before Start should not deliver")
	}
}

func TestInMemoryBusHandlerPanicDoesNotDisruptOtherSubscribers(t *testing.T) {
	b := NewInMemoryBus()
	b.Start()

	b.Subscribe("topic.a", func(m Message) { panic("boom") })

	delivered := false
	b.Subscribe("topic.a", func(m Message) { delivered = true })

	b.Publish(NewMessage("topic.a", nil, ""))

	if !delivered {
		t.Fatalf("a panicking handler must not prevent delivery to subsequent subscribers")
	}
}
