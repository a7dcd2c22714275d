package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBrokerFlow(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := broker.Subscribe(ctx)

	received := make(chan string, 1)
	go func() {
		for event := range events {
			if event.Type == IngestedEvent {
				received <- event.Payload
			}
		}
	}()

	const testMsg = "manual.pdf"
	broker.Publish(IngestedEvent, testMsg)

	select {
	case msg := <-received:
		if msg != testMsg {
			t.Errorf("expected %s, got %s", testMsg, msg)
		}
	case <-time.After(1 * time.Second):
		t.Error("timed out waiting for event")
	}
}

func TestAutoUnsubscribe(t *testing.T) {
	broker := NewBroker[int]()

	ctx, cancel := context.WithCancel(context.Background())

	_ = broker.Subscribe(ctx)
	if broker.GetSubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", broker.GetSubscriberCount())
	}

	cancel()

	// Give the cleanup goroutine a moment to run
	time.Sleep(10 * time.Millisecond)

	if broker.GetSubscriberCount() != 0 {
		t.Errorf("subscriber not cleaned up after context cancel, count: %d", broker.GetSubscriberCount())
	}
}

// A slow subscriber must never block Publish; its overflow events are
// dropped instead.
func TestNonBlockingPublish(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Shutdown()

	ctx := context.Background()
	_ = broker.Subscribe(ctx)

	// More events than the subscriber buffer holds
	for i := 0; i < 100; i++ {
		broker.Publish(IngestStartedEvent, i)
	}
}

func TestBrokerShutdown(t *testing.T) {
	broker := NewBroker[string]()
	ctx := context.Background()

	events := broker.Subscribe(ctx)

	broker.Shutdown()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("subscriber channel still open after shutdown")
		}
	case <-time.After(1 * time.Second):
		t.Error("timed out waiting for channel close after shutdown")
	}
}

// Publishing while subscribers churn must never hit a closed channel.
func TestPublishDuringUnsubscribe(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Shutdown()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ctx, cancel := context.WithCancel(context.Background())
			_ = broker.Subscribe(ctx)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			broker.Publish(IngestedEvent, i)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for publish/unsubscribe churn to finish")
	}
}

func TestSubscribeAfterShutdown(t *testing.T) {
	broker := NewBroker[string]()
	broker.Shutdown()

	events := broker.Subscribe(context.Background())
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected a closed channel from a shut-down broker")
		}
	case <-time.After(1 * time.Second):
		t.Error("timed out reading from post-shutdown subscription")
	}
}
