package journal

import (
	"sync"
	"testing"
	"time"
)

func TestBuffer_SendTryReceive(t *testing.T) {
	buf := NewBuffer[int](10)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}

	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive on empty buffer returned true")
	}
}

func TestBuffer_GrowsAtThreshold(t *testing.T) {
	buf := NewBuffer[int](10)

	// 70% of 10
	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Cap <= 10 {
		t.Errorf("Cap = %d, expected growth at 70%% fill", stats.Cap)
	}
	if stats.Grows != 1 {
		t.Errorf("Grows = %d, want 1", stats.Grows)
	}

	for i := 0; i < 7; i++ {
		val, ok := buf.TryReceive()
		if !ok || val != i {
			t.Fatalf("TryReceive() = %d, %v; want %d, true", val, ok, i)
		}
	}
}

func TestBuffer_MultipleGrows(t *testing.T) {
	buf := NewBuffer[int](4)

	for i := 0; i < 100; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Len != 100 {
		t.Errorf("Len = %d, want 100", stats.Len)
	}
	if stats.Grows < 3 {
		t.Errorf("Grows = %d, want at least 3", stats.Grows)
	}

	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		if !ok || val != i {
			t.Fatalf("TryReceive() = %d, %v; want %d, true", val, ok, i)
		}
	}
}

func TestBuffer_WrapAround(t *testing.T) {
	buf := NewBuffer[int](10)

	// Advance head so the tail wraps past the end of the ring, then keep
	// sending until the next grow has to unwrap the contents.
	for i := 1; i <= 6; i++ {
		buf.Send(i)
	}
	for i := 0; i < 5; i++ {
		buf.TryReceive()
	}
	for i := 7; i <= 12; i++ {
		buf.Send(i)
	}

	if got := buf.Stats().Grows; got != 1 {
		t.Fatalf("Grows = %d, want 1", got)
	}

	want := []int{6, 7, 8, 9, 10, 11, 12}
	for _, w := range want {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive failed, expected %d", w)
		}
		if got != w {
			t.Errorf("got %d, want %d", got, w)
		}
	}
}

func TestBuffer_Close(t *testing.T) {
	buf := NewBuffer[int](10)

	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send returned true after Close")
	}

	// Buffered items stay drainable
	val, ok := buf.TryReceive()
	if !ok || val != 1 {
		t.Errorf("TryReceive() = %d, %v; want 1, true", val, ok)
	}
	val, ok = buf.TryReceive()
	if !ok || val != 2 {
		t.Errorf("TryReceive() = %d, %v; want 2, true", val, ok)
	}
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive returned true on empty closed buffer")
	}
}

func TestBuffer_DrainTo(t *testing.T) {
	buf := NewBuffer[int](10)

	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	items := buf.DrainTo(5)
	if len(items) != 5 {
		t.Errorf("DrainTo(5) returned %d items, want 5", len(items))
	}
	for i, val := range items {
		if val != i {
			t.Errorf("items[%d] = %d, want %d", i, val, i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	items = buf.DrainTo(0)
	if len(items) != 5 {
		t.Errorf("DrainTo(0) returned %d items, want 5", len(items))
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestBuffer_Stats(t *testing.T) {
	buf := NewBuffer[int](10)

	stats := buf.Stats()
	if stats.Len != 0 || stats.Cap != 10 || stats.Enqueued != 0 || stats.Dequeued != 0 {
		t.Errorf("initial stats incorrect: %+v", stats)
	}

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	stats = buf.Stats()
	if stats.Len != 3 || stats.Enqueued != 3 {
		t.Errorf("stats after sends: %+v", stats)
	}

	buf.TryReceive()
	buf.TryReceive()
	stats = buf.Stats()
	if stats.Len != 1 || stats.Dequeued != 2 {
		t.Errorf("stats after receives: %+v", stats)
	}
}

func TestNewBuffer_MinCapacity(t *testing.T) {
	if got := NewBuffer[int](0).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1 for initial capacity 0", got)
	}
	if got := NewBuffer[int](-5).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1 for negative initial capacity", got)
	}
}

func TestBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewBuffer[int](8)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
	}()

	received := make([]int, 0, numItems)
	deadline := time.Now().Add(5 * time.Second)
	for len(received) < numItems && time.Now().Before(deadline) {
		if val, ok := buf.TryReceive(); ok {
			received = append(received, val)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	// Single producer, single consumer: order is preserved.
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, want %d", i, val, i)
		}
	}
}
