package buffer

import (
	"sync"
	"testing"
	"time"

	"pulsehub/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func TestRevisionBuffer_Lifecycle(t *testing.T) {
	buf := NewRevisionBuffer[string](3)

	// 1. Empty buffer
	entries, ok := buf.GetSince(0)
	if !ok || len(entries) != 0 {
		t.Error("Empty buffer should return no entries and ok=true")
	}
	if _, ok := buf.Latest(); ok {
		t.Error("Empty buffer should have no latest entry")
	}

	// 2. Fill [1, 2, 3]
	buf.Add(1, "a")
	buf.Add(2, "b")
	buf.Add(3, "c")

	// 3. From 0 nothing is missing, seq 1 directly follows 0
	entries, ok = buf.GetSince(0)
	if !ok || len(entries) != 3 {
		t.Errorf("GetSince(0) should be complete with 3 entries, got ok=%v len=%d", ok, len(entries))
	}

	// 4. Wrap around: logical [2, 3, 4]
	buf.Add(4, "d")

	// 5. Seq 1 is gone, reader at 0 missed it
	entries, ok = buf.GetSince(0)
	if ok {
		t.Error("GetSince(0) should be incomplete after seq 1 was overwritten")
	}
	if len(entries) != 3 || entries[0].Seq != 2 {
		t.Errorf("Expected to resume at oldest seq 2, got %+v", entries)
	}

	// 6. Reader at 1 lost nothing
	entries, ok = buf.GetSince(1)
	if !ok || len(entries) != 3 {
		t.Errorf("GetSince(1) should be complete, got ok=%v len=%d", ok, len(entries))
	}

	// 7. Partial get (> 2 -> [3, 4])
	entries, ok = buf.GetSince(2)
	if !ok {
		t.Error("GetSince(2) should be valid")
	}
	if len(entries) != 2 || entries[0].Value != "c" || entries[1].Value != "d" {
		t.Errorf("Expected [c, d], got %+v", entries)
	}

	// 8. Up to date
	entries, ok = buf.GetSince(4)
	if !ok || len(entries) != 0 {
		t.Errorf("Expected 0 entries, got %d", len(entries))
	}

	latest, ok := buf.Latest()
	if !ok || latest.Seq != 4 {
		t.Errorf("Expected latest seq 4, got %+v", latest)
	}
	if buf.Len() != 3 {
		t.Errorf("Expected len 3, got %d", buf.Len())
	}
}

func TestRevisionBuffer_Concurrency(t *testing.T) {
	buf := NewRevisionBuffer[int](1000)
	done := make(chan struct{})
	count := 5000

	// Writer
	go func() {
		for i := 1; i <= count; i++ {
			buf.Add(uint64(i), i)
			time.Sleep(2 * time.Microsecond)
		}
		close(done)
	}()

	// Readers
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastSeq uint64
			timeout := time.After(5 * time.Second)

			for {
				select {
				case <-done:
					return
				case <-timeout:
					t.Error("Test timed out")
					return
				default:
					entries, _ := buf.GetSince(lastSeq)
					for _, e := range entries {
						if e.Seq <= lastSeq {
							t.Errorf("sequence went backwards: %d after %d", e.Seq, lastSeq)
							return
						}
						lastSeq = e.Seq
					}
				}
			}
		}()
	}

	wg.Wait()
}
