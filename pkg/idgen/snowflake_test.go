package idgen

import (
	"sync"
	"testing"
)

func TestGenerateUniqueAndIncreasing(t *testing.T) {
	g, err := New(7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var last int64
	for i := 0; i < 10000; i++ {
		id := g.Generate()
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		if WorkerID(id) != 7 {
			t.Fatalf("expected worker 7, got %d", WorkerID(id))
		}
		last = id
	}
}

func TestGenerateConcurrent(t *testing.T) {
	g, _ := New(1)
	const workers, perWorker = 8, 500

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := g.Generate()
				lock.Lock()
				seen[id] = struct{}{}
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}

func TestNewRejectsWorkerOutOfRange(t *testing.T) {
	if _, err := New(-1); err == nil {
		t.Fatalf("expected error for negative worker id")
	}
	if _, err := New(maxWorkerID + 1); err == nil {
		t.Fatalf("expected error for worker id above range")
	}
}

func TestNextString(t *testing.T) {
	if a, b := NextString(), NextString(); a == "" || a == b {
		t.Fatalf("expected distinct non-empty keys, got %q %q", a, b)
	}
}
