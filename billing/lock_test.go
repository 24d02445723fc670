package billing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordLocks_MutualExclusionPerID(t *testing.T) {
	var locks recordLocks

	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			release := locks.acquire("cp-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestRecordLocks_IndependentIDs(t *testing.T) {
	var locks recordLocks

	releaseA := locks.acquire("cp-a")
	defer releaseA()

	// A held lock on one record must not block another record.
	done := make(chan struct{})
	go func() {
		release := locks.acquire("cp-b")
		release()
		close(done)
	}()
	<-done
}

func TestRecordLocks_EntryFreedAfterRelease(t *testing.T) {
	var locks recordLocks

	release := locks.acquire("cp-1")
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks, "released entries must not accumulate")
}
