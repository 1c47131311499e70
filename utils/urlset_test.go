package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLSetNoDuplicates(t *testing.T) {
	s := NewURLSet()

	assert.True(t, s.Add("https://example.com/1"), "first Add should return true")
	assert.False(t, s.Add("https://example.com/1"), "second Add of same URL should return false")
	assert.Equal(t, 1, s.Size())
}

func TestURLSetConcurrency(t *testing.T) {
	s := NewURLSet()
	var added int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("https://example.com/same") {
				atomic.AddInt64(&added, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), added)
}

func TestURLSetSorted(t *testing.T) {
	s := NewURLSet()
	s.Add("http://h/csv/b/bPlans.csv")
	s.Add("http://h/csv/a/aPlans.csv")
	s.Add("http://h/csv/b/bPlans.csv")

	assert.Equal(t, []string{"http://h/csv/a/aPlans.csv", "http://h/csv/b/bPlans.csv"}, s.Sorted())
}
