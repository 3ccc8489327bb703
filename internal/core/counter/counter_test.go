package counter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/fetch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSession struct{}

func (fakeSession) ID() string { return "test" }

// countFunc adapts a function to fetch.ResourceCounter.
type countFunc func(ctx context.Context, s fetch.Session, url string) (int, error)

func (f countFunc) CountResources(ctx context.Context, s fetch.Session, url string) (int, error) {
	return f(ctx, s, url)
}

func refs(n int) []entity.CourseRef {
	out := make([]entity.CourseRef, n)
	for i := range out {
		out[i] = entity.CourseRef{Title: fmt.Sprintf("course %d", i+1), URL: fmt.Sprintf("https://lms/course/%d", i+1)}
	}
	return out
}

func TestPartition(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, partition(7, 3))
	assert.Equal(t, [][2]int{{0, 2}}, partition(2, 6))
	assert.Empty(t, partition(0, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, partition(2, 0))
}

func TestCount_BatchesAndFailureIsolation(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
		started  []string
	)
	rc := countFunc(func(ctx context.Context, _ fetch.Session, url string) (int, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		started = append(started, url)
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()

		time.Sleep(5 * time.Millisecond)
		if url == "https://lms/course/4" {
			return 0, fetch.NewError(fetch.KindNetwork, fetch.OpCourseFetch, url, errors.New("connection reset"))
		}
		return 10, nil
	})

	in := refs(7)
	got := New(rc, quiet, WithConcurrency(3)).Count(context.Background(), fakeSession{}, in)

	require.Len(t, got, 7)
	for i, rec := range got {
		assert.Equal(t, in[i].Title, rec.Title)
		assert.Equal(t, in[i].URL, rec.URL)
		if i == 3 {
			assert.True(t, rec.Failed())
			assert.Equal(t, 0, rec.ResourceTotal)
			assert.Contains(t, rec.Error, "connection reset")
			continue
		}
		assert.False(t, rec.Failed(), "item %d", i+1)
		assert.Equal(t, 10, rec.ResourceTotal)
	}
	assert.LessOrEqual(t, peak, 3)
	assert.Len(t, started, 7)
}

func TestRunBatch_NeverExceedsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	rc := countFunc(func(ctx context.Context, _ fetch.Session, url string) (int, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return 1, nil
	})

	c := New(rc, quiet, WithConcurrency(2))
	in := refs(6)
	records := make([]entity.CourseRecord, len(in))
	c.runBatch(context.Background(), fakeSession{}, in, records, [2]int{0, len(in)})

	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, r := range records {
		assert.Equal(t, 1, r.ResourceTotal)
	}
}

func TestCount_BatchesRunSequentially(t *testing.T) {
	var active atomic.Int32
	var overlap atomic.Bool
	release := make(chan struct{})
	var once sync.Once

	rc := countFunc(func(ctx context.Context, _ fetch.Session, url string) (int, error) {
		if active.Add(1) > 2 {
			overlap.Store(true)
		}
		defer active.Add(-1)
		if url == "https://lms/course/1" {
			once.Do(func() { close(release) })
		}
		<-release
		return 1, nil
	})

	got := New(rc, quiet, WithConcurrency(2)).Count(context.Background(), fakeSession{}, refs(5))

	require.Len(t, got, 5)
	assert.False(t, overlap.Load())
}

func TestCount_OrderIndependentOfCompletion(t *testing.T) {
	rc := countFunc(func(ctx context.Context, _ fetch.Session, url string) (int, error) {
		var n int
		_, _ = fmt.Sscanf(url, "https://lms/course/%d", &n)
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n, nil
	})

	got := New(rc, quiet, WithConcurrency(6)).Count(context.Background(), fakeSession{}, refs(6))

	for i, rec := range got {
		assert.Equal(t, i+1, rec.ResourceTotal)
	}
}

func TestCount_BatchTimeoutIsRecordedPerItem(t *testing.T) {
	rc := countFunc(func(ctx context.Context, _ fetch.Session, url string) (int, error) {
		if url == "https://lms/course/2" {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 3, nil
	})

	got := New(rc, quiet, WithConcurrency(2), WithBatchTimeout(20*time.Millisecond)).
		Count(context.Background(), fakeSession{}, refs(3))

	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].ResourceTotal)
	assert.True(t, got[1].Failed())
	assert.Contains(t, got[1].Error, "batch fetch timed out")
	assert.Equal(t, 3, got[2].ResourceTotal, "next batch gets a fresh deadline")
}

func TestCount_PanicAndNegativeTotalsBecomeErrors(t *testing.T) {
	rc := countFunc(func(ctx context.Context, _ fetch.Session, url string) (int, error) {
		switch url {
		case "https://lms/course/1":
			panic("boom")
		case "https://lms/course/2":
			return -1, nil
		}
		return 2, nil
	})

	got := New(rc, quiet).Count(context.Background(), fakeSession{}, refs(3))

	assert.True(t, got[0].Failed())
	assert.True(t, got[1].Failed())
	assert.Equal(t, 0, got[1].ResourceTotal)
	assert.Equal(t, 2, got[2].ResourceTotal)
}

func TestCount_Empty(t *testing.T) {
	got := New(countFunc(func(context.Context, fetch.Session, string) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	}), quiet).Count(context.Background(), fakeSession{}, nil)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}
