package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestPollColdStartInvokesProducerOnce(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "weather", time.Minute)
	producer := &countingProducer[int]{values: []int{72}}

	value, err := store.Poll(context.Background(), producer.produce)
	if err != nil {
		t.Fatalf("poll error: %v", err)
	}
	if value != 72 {
		t.Fatalf("expected 72, got %d", value)
	}

	entries := mustEntries(t, store.Dir())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	wantName := strconv.FormatInt(env.clock.Now().UnixMilli(), 10)
	if entries[0].Name != wantName {
		t.Fatalf("expected entry named %s, got %s", wantName, entries[0].Name)
	}
	body, err := afero.ReadFile(env.fs, entries[0].Path)
	if err != nil {
		t.Fatalf("read entry error: %v", err)
	}
	if string(body) != "72" {
		t.Fatalf("expected entry content 72, got %q", string(body))
	}

	value, err = store.Poll(context.Background(), producer.produce)
	if err != nil {
		t.Fatalf("second poll error: %v", err)
	}
	if value != 72 {
		t.Fatalf("expected cached 72, got %d", value)
	}
	if producer.count() != 1 {
		t.Fatalf("producer should run once, ran %d times", producer.count())
	}
}

func TestPollWeatherExample(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "weather", 60*time.Second)
	producer := &countingProducer[int]{values: []int{72, 75}}
	ctx := context.Background()

	if v, err := store.Poll(ctx, producer.produce); err != nil || v != 72 {
		t.Fatalf("expected 72, got %d (err=%v)", v, err)
	}

	env.clock.Advance(10 * time.Second)
	if v, err := store.Poll(ctx, producer.produce); err != nil || v != 72 {
		t.Fatalf("expected cached 72 after 10s, got %d (err=%v)", v, err)
	}
	if producer.count() != 1 {
		t.Fatalf("producer should not run within maxAge, ran %d times", producer.count())
	}

	env.clock.Advance(51 * time.Second)
	if v, err := store.Poll(ctx, producer.produce); err != nil || v != 75 {
		t.Fatalf("expected fresh 75 after 61s, got %d (err=%v)", v, err)
	}
	if producer.count() != 2 {
		t.Fatalf("producer should run again after maxAge, ran %d times", producer.count())
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 1 {
		t.Fatalf("expected single entry after refresh, got %d", len(entries))
	}
}

func TestReadStalenessBoundary(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[string](t, env, "boundary", time.Minute)
	ctx := context.Background()

	if _, err := store.Write(ctx, "v1"); err != nil {
		t.Fatalf("write error: %v", err)
	}

	env.clock.Advance(time.Minute - time.Millisecond)
	if _, found, err := store.Read(ctx); err != nil || !found {
		t.Fatalf("entry younger than maxAge should be fresh (found=%v err=%v)", found, err)
	}

	env.clock.Advance(time.Millisecond)
	if _, found, err := store.Read(ctx); err != nil || found {
		t.Fatalf("entry aged exactly maxAge should be stale (found=%v err=%v)", found, err)
	}
}

func TestReadOnlyConsidersNewestEntry(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "newest", time.Minute)
	now := env.clock.Now()

	writeRawEntry(t, env, store.Dir(), now.Add(-2*time.Minute), "1")
	writeRawEntry(t, env, store.Dir(), now.Add(-10*time.Second), "2")

	value, found, err := store.Read(context.Background())
	if err != nil || !found {
		t.Fatalf("expected fresh entry (found=%v err=%v)", found, err)
	}
	if value != 2 {
		t.Fatalf("expected newest value 2, got %d", value)
	}
}

func TestPollNullValueRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[*int](t, env, "nullable", time.Minute)
	producer := &countingProducer[*int]{values: []*int{nil}}
	ctx := context.Background()

	value, err := store.Poll(ctx, producer.produce)
	if err != nil {
		t.Fatalf("poll error: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil value, got %v", *value)
	}

	cached, found, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !found {
		t.Fatalf("cached nil should be reported as found")
	}
	if cached != nil {
		t.Fatalf("expected cached nil, got %v", *cached)
	}

	if _, err := store.Poll(ctx, producer.produce); err != nil {
		t.Fatalf("second poll error: %v", err)
	}
	if producer.count() != 1 {
		t.Fatalf("cached nil should not trigger producer, ran %d times", producer.count())
	}
}

func TestPollCorruptionWipesStore(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "corrupt", time.Minute)
	writeRawEntry(t, env, store.Dir(), env.clock.Now().Add(-time.Second), "{not json")
	writeRawEntry(t, env, store.Dir(), env.clock.Now().Add(-2*time.Second), "5")
	producer := &countingProducer[int]{values: []int{1}}

	_, err := store.Poll(context.Background(), producer.produce)
	if err == nil {
		t.Fatalf("expected poll to fail on corrupted entry")
	}
	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		t.Fatalf("expected *PollError, got %T", err)
	}
	if pollErr.Store != "corrupt" {
		t.Fatalf("unexpected store in error: %s", pollErr.Store)
	}
	if producer.count() != 0 {
		t.Fatalf("producer should not run when read fails")
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 0 {
		t.Fatalf("expected store to be wiped, %d entries left", len(entries))
	}
}

func TestPollProducerErrorWipesStore(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "producer-error", time.Minute)
	writeRawEntry(t, env, store.Dir(), env.clock.Now().Add(-2*time.Minute), "1")
	boom := errors.New("upstream down")
	producer := &countingProducer[int]{err: boom}

	_, err := store.Poll(context.Background(), producer.produce)
	if !errors.Is(err, boom) {
		t.Fatalf("expected producer error to be wrapped, got %v", err)
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 0 {
		t.Fatalf("expected store to be wiped, %d entries left", len(entries))
	}
}

func TestPollKeepOnProducerError(t *testing.T) {
	env := newTestEnv(t)
	opts := env.options(time.Minute)
	opts.KeepOnProducerError = true
	store, err := New[int]("keep", opts)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	writeRawEntry(t, env, store.Dir(), env.clock.Now().Add(-2*time.Minute), "1")
	boom := errors.New("upstream down")
	producer := &countingProducer[int]{err: boom}

	if _, err := store.Poll(context.Background(), producer.produce); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 1 {
		t.Fatalf("expected existing entry to be kept, got %d", len(entries))
	}
}

func TestPollCanceledContext(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "canceled", time.Minute)
	if _, err := store.Poll(context.Background(), func(context.Context) (int, error) { return 72, nil }); err != nil {
		t.Fatalf("seed poll error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	producer := &countingProducer[int]{values: []int{1}}
	_, err := store.Poll(ctx, producer.produce)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		t.Fatalf("expected *PollError, got %T", err)
	}
	if producer.count() != 0 {
		t.Fatalf("producer should not run on a canceled context")
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 1 {
		t.Fatalf("a canceled caller must not wipe the fresh entry, %d left", len(entries))
	}

	value, err := store.Poll(context.Background(), producer.produce)
	if err != nil || value != 72 {
		t.Fatalf("expected cached 72 after cancellation, got %d (%v)", value, err)
	}
}

func TestPollProducerCanceledKeepsCaches(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "producer-canceled", time.Minute)
	writeRawEntry(t, env, store.Dir(), env.clock.Now().Add(-2*time.Minute), "1")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := store.Poll(ctx, func(ctx context.Context) (int, error) {
		cancel()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 1 {
		t.Fatalf("cancellation should leave existing entries, %d left", len(entries))
	}
}

func TestWriteReturnsExistingFreshValue(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[string](t, env, "double-check", time.Minute)
	ctx := context.Background()

	if _, err := store.Write(ctx, "first"); err != nil {
		t.Fatalf("write error: %v", err)
	}
	env.clock.Advance(time.Second)
	got, err := store.Write(ctx, "second")
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	if got != "first" {
		t.Fatalf("expected fresh value to win, got %s", got)
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestWriteLeavesSingleEntry(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore[int](t, env, "single", time.Minute)
	now := env.clock.Now()
	writeRawEntry(t, env, store.Dir(), now.Add(-3*time.Minute), "1")
	writeRawEntry(t, env, store.Dir(), now.Add(-2*time.Minute), "2")

	if _, err := store.Write(context.Background(), 3); err != nil {
		t.Fatalf("write error: %v", err)
	}

	entries := mustEntries(t, store.Dir())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Timestamp.Equal(time.UnixMilli(now.UnixMilli())) {
		t.Fatalf("expected new entry to survive, got %s", entries[0].Name)
	}
	locked, err := store.Dir().Locked(context.Background())
	if err != nil || locked {
		t.Fatalf("lock should be released after write (locked=%v err=%v)", locked, err)
	}
	if writers.size() != 0 {
		t.Fatalf("in-process writer lock should be released")
	}
}

func TestPollMsgpackCodec(t *testing.T) {
	type forecast struct {
		City  string
		TempF int
	}

	env := newTestEnv(t)
	opts := env.options(time.Minute)
	opts.Codec = MsgpackCodec{}
	store, err := New[forecast]("forecast", opts)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	producer := &countingProducer[forecast]{values: []forecast{{City: "Oslo", TempF: 41}}}

	if _, err := store.Poll(context.Background(), producer.produce); err != nil {
		t.Fatalf("poll error: %v", err)
	}
	got, err := store.Poll(context.Background(), producer.produce)
	if err != nil {
		t.Fatalf("second poll error: %v", err)
	}
	if got.City != "Oslo" || got.TempF != 41 {
		t.Fatalf("unexpected decoded value: %+v", got)
	}
	if producer.count() != 1 {
		t.Fatalf("producer should run once, ran %d times", producer.count())
	}
}

func TestConcurrentPollsSettleOnOneEntry(t *testing.T) {
	fsys := afero.NewMemMapFs()
	opts := Options{
		Root:         testRoot,
		MaxAge:       time.Hour,
		Silent:       true,
		Storage:      NewStorage(fsys),
		MaxPollDelay: 2 * time.Millisecond,
	}

	const callers = 8
	results := make([]int, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := New[int]("shared", opts)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = store.Poll(context.Background(), func(context.Context) (int, error) {
				return i + 100, nil
			})
		}(i)
	}
	wg.Wait()

	store, err := New[int]("shared", opts)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	persisted, found, err := store.Read(context.Background())
	if err != nil || !found {
		t.Fatalf("expected persisted value (found=%v err=%v)", found, err)
	}

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i] != persisted {
			t.Fatalf("caller %d got %d, persisted value is %d", i, results[i], persisted)
		}
	}
	if entries := mustEntries(t, store.Dir()); len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) ObservePoll(_ string, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func TestPollReportsOutcomes(t *testing.T) {
	env := newTestEnv(t)
	observer := &recordingObserver{}
	opts := env.options(time.Minute)
	opts.Observer = observer
	store, err := New[int]("observed", opts)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	ctx := context.Background()

	_, _ = store.Poll(ctx, func(context.Context) (int, error) { return 1, nil })
	_, _ = store.Poll(ctx, func(context.Context) (int, error) { return 2, nil })
	env.clock.Advance(time.Hour)
	_, _ = store.Poll(ctx, func(context.Context) (int, error) { return 0, errors.New("boom") })

	want := []Outcome{OutcomeMiss, OutcomeHit, OutcomeError}
	if len(observer.outcomes) != len(want) {
		t.Fatalf("expected %d outcomes, got %v", len(want), observer.outcomes)
	}
	for i := range want {
		if observer.outcomes[i] != want[i] {
			t.Fatalf("outcome %d: expected %s, got %s", i, want[i], observer.outcomes[i])
		}
	}
}
