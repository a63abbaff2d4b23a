package compute_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/lguimbarda/parflow/flow/compute"
	"github.com/lguimbarda/parflow/flow/core"
	"github.com/lguimbarda/parflow/flow/observe"
	"github.com/lguimbarda/parflow/internal/logging"
)

func square(v int) (int, error) { return v * v, nil }

// gather observes c concurrently and returns what was seen.
func gather[T any](t *testing.T, c *compute.Collection[T]) []T {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []T
	)
	err := c.ForEach(context.Background(), func(v T) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
		return nil
	})
	if err != nil {
		t.Fatalf("foreach: %v", err)
	}
	return seen
}

func TestForEach(t *testing.T) {
	for _, master := range []string{"local", "local[4]", "local[*]"} {
		t.Run(master, func(t *testing.T) {
			c := newContext(t, master)
			got := gather(t, compute.Map(compute.Parallelize(c, []int{35, 12, 90, 20}), square))

			want := []int{1225, 144, 8100, 400}
			if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b int) bool { return a < b })); diff != "" {
				t.Errorf("observed elements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestForEach_Empty(t *testing.T) {
	c := newContext(t, "local[2]")
	calls := 0
	err := compute.Map(compute.Parallelize(c, []int(nil)), square).ForEach(context.Background(), func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no observer calls, got %d", calls)
	}
}

func TestParallelize_CopiesInput(t *testing.T) {
	c := newContext(t, "local")
	data := []int{1, 2, 3}
	col := compute.Parallelize(c, data)
	data[0] = 100

	got, err := col.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("collection changed with its input (-want +got):\n%s", diff)
	}
}

func TestMap_IsLazy(t *testing.T) {
	c := newContext(t, "local[2]")
	var calls atomic.Int32
	col := compute.Map(compute.Parallelize(c, []int{1, 2, 3}), func(v int) (int, error) {
		calls.Add(1)
		return v, nil
	})

	if n := calls.Load(); n != 0 {
		t.Fatalf("expected no work before an action, got %d calls", n)
	}

	gather(t, col)
	if n := calls.Load(); n != 3 {
		t.Errorf("expected one call per element, got %d", n)
	}

	// Every action re-runs the chain.
	if n, err := col.Count(context.Background()); err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if n := calls.Load(); n != 6 {
		t.Errorf("expected 6 calls after second action, got %d", n)
	}
}

func TestMap_Chained(t *testing.T) {
	c := newContext(t, "local[3]")
	col := compute.Map(
		compute.Map(compute.Parallelize(c, []int{1, 2, 3, 4}), square),
		func(v int) (string, error) { return strconv.Itoa(v), nil },
	)

	got, err := col.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "4", "9", "16"}, got); diff != "" {
		t.Errorf("collect mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_KeepsInputOrder(t *testing.T) {
	c := newContext(t, "local[8]")
	input := make([]int, 200)
	for i := range input {
		input[i] = i
	}

	got, err := compute.Map(compute.Parallelize(c, input), func(v int) (int, error) {
		if v%7 == 0 {
			time.Sleep(time.Millisecond)
		}
		return v, nil
	}).Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff(input, got); diff != "" {
		t.Errorf("order not restored (-want +got):\n%s", diff)
	}
}

func TestMap_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		f         func(int) (int, error)
		wantIndex int
		check     func(error) bool
	}{
		{
			name: "error",
			f: func(v int) (int, error) {
				if v == 90 {
					return 0, boom
				}
				return v, nil
			},
			wantIndex: 2,
			check:     func(err error) bool { return errors.Is(err, boom) },
		},
		{
			name: "panic",
			f: func(v int) (int, error) {
				if v == 12 {
					panic("bad element")
				}
				return v, nil
			},
			wantIndex: 1,
			check: func(err error) bool {
				var p core.ErrPanic
				return errors.As(err, &p)
			},
		},
	}

	for _, tc := range tests {
		for _, master := range []string{"local", "local[4]"} {
			t.Run(tc.name+"/"+master, func(t *testing.T) {
				c := newContext(t, master)
				err := compute.Map(compute.Parallelize(c, []int{35, 12, 90, 20}), tc.f).
					ForEach(context.Background(), func(int) error { return nil })

				var elemErr *compute.ElementError
				if !errors.As(err, &elemErr) {
					t.Fatalf("expected *ElementError, got %T: %v", err, err)
				}
				if elemErr.Index != tc.wantIndex {
					t.Errorf("expected index %d, got %d", tc.wantIndex, elemErr.Index)
				}
				if !tc.check(err) {
					t.Errorf("unexpected cause: %v", err)
				}
			})
		}
	}
}

func TestForEach_ObserverFailures(t *testing.T) {
	boom := errors.New("observer failed")
	c := newContext(t, "local[2]")
	col := compute.Parallelize(c, []int{1, 2, 3})

	err := col.ForEach(context.Background(), func(v int) error {
		if v == 3 {
			return boom
		}
		return nil
	})
	var elemErr *compute.ElementError
	if !errors.As(err, &elemErr) || !errors.Is(err, boom) || elemErr.Index != 2 {
		t.Errorf("expected element error for index 2 wrapping %v, got %v", boom, err)
	}

	err = col.ForEach(context.Background(), func(v int) error {
		if v == 1 {
			panic("observer panic")
		}
		return nil
	})
	var p core.ErrPanic
	if !errors.As(err, &p) {
		t.Errorf("expected ErrPanic, got %v", err)
	}
}

func TestForEach_Deadline(t *testing.T) {
	c := newContext(t, "local[2]")
	col := compute.Map(compute.Parallelize(c, make([]int, 50)), func(v int) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return v, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := col.ForEach(ctx, func(int) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("expected prompt abort, took %v", elapsed)
	}
}

func TestActions_AfterClose(t *testing.T) {
	c := newContext(t, "local")
	col := compute.Map(compute.Parallelize(c, []int{1}), square)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := col.ForEach(context.Background(), func(int) error { return nil }); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("foreach: expected ErrClosed, got %v", err)
	}
	if _, err := col.Collect(context.Background()); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("collect: expected ErrClosed, got %v", err)
	}
	if _, err := col.Count(context.Background()); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("count: expected ErrClosed, got %v", err)
	}
}

// elementCounts reads the element counter back as "stage/outcome" -> value.
func elementCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != observe.ElementsMetric {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				stage, _ := dp.Attributes.Value(observe.StageKey)
				outcome, _ := dp.Attributes.Value(observe.OutcomeKey)
				got[stage.AsString()+"/"+outcome.AsString()] = dp.Value
			}
		}
	}
	return got
}

func TestMetrics(t *testing.T) {
	failAt := func(bad int) func(int) (int, error) {
		return func(v int) (int, error) {
			if v == bad {
				return 0, errors.New("bad element")
			}
			return v, nil
		}
	}

	tests := []struct {
		name       string
		build      func(*compute.Context) *compute.Collection[int]
		want       map[string]int64
		wantFailed int
	}{
		{
			name: "success",
			build: func(c *compute.Context) *compute.Collection[int] {
				return compute.Map(compute.Parallelize(c, []int{35, 12, 90, 20}), square)
			},
			want: map[string]int64{
				"map.1/value":   4,
				"foreach/value": 4,
			},
		},
		{
			name: "chained failure is charged to its stage",
			build: func(c *compute.Context) *compute.Collection[int] {
				return compute.Map(compute.Map(compute.Parallelize(c, []int{7}), failAt(7)), square)
			},
			want: map[string]int64{
				"map.1/error": 1,
			},
			wantFailed: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer provider.Shutdown(context.Background())

			var logs bytes.Buffer
			c := newContext(t, "local",
				compute.WithMeterProvider(provider),
				compute.WithLogger(logging.New(logging.Config{Level: "debug", Format: logging.FormatJSON}, &logs)),
			)

			err := tc.build(c).ForEach(context.Background(), func(int) error { return nil })
			if (err != nil) != (tc.wantFailed > 0) {
				t.Fatalf("unexpected foreach result: %v", err)
			}

			if diff := cmp.Diff(tc.want, elementCounts(t, reader)); diff != "" {
				t.Errorf("element counts mismatch (-want +got):\n%s", diff)
			}
			if n := strings.Count(logs.String(), "element failed"); n != tc.wantFailed {
				t.Errorf("logged %d element failures, want %d:\n%s", n, tc.wantFailed, logs.String())
			}
		})
	}
}
