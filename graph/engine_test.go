package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/multitool-chat/graph/emit"
	"github.com/dshills/multitool-chat/graph/store"
)

type counterState struct {
	Trail []string
	Count int
}

func counterReducer(prev, delta counterState) counterState {
	prev.Trail = append(append([]string(nil), prev.Trail...), delta.Trail...)
	prev.Count += delta.Count
	return prev
}

func step(id string, route Next) NodeFunc[counterState] {
	return func(_ context.Context, _ counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Trail: []string{id}, Count: 1}, Route: route}
	}
}

// failingStore rejects every write.
type failingStore struct {
	store.MemStore[counterState]
}

func (f *failingStore) SaveStep(context.Context, string, int, string, counterState) error {
	return errors.New("disk full")
}

func TestEngine_Configuration(t *testing.T) {
	t.Run("duplicate node", func(t *testing.T) {
		e := New(counterReducer, store.NewMemStore[counterState](), nil)
		if err := e.Add("a", step("a", Stop())); err != nil {
			t.Fatal(err)
		}
		var engErr *EngineError
		if err := e.Add("a", step("a", Stop())); !errors.As(err, &engErr) || engErr.Code != "DUPLICATE_NODE" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("start at unknown node", func(t *testing.T) {
		e := New(counterReducer, store.NewMemStore[counterState](), nil)
		var engErr *EngineError
		if err := e.StartAt("missing"); !errors.As(err, &engErr) || engErr.Code != "NODE_NOT_FOUND" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("empty arguments", func(t *testing.T) {
		e := New(counterReducer, store.NewMemStore[counterState](), nil)
		if e.Add("", step("a", Stop())) == nil {
			t.Error("empty node ID accepted")
		}
		if e.Add("a", nil) == nil {
			t.Error("nil node accepted")
		}
		if e.Connect("", "b", nil) == nil || e.Connect("a", "", nil) == nil {
			t.Error("empty edge endpoint accepted")
		}
	})

	tests := []struct {
		name   string
		engine func() *Engine[counterState]
		code   string
	}{
		{
			name:   "missing reducer",
			engine: func() *Engine[counterState] { return New[counterState](nil, store.NewMemStore[counterState](), nil) },
			code:   "MISSING_REDUCER",
		},
		{
			name:   "missing store",
			engine: func() *Engine[counterState] { return New[counterState](counterReducer, nil, nil) },
			code:   "MISSING_STORE",
		},
		{
			name:   "no start node",
			engine: func() *Engine[counterState] { return New(counterReducer, store.NewMemStore[counterState](), nil) },
			code:   "NO_START_NODE",
		},
		{
			name: "invalid option",
			engine: func() *Engine[counterState] {
				return New(counterReducer, store.NewMemStore[counterState](), nil, WithMaxSteps(-1))
			},
			code: "INVALID_OPTION",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine().Run(context.Background(), "run", counterState{})
			var engErr *EngineError
			if !errors.As(err, &engErr) || engErr.Code != tt.code {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestEngine_Run(t *testing.T) {
	t.Run("follows edges and persists every step", func(t *testing.T) {
		st := store.NewMemStore[counterState]()
		buf := emit.NewBufferedEmitter()
		e := New(counterReducer, st, buf)
		_ = e.Add("a", step("a", Next{}))
		_ = e.Add("b", step("b", Next{}))
		_ = e.Add("c", step("c", Stop()))
		_ = e.StartAt("a")
		_ = e.Connect("a", "c", func(s counterState) bool { return s.Count > 5 })
		_ = e.Connect("a", "b", nil)
		_ = e.Connect("b", "c", nil)

		final, err := e.Run(context.Background(), "run-1", counterState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := final.Trail; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("trail = %v", got)
		}

		records, err := st.Steps(context.Background(), "run-1")
		if err != nil {
			t.Fatalf("Steps: %v", err)
		}
		if len(records) != 3 || records[2].NodeID != "c" || records[2].State.Count != 3 {
			t.Errorf("records = %+v", records)
		}

		if n := len(buf.GetHistoryWithFilter("run-1", emit.HistoryFilter{Msg: "node_end"})); n != 3 {
			t.Errorf("node_end events = %d", n)
		}
		if n := len(buf.GetHistoryWithFilter("run-1", emit.HistoryFilter{Msg: "run_complete"})); n != 1 {
			t.Errorf("run_complete events = %d", n)
		}
	})

	t.Run("explicit route wins over edges", func(t *testing.T) {
		e := New(counterReducer, store.NewMemStore[counterState](), nil)
		_ = e.Add("a", step("a", Goto("c")))
		_ = e.Add("b", step("b", Stop()))
		_ = e.Add("c", step("c", Stop()))
		_ = e.StartAt("a")
		_ = e.Connect("a", "b", nil)

		final, err := e.Run(context.Background(), "run", counterState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Trail[1] != "c" {
			t.Errorf("trail = %v", final.Trail)
		}
	})

	t.Run("max steps bounds a loop", func(t *testing.T) {
		e := New(counterReducer, store.NewMemStore[counterState](), nil, WithMaxSteps(4))
		_ = e.Add("loop", step("loop", Goto("loop")))
		_ = e.StartAt("loop")

		_, err := e.Run(context.Background(), "run", counterState{})
		if !errors.Is(err, ErrMaxStepsExceeded) {
			t.Errorf("err = %v, want ErrMaxStepsExceeded", err)
		}
	})

	t.Run("no route", func(t *testing.T) {
		e := New(counterReducer, store.NewMemStore[counterState](), nil)
		_ = e.Add("a", step("a", Next{}))
		_ = e.StartAt("a")

		_, err := e.Run(context.Background(), "run", counterState{})
		if !errors.Is(err, ErrNoRoute) {
			t.Errorf("err = %v, want ErrNoRoute", err)
		}
	})

	t.Run("node error is wrapped with node ID", func(t *testing.T) {
		boom := errors.New("model unavailable")
		buf := emit.NewBufferedEmitter()
		e := New(counterReducer, store.NewMemStore[counterState](), buf)
		_ = e.Add("assistant", NodeFunc[counterState](func(context.Context, counterState) NodeResult[counterState] {
			return NodeResult[counterState]{Err: boom}
		}))
		_ = e.StartAt("assistant")

		_, err := e.Run(context.Background(), "run", counterState{})
		var nodeErr *NodeError
		if !errors.As(err, &nodeErr) || nodeErr.NodeID != "assistant" {
			t.Fatalf("err = %v", err)
		}
		if !errors.Is(err, boom) {
			t.Error("cause not preserved")
		}
		if n := len(buf.GetHistoryWithFilter("run", emit.HistoryFilter{Msg: "run_error"})); n != 1 {
			t.Errorf("run_error events = %d", n)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		e := New[counterState](counterReducer, &failingStore{}, nil)
		_ = e.Add("a", step("a", Stop()))
		_ = e.StartAt("a")

		_, err := e.Run(context.Background(), "run", counterState{})
		var engErr *EngineError
		if !errors.As(err, &engErr) || engErr.Code != "STORE_ERROR" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("cancelled context stops before first step", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		e := New(counterReducer, store.NewMemStore[counterState](), nil)
		_ = e.Add("a", step("a", Stop()))
		_ = e.StartAt("a")

		if _, err := e.Run(ctx, "run", counterState{}); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestEngine_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	e := New(counterReducer, store.NewMemStore[counterState](), nil, WithMetrics(metrics))
	_ = e.Add("a", step("a", Stop()))
	_ = e.StartAt("a")

	if _, err := e.Run(context.Background(), "run", counterState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("runs_total{success} = %v", got)
	}
	if got := testutil.CollectAndCount(metrics.stepLatency); got != 1 {
		t.Errorf("step_latency series = %d", got)
	}

	metrics.Disable()
	metrics.IncrementToolCalls("wikipedia_search", "success")
	if got := testutil.ToFloat64(metrics.toolCalls.WithLabelValues("wikipedia_search", "success")); got != 0 {
		t.Errorf("disabled metrics recorded %v", got)
	}
	metrics.Enable()
	metrics.IncrementToolCalls("wikipedia_search", "success")
	metrics.IncrementReviewDecisions("approve")
	if got := testutil.ToFloat64(metrics.toolCalls.WithLabelValues("wikipedia_search", "success")); got != 1 {
		t.Errorf("tool_calls_total = %v", got)
	}
	if got := testutil.ToFloat64(metrics.reviewDecisions.WithLabelValues("approve")); got != 1 {
		t.Errorf("review_decisions_total = %v", got)
	}

	var nilMetrics *PrometheusMetrics
	nilMetrics.IncrementRuns("success")
}

func TestErrors(t *testing.T) {
	err := &EngineError{Message: "boom", Code: "X", Cause: ErrNoRoute}
	if !errors.Is(err, ErrNoRoute) {
		t.Error("EngineError should unwrap to its cause")
	}
	nodeErr := &NodeError{Message: "bad", NodeID: "tools"}
	if nodeErr.Error() != "node tools: bad" {
		t.Errorf("NodeError.Error() = %q", nodeErr.Error())
	}
}
