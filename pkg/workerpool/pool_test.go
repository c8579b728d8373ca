package workerpool

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRunPreservesOrder(t *testing.T) {
	tasks := make([]*Task, 50)
	for i := range tasks {
		tasks[i] = &Task{ID: fmt.Sprintf("t%d", i), Payload: i}
	}

	results, err := Run(context.Background(), Config{Workers: 8, QueueSize: 4}, tasks,
		func(ctx context.Context, task *Task) *Result {
			n := task.Payload.(int)
			return &Result{Success: true, Data: n * n}
		}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, r := range results {
		if r == nil {
			t.Fatalf("missing result %d", i)
		}
		if r.Index != i || r.TaskID != fmt.Sprintf("t%d", i) {
			t.Errorf("result %d has index %d id %s", i, r.Index, r.TaskID)
		}
		if r.Data.(int) != i*i {
			t.Errorf("result %d = %v, want %d", i, r.Data, i*i)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	tasks := []*Task{{ID: "ok"}, {ID: "fail"}, {ID: "panic"}, {ID: "nil"}}

	results, err := Run(context.Background(), Config{Workers: 2}, tasks,
		func(ctx context.Context, task *Task) *Result {
			switch task.ID {
			case "fail":
				return &Result{Error: boom}
			case "panic":
				panic("bad input")
			case "nil":
				return nil
			}
			return &Result{Success: true}
		}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !results[0].Success {
		t.Error("expected first task to succeed")
	}
	if !errors.Is(results[1].Error, boom) {
		t.Errorf("expected boom, got %v", results[1].Error)
	}
	if results[2].Success || results[2].Error == nil {
		t.Error("expected panic to become a failed result")
	}
	if results[3].Success || results[3].Error == nil {
		t.Error("expected nil result to become a failed result")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []*Task{{ID: "a"}, {ID: "b"}}
	_, err := Run(ctx, Config{Workers: 1, QueueSize: 1}, tasks,
		func(ctx context.Context, task *Task) *Result {
			return &Result{Success: true}
		}, nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewRequiresWorkerFunc(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error without worker function")
	}
}

func TestPoolStats(t *testing.T) {
	p, err := New(Config{Workers: 2}, func(ctx context.Context, task *Task) *Result {
		return &Result{Success: task.ID != "bad"}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	p.Start(ctx)
	for _, id := range []string{"a", "b", "bad"} {
		if err := p.Submit(ctx, &Task{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	p.Close()
	for range p.Results() {
	}

	s := p.Stats()
	if s.TasksSubmitted != 3 || s.TasksCompleted != 2 || s.TasksFailed != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.Workers != 2 {
		t.Errorf("workers = %d, want 2", s.Workers)
	}
}
