package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitFor_CompletesAfterPolls(t *testing.T) {
	n := 0
	err := WaitFor(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		n++
		return n == 3, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 polls, got %d", n)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	err := WaitFor(context.Background(), 5*time.Millisecond, 20*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitFor_PollError(t *testing.T) {
	errPoll := errors.New("bjobs failed")
	err := WaitFor(context.Background(), time.Millisecond, 0, func(ctx context.Context) (bool, error) {
		return false, errPoll
	})
	if !errors.Is(err, errPoll) {
		t.Errorf("expected poll error, got %v", err)
	}
}

func TestWaitFor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitFor(ctx, time.Millisecond, 0, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWaitFor_BadInterval(t *testing.T) {
	if err := WaitFor(context.Background(), 0, time.Second, func(ctx context.Context) (bool, error) { return true, nil }); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestAvailable(t *testing.T) {
	var nilPtr *int
	for _, tc := range []struct {
		name string
		v    interface{}
		want bool
	}{
		{"nil", nil, false},
		{"string", "batch1.bed", true},
		{"false scalar", false, true},
		{"ok result", Ok("x"), true},
		{"failed result", Failed[string](), false},
		{"all truthy slice", []interface{}{"a", true, 1}, true},
		{"slice with nil", []interface{}{"a", nil}, false},
		{"slice with false", []interface{}{"a", false}, false},
		{"slice with nil pointer", []*int{nilPtr}, false},
		{"slice of results", []Result[string]{Ok("a"), Failed[string]()}, false},
	} {
		if got := Available(tc.v); got != tc.want {
			t.Errorf("%s: Available(%v) = %v, want %v", tc.name, tc.v, got, tc.want)
		}
	}
}
