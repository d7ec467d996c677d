package pipeline

import (
	"context"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrTimeout is returned by WaitFor when the condition is not met before the timeout.
var ErrTimeout = errors.New("timed out waiting for result")

// PollFunc reports whether the awaited work has completed.
type PollFunc func(ctx context.Context) (done bool, err error)

// WaitFor calls poll immediately and then every interval until it reports done,
// returns an error, the timeout elapses or ctx is cancelled. A non-positive
// timeout means no deadline beyond ctx.
func WaitFor(ctx context.Context, interval, timeout time.Duration, poll PollFunc) error {
	if interval <= 0 {
		return errors.Newf("poll interval must be positive, got %v", interval)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := poll(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Wrapf(ErrTimeout, "after %v", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Available reports whether v counts as a usable result: nil and absent
// Results are not, a slice is available only when every element is truthy,
// anything else is.
func Available(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case Presence:
		return x.OK()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if !truthy(rv.Index(i).Interface()) {
				return false
			}
		}
	}
	return true
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case Presence:
		return x.OK()
	case bool:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return !rv.IsNil()
	}
	return true
}
