package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testEnv(t *testing.T) (*Env, chan func(*State) error, *State) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dispatchChan := make(chan func(*State) error, 10)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel: func(err error) {
			cancel()
		},
	}
	return env, dispatchChan, &State{Env: env}
}

func TestDispatch(t *testing.T) {
	env, dispatchChan, s := testEnv(t)

	var called bool

	go func() {
		select {
		case f := <-dispatchChan:
			if err := f(s); err != nil {
				t.Errorf("Dispatch error: %v", err)
			}
		case <-time.After(100 * time.Millisecond):
			t.Error("Timed out waiting for dispatched function")
		}
	}()

	env.Dispatch(func(s *State) error {
		called = true
		return nil
	})

	time.Sleep(150 * time.Millisecond)

	if !called {
		t.Fatal("Dispatch function was not executed")
	}
}

func TestDispatchWait(t *testing.T) {
	env, dispatchChan, s := testEnv(t)

	go func() {
		f := <-dispatchChan
		_ = f(s)
	}()

	res, err := env.DispatchWait(func(s *State) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("DispatchWait error: %v", err)
	}
	if res != 42 {
		t.Fatalf("DispatchWait returned %v", res)
	}
}

func TestDispatchWaitPropagatesError(t *testing.T) {
	env, dispatchChan, s := testEnv(t)

	go func() {
		f := <-dispatchChan
		_ = f(s)
	}()

	want := errors.New("boom")
	_, err := env.DispatchWait(func(s *State) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("DispatchWait error = %v, want %v", err, want)
	}
}

func TestScheduleTask(t *testing.T) {
	env, dispatchChan, s := testEnv(t)

	done := make(chan struct{})
	go func() {
		f := <-dispatchChan
		_ = f(s)
		close(done)
	}()

	env.ScheduleTask(func(s *State) error {
		return nil
	}, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never ran")
	}
}
