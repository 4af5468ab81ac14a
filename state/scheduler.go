package state

import (
	"fmt"
	"time"
)

// Dispatch dispatches the function to run on the protocol goroutine without
// waiting for it to complete.
func (e *Env) Dispatch(fun func(*State) error) {
	defer func() {
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	select {
	case e.DispatchChannel <- fun:
	case <-e.Context.Done():
	}
}

// DispatchWait dispatches the function to run on the protocol goroutine and
// waits for it to complete.
func (e *Env) DispatchWait(fun func(*State) (any, error)) (any, error) {
	type result struct {
		val any
		err error
	}
	ret := make(chan result, 1)
	e.Dispatch(func(s *State) error {
		res, err := fun(s)
		ret <- result{res, err}
		return err
	})
	select {
	case res := <-ret:
		return res.val, res.err
	case <-e.Context.Done():
		return nil, e.Context.Err()
	}
}

// ScheduleTask runs the function on the protocol goroutine after delay.
func (e *Env) ScheduleTask(fun func(*State) error, delay time.Duration) {
	time.AfterFunc(delay, func() {
		e.Dispatch(fun)
	})
}

// RepeatTask runs the function on the protocol goroutine every delay until
// the context is cancelled.
func (e *Env) RepeatTask(fun func(*State) error, delay time.Duration) {
	go func() {
		for e.Context.Err() == nil {
			e.Dispatch(fun)
			select {
			case <-time.After(delay):
			case <-e.Context.Done():
			}
		}
	}()
}
