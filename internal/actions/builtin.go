package actions

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Builtins returns a registry preloaded with the standard actions:
//
//	noop   does nothing
//	echo   returns with.message
//	sleep  waits for with.duration (Go duration string or milliseconds)
//	fail   returns an error carrying with.message
func Builtins() *Registry {
	r := NewRegistry()
	r.MustRegister("noop", func(context.Context, Request) (any, error) {
		return nil, nil
	})
	r.MustRegister("echo", func(_ context.Context, req Request) (any, error) {
		if msg, ok := req.With["message"]; ok {
			return msg, nil
		}
		return req.StepID, nil
	})
	r.MustRegister("sleep", sleepAction)
	r.MustRegister("fail", func(_ context.Context, req Request) (any, error) {
		msg, _ := req.With["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("step %s failed", req.StepID)
		}
		return nil, errors.New(msg)
	})
	return r
}

func sleepAction(ctx context.Context, req Request) (any, error) {
	d, err := durationParam(req.With["duration"])
	if err != nil {
		return nil, fmt.Errorf("actions: sleep %s: %w", req.StepID, err)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return d.String(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func durationParam(v any) (time.Duration, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(value)
	case int:
		return time.Duration(value) * time.Millisecond, nil
	case int64:
		return time.Duration(value) * time.Millisecond, nil
	case float64:
		return time.Duration(value * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", v, v)
	}
}
