package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"

	"github.com/lowpan/rpl/state"
	"github.com/lowpan/rpl/transport"
)

// Start runs an RPL node with the given configuration until it receives a
// shutdown signal or a fatal error. Every handler and timer callback runs
// on the protocol goroutine owned here.
func Start(conf *state.Config, logLevel slog.Level) error {
	conf.ApplyDefaults()
	if err := state.ConfigValidator(conf); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	dispatch := make(chan func(s *state.State) error, 128)

	logger, err := buildLogger(conf, logLevel)
	if err != nil {
		return err
	}

	if conf.Interface == "" {
		conf.Interface = "lowpan0"
	}

	s := &state.State{
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			Log:             logger,
			Conf:            conf,
		},
		Instances: make(map[uint8]*state.Instance),
	}

	conn, err := transport.Listen(conf.Interface)
	if err != nil {
		return err
	}

	node := NewNode(s.Env, conn)
	defer node.Close()

	node.Run(s)
	s.Log.Info("rpl is up", "instance", conf.InstanceID, "mode", conf.Mode, "root", conf.Root)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()

	// The protocol goroutine: the only place state is mutated.
	for {
		select {
		case fn := <-dispatch:
			if err := fn(s); err != nil {
				s.Log.Error("handler failed", "err", err)
			}
		case <-ctx.Done():
			cause := context.Cause(ctx)
			if cause != nil && !errors.Is(cause, context.Canceled) {
				s.Log.Info("shutting down", "cause", cause)
			}
			return nil
		}
	}
}

func buildLogger(conf *state.Config, logLevel slog.Level) (*slog.Logger, error) {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:     logLevel,
			AddSource: false,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}),
	}

	if conf.LogPath != "" {
		if err := os.MkdirAll(path.Dir(conf.LogPath), 0700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(conf.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}
