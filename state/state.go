package state

import (
	"context"
	"log/slog"
)

// State is the whole control-plane state of this node. Access must be done
// only on the protocol goroutine; handlers and timer callbacks are
// dispatched there and run to completion.
type State struct {
	*Env

	Instances map[uint8]*Instance

	Stats Stats
}

// Instance returns the instance with the given id, or nil. Unknown
// instances are dropped silently by every handler.
func (s *State) Instance(id uint8) *Instance {
	return s.Instances[id]
}

// EachInstance visits every active instance.
func (s *State) EachInstance(fn func(*Instance)) {
	for _, inst := range s.Instances {
		fn(inst)
	}
}

// Env can be read from any goroutine.
type Env struct {
	DispatchChannel chan<- func(s *State) error
	Context         context.Context
	Cancel          context.CancelCauseFunc
	Log             *slog.Logger
	Conf            *Config
}

// Stats are the user-visible counters. Protocol failures never unwind;
// they land here and the handler returns.
type Stats struct {
	DioRecvd      uint32
	DioSentUni    uint32
	DioSentMulti  uint32
	DaoRecvd      uint32
	DaoSent       uint32
	DaoForwarded  uint32
	NpdaoRecvd    uint32
	NpdaoSent     uint32
	NpdaoFwded    uint32
	DcoRecvd      uint32
	DcoSent       uint32
	DcoForwarded  uint32
	DcoIgnored    uint32
	MalformedMsgs uint32
	MemOverflows  uint32
}
