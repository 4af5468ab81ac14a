package core

import "github.com/lowpan/rpl/state"

// ObjectiveFunctionFor maps an objective code point to its implementation.
// Unknown code points fall back to OF0, the mandatory-to-implement OF.
func ObjectiveFunctionFor(ocp uint16, conf *state.Config) state.ObjectiveFunction {
	switch ocp {
	case 1:
		return &MRHOF{Metric: conf.Metric}
	default:
		return &OF0{Step: conf.Of0StepOfRank}
	}
}
