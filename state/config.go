package state

import (
	"fmt"
	"net/netip"
	"time"
)

// StepOfRankPolicy selects how OF0 derives its step of rank.
type StepOfRankPolicy string

const (
	StepFixed    StepOfRankPolicy = "fixed"
	StepEtxBased StepOfRankPolicy = "etx-based"
)

// MetricPolicy selects which metric container, if any, DIOs advertise.
type MetricPolicy string

const (
	MetricNone   MetricPolicy = "none"
	MetricEtx    MetricPolicy = "etx"
	MetricEnergy MetricPolicy = "energy"
)

// Config carries the node-level tunables, the knobs embedded RPL stacks fix
// at compile time. One Config is shared by every instance on a node.
type Config struct {
	InstanceID uint8      `yaml:"instance_id"`
	Mode       string     `yaml:"mode"` // no-downward, non-storing, storing
	OCP        uint16     `yaml:"ocp"`  // 0 = OF0, 1 = MRHOF
	Root       bool       `yaml:"root,omitempty"`
	LeafOnly   bool       `yaml:"leaf_only,omitempty"`
	DodagID    netip.Addr `yaml:"dodag_id,omitempty"`
	GlobalAddr netip.Addr `yaml:"global_addr,omitempty"`

	Prefix netip.Prefix `yaml:"prefix,omitempty"`

	Of0StepOfRank StepOfRankPolicy `yaml:"of0_step_of_rank,omitempty"`
	Metric        MetricPolicy     `yaml:"metric,omitempty"`

	WithDaoAck          bool `yaml:"dao_ack"`
	WithDco             bool `yaml:"dco"`
	WithDcoAck          bool `yaml:"dco_ack,omitempty"`
	RepairOnDaoNack     bool `yaml:"repair_on_dao_nack,omitempty"`
	DioRefreshDaoRoutes bool `yaml:"dio_refresh_dao_routes,omitempty"`

	DaoMaxRetransmissions    uint8         `yaml:"dao_max_retransmissions,omitempty"`
	DaoRetransmissionTimeout time.Duration `yaml:"dao_retransmission_timeout,omitempty"`

	Interface string `yaml:"interface,omitempty"`
	LogPath   string `yaml:"log_path,omitempty"`
}

// ParsedMode maps the configured mode string to a Mode.
func (c *Config) ParsedMode() (Mode, error) {
	switch c.Mode {
	case "", "storing":
		return MopStoring, nil
	case "non-storing":
		return MopNonStoring, nil
	case "no-downward":
		return MopNoDownward, nil
	}
	return 0, fmt.Errorf("unknown mode %q", c.Mode)
}

// ApplyDefaults fills the optional tunables that were left unset.
func (c *Config) ApplyDefaults() {
	if c.Of0StepOfRank == "" {
		c.Of0StepOfRank = StepEtxBased
	}
	if c.Metric == "" {
		c.Metric = MetricNone
	}
	if c.DaoMaxRetransmissions == 0 {
		c.DaoMaxRetransmissions = DaoMaxRetransmissions
	}
	if c.DaoRetransmissionTimeout == 0 {
		c.DaoRetransmissionTimeout = DaoRetransmissionTimeout
	}
}

// ConfigValidator checks a node configuration for internal consistency.
func ConfigValidator(c *Config) error {
	if _, err := c.ParsedMode(); err != nil {
		return err
	}
	if c.OCP > 1 {
		return fmt.Errorf("unsupported OCP %d", c.OCP)
	}
	switch c.Of0StepOfRank {
	case "", StepFixed, StepEtxBased:
	default:
		return fmt.Errorf("unknown of0 step-of-rank policy %q", c.Of0StepOfRank)
	}
	switch c.Metric {
	case "", MetricNone, MetricEtx, MetricEnergy:
	default:
		return fmt.Errorf("unknown metric policy %q", c.Metric)
	}
	if c.Root && !c.DodagID.IsValid() {
		return fmt.Errorf("root requires a dodag_id")
	}
	if c.DodagID.IsValid() && !c.DodagID.Is6() {
		return fmt.Errorf("dodag_id must be an IPv6 address")
	}
	if c.GlobalAddr.IsValid() && (!c.GlobalAddr.Is6() || c.GlobalAddr.IsLinkLocalUnicast()) {
		return fmt.Errorf("global_addr must be a global IPv6 address")
	}
	if c.Prefix.IsValid() && !c.Prefix.Addr().Is6() {
		return fmt.Errorf("prefix must be IPv6")
	}
	if c.RepairOnDaoNack && !c.WithDaoAck {
		return fmt.Errorf("repair_on_dao_nack requires dao_ack")
	}
	return nil
}
