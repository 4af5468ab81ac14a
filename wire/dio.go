package wire

import (
	"fmt"
	"net/netip"
)

// Metric container object types, RFC 6551.
const (
	MCNone   = 0x00
	MCEnergy = 0x02
	MCETX    = 0x07
)

// Metric container header fields.
const (
	MCFlagP        = 0x8
	MCAggrAdditive = 0
)

// Energy object flags.
const (
	MCEnergyTypeShift   = 1
	MCEnergyTypeMains   = 0
	MCEnergyTypeBattery = 1
)

// MetricContainer is the DAG Metric Container option body, RFC 6551
// section 2.1. Only the ETX and Energy objects are understood.
type MetricContainer struct {
	Type   uint8
	Flags  uint8
	Aggr   uint8
	Prec   uint8
	Length uint8

	ETX uint16 // valid when Type == MCETX

	EnergyFlags uint8 // valid when Type == MCEnergy
	EnergyEst   uint8
}

// DAGConfig is the DODAG Configuration option body, RFC 6550 section 6.7.6.
type DAGConfig struct {
	IntervalDoublings  uint8
	IntervalMin        uint8
	Redundancy         uint8
	MaxRankIncrease    uint16
	MinHopRankIncrease uint16
	OCP                uint16
	DefaultLifetime    uint8
	LifetimeUnit       uint16
}

// RouteInfo is the Route Information option body, RFC 6550 section 6.7.8.
type RouteInfo struct {
	PrefixLength uint8
	Flags        uint8
	Lifetime     uint32
	Prefix       netip.Addr
}

// PrefixInfo is the Prefix Information option body, RFC 6550 section 6.7.10.
// Only the preferred lifetime is retained.
type PrefixInfo struct {
	Length   uint8
	Flags    uint8
	Lifetime uint32
	Prefix   netip.Addr
}

// DIO is a DODAG Information Object, RFC 6550 section 6.3.
type DIO struct {
	InstanceID uint8
	Version    uint8
	Rank       uint16
	Grounded   bool
	MOP        uint8
	Preference uint8
	DTSN       uint8
	DODAGID    netip.Addr

	MC         *MetricContainer
	RouteInfo  *RouteInfo
	Config     *DAGConfig
	PrefixInfo *PrefixInfo
}

// ParseDIO decodes a DIO payload including its sub-options.
func ParseDIO(p []byte) (*DIO, error) {
	if len(p) < dioBaseLen {
		return nil, fmt.Errorf("%w: DIO base %d bytes", ErrMalformed, len(p))
	}
	d := &DIO{
		InstanceID: p[0],
		Version:    p[1],
		Rank:       get16(p, 2),
		Grounded:   p[4]&dioGrounded != 0,
		MOP:        (p[4] & dioMOPMask) >> dioMOPShift,
		Preference: p[4] & dioPrfMask,
		DTSN:       p[5],
		// p[6] flags, p[7] reserved
		DODAGID: addrFrom(p[8:24]),
	}

	opts := options{buf: p, pos: dioBaseLen}
	for {
		typ, body, done, err := opts.next()
		if err != nil {
			return nil, err
		}
		if done {
			return d, nil
		}
		switch typ {
		case OptMetricContainer:
			mc, err := parseMetricContainer(body)
			if err != nil {
				return nil, err
			}
			d.MC = mc
		case OptRouteInfo:
			ri, err := parseRouteInfo(body)
			if err != nil {
				return nil, err
			}
			d.RouteInfo = ri
		case OptDAGConfig:
			if len(body) != dagConfigBody {
				return nil, fmt.Errorf("%w: DAG configuration length %d", ErrMalformed, len(body))
			}
			d.Config = &DAGConfig{
				// body[0] is Auth/PCS, not interpreted
				IntervalDoublings:  body[1],
				IntervalMin:        body[2],
				Redundancy:         body[3],
				MaxRankIncrease:    get16(body, 4),
				MinHopRankIncrease: get16(body, 6),
				OCP:                get16(body, 8),
				// body[10] reserved
				DefaultLifetime: body[11],
				LifetimeUnit:    get16(body, 12),
			}
		case OptPrefixInfo:
			if len(body) != prefixInfoBody {
				return nil, fmt.Errorf("%w: prefix information length %d", ErrMalformed, len(body))
			}
			d.PrefixInfo = &PrefixInfo{
				Length: body[0],
				Flags:  body[1],
				// body[2:6] is the valid lifetime, not interpreted;
				// the preferred lifetime is what governs the prefix.
				Lifetime: get32(body, 6),
				Prefix:   addrFrom(body[14:30]),
			}
		default:
			// Unknown options are skipped.
		}
	}
}

func parseMetricContainer(body []byte) (*MetricContainer, error) {
	if len(body) < mcBodyHdrLen {
		return nil, fmt.Errorf("%w: metric container length %d", ErrMalformed, len(body))
	}
	mc := &MetricContainer{
		Type:   body[0],
		Flags:  body[1]<<1 | body[2]>>7,
		Aggr:   (body[2] >> 4) & 0x3,
		Prec:   body[2] & 0xf,
		Length: body[3],
	}
	switch mc.Type {
	case MCNone:
	case MCETX:
		if len(body) < mcBodyHdrLen+2 {
			return nil, fmt.Errorf("%w: ETX object length %d", ErrMalformed, len(body))
		}
		mc.ETX = get16(body, 4)
	case MCEnergy:
		if len(body) < mcBodyHdrLen+2 {
			return nil, fmt.Errorf("%w: energy object length %d", ErrMalformed, len(body))
		}
		mc.EnergyFlags = body[4]
		mc.EnergyEst = body[5]
	default:
		return nil, fmt.Errorf("%w: metric container type %d", ErrMalformed, mc.Type)
	}
	return mc, nil
}

func parseRouteInfo(body []byte) (*RouteInfo, error) {
	if len(body) < 7 {
		return nil, fmt.Errorf("%w: route information length %d", ErrMalformed, len(body))
	}
	ri := &RouteInfo{
		PrefixLength: body[0],
		Flags:        body[1],
		Lifetime:     get32(body, 2),
	}
	n := prefixBytes(ri.PrefixLength)
	if ri.PrefixLength > 128 || 6+n > len(body) {
		return nil, fmt.Errorf("%w: route information prefix length %d", ErrMalformed, ri.PrefixLength)
	}
	var a [16]byte
	copy(a[:], body[6:6+n])
	ri.Prefix = netip.AddrFrom16(a)
	return ri, nil
}

// Marshal encodes the DIO base object followed by its sub-options, in the
// order metric container, DAG configuration, prefix information.
func (d *DIO) Marshal() []byte {
	b := make([]byte, dioBaseLen, 128)
	b[0] = d.InstanceID
	b[1] = d.Version
	put16(b, 2, d.Rank)
	if d.Grounded {
		b[4] |= dioGrounded
	}
	b[4] |= d.MOP << dioMOPShift
	b[4] |= d.Preference & dioPrfMask
	b[5] = d.DTSN
	id := d.DODAGID.As16()
	copy(b[8:24], id[:])

	if d.MC != nil && d.MC.Type != MCNone {
		b = appendMetricContainer(b, d.MC)
	}
	if d.Config != nil {
		b = append(b, OptDAGConfig, dagConfigBody)
		b = append(b, 0) // no Auth, PCS = 0
		b = append(b, d.Config.IntervalDoublings, d.Config.IntervalMin, d.Config.Redundancy)
		b = append16(b, d.Config.MaxRankIncrease)
		b = append16(b, d.Config.MinHopRankIncrease)
		b = append16(b, d.Config.OCP)
		b = append(b, 0) // reserved
		b = append(b, d.Config.DefaultLifetime)
		b = append16(b, d.Config.LifetimeUnit)
	}
	if d.PrefixInfo != nil && d.PrefixInfo.Length > 0 {
		b = append(b, OptPrefixInfo, prefixInfoBody)
		b = append(b, d.PrefixInfo.Length, d.PrefixInfo.Flags)
		b = append32(b, d.PrefixInfo.Lifetime) // valid lifetime
		b = append32(b, d.PrefixInfo.Lifetime) // preferred lifetime
		b = append32(b, 0)                     // reserved
		p := d.PrefixInfo.Prefix.As16()
		b = append(b, p[:]...)
	}
	return b
}

func appendMetricContainer(b []byte, mc *MetricContainer) []byte {
	b = append(b, OptMetricContainer, 6)
	b = append(b, mc.Type)
	b = append(b, mc.Flags>>1)
	b = append(b, (mc.Flags&1)<<7|mc.Aggr<<4|mc.Prec)
	switch mc.Type {
	case MCETX:
		b = append(b, 2)
		b = append16(b, mc.ETX)
	case MCEnergy:
		b = append(b, 2)
		b = append(b, mc.EnergyFlags, mc.EnergyEst)
	}
	return b
}
