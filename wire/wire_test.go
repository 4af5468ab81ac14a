package wire

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dodagID = netip.MustParseAddr("fd00::1")
	target  = netip.MustParseAddr("fd00::99")
	parent  = netip.MustParseAddr("fd00::77")
)

func TestDIORoundTrip(t *testing.T) {
	in := &DIO{
		InstanceID: 30,
		Version:    241,
		Rank:       768,
		Grounded:   true,
		MOP:        2,
		Preference: 5,
		DTSN:       242,
		DODAGID:    dodagID,
		MC: &MetricContainer{
			Type:   MCETX,
			Flags:  MCFlagP,
			Aggr:   MCAggrAdditive,
			Length: 2,
			ETX:    500,
		},
		Config: &DAGConfig{
			IntervalDoublings:  8,
			IntervalMin:        12,
			Redundancy:         10,
			MaxRankIncrease:    1792,
			MinHopRankIncrease: 256,
			OCP:                1,
			DefaultLifetime:    30,
			LifetimeUnit:       60,
		},
		PrefixInfo: &PrefixInfo{
			Length:   64,
			Flags:    0x40,
			Lifetime: 0xffffffff,
			Prefix:   netip.MustParseAddr("fd00::"),
		},
	}

	out, err := ParseDIO(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDIOBareBase(t *testing.T) {
	in := &DIO{InstanceID: 1, Rank: 256, DODAGID: dodagID}
	out, err := ParseDIO(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Nil(t, out.Config)
	assert.Nil(t, out.MC)
}

func TestDIOEnergyContainerRoundTrip(t *testing.T) {
	in := &DIO{
		InstanceID: 1,
		Rank:       256,
		DODAGID:    dodagID,
		MC: &MetricContainer{
			Type:        MCEnergy,
			Flags:       MCFlagP,
			Length:      2,
			EnergyFlags: MCEnergyTypeBattery << MCEnergyTypeShift,
			EnergyEst:   100,
		},
	}
	out, err := ParseDIO(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in.MC, out.MC)
}

func TestDIOTruncatedBase(t *testing.T) {
	_, err := ParseDIO(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDIOSuboptionOverrun(t *testing.T) {
	base := (&DIO{InstanceID: 1, DODAGID: dodagID}).Marshal()
	// option claims 40 bytes of body that are not there
	payload := append(base, OptDAGConfig, 40, 0, 0)
	_, err := ParseDIO(payload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDIOFixedLengthMismatch(t *testing.T) {
	base := (&DIO{InstanceID: 1, DODAGID: dodagID}).Marshal()
	// DAG configuration must have a 14-byte body
	payload := append(base, OptDAGConfig, 10)
	payload = append(payload, make([]byte, 10)...)
	_, err := ParseDIO(payload)
	assert.ErrorIs(t, err, ErrMalformed)

	base = (&DIO{InstanceID: 1, DODAGID: dodagID}).Marshal()
	payload = append(base, OptPrefixInfo, 8)
	payload = append(payload, make([]byte, 8)...)
	_, err = ParseDIO(payload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDIOUnknownOptionSkipped(t *testing.T) {
	base := (&DIO{InstanceID: 1, Rank: 512, DODAGID: dodagID}).Marshal()
	payload := append(base, 0x77, 3, 1, 2, 3) // unknown type
	payload = append(payload, OptPad1)
	out, err := ParseDIO(payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(512), out.Rank)
}

func TestDIORouteInfoParsed(t *testing.T) {
	base := (&DIO{InstanceID: 1, DODAGID: dodagID}).Marshal()
	body := []byte{64, 0x08, 0, 0, 0x0e, 0x10} // plen, flags, lifetime 3600
	pfx := netip.MustParseAddr("fd00::").As16()
	body = append(body, pfx[:8]...)
	payload := append(base, OptRouteInfo, byte(len(body)))
	payload = append(payload, body...)

	out, err := ParseDIO(payload)
	require.NoError(t, err)
	require.NotNil(t, out.RouteInfo)
	assert.Equal(t, uint8(64), out.RouteInfo.PrefixLength)
	assert.Equal(t, uint32(3600), out.RouteInfo.Lifetime)
	assert.Equal(t, netip.MustParseAddr("fd00::"), out.RouteInfo.Prefix)
}

func TestDAORoundTrip(t *testing.T) {
	in := &DAO{
		InstanceID: 30,
		Ack:        true,
		HasDODAGID: true,
		Sequence:   66,
		DODAGID:    dodagID,
		Target: &Target{
			PrefixLength: 128,
			Prefix:       target,
		},
		Transit: &Transit{
			PathSequence: 9,
			PathLifetime: 30,
		},
	}
	out, err := ParseDAO(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDAONonStoringCarriesParent(t *testing.T) {
	in := &DAO{
		InstanceID: 30,
		Sequence:   67,
		Target:     &Target{PrefixLength: 128, Prefix: target},
		Transit: &Transit{
			PathSequence: 1,
			PathLifetime: 30,
			Parent:       parent,
		},
	}
	out, err := ParseDAO(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, parent, out.Transit.Parent)
}

func TestDAOShortPrefixTarget(t *testing.T) {
	in := &DAO{
		InstanceID: 1,
		Sequence:   2,
		Target:     &Target{PrefixLength: 64, Prefix: netip.MustParseAddr("fd00:aa::")},
		Transit:    &Transit{PathLifetime: 30},
	}
	encoded := in.Marshal()
	// a /64 target carries eight prefix bytes, not sixteen
	out, err := ParseDAO(encoded)
	require.NoError(t, err)
	assert.Equal(t, in.Target, out.Target)
}

func TestDAOTruncatedDodagID(t *testing.T) {
	payload := []byte{30, FlagDAODODAGID, 0, 5, 1, 2, 3}
	_, err := ParseDAO(payload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDAOTargetOverrun(t *testing.T) {
	payload := []byte{30, 0, 0, 5, OptTarget, 18, 0, 128, 1, 2}
	_, err := ParseDAO(payload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDCORequiresTransit(t *testing.T) {
	in := &DAO{
		InstanceID: 30,
		Sequence:   5,
		Target:     &Target{PrefixLength: 128, Prefix: target},
	}
	_, err := ParseDCO(in.Marshal())
	assert.ErrorIs(t, err, ErrMalformed)

	in.Transit = &Transit{PathSequence: 3}
	out, err := ParseDCO(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, uint8(3), out.Transit.PathSequence)
}

func TestSetSequenceRewritesInPlace(t *testing.T) {
	in := &DAO{
		InstanceID: 30,
		Sequence:   66,
		Target:     &Target{PrefixLength: 128, Prefix: target},
		Transit:    &Transit{PathLifetime: 30},
	}
	payload := in.Marshal()
	SetSequence(payload, 99)
	out, err := ParseDAO(payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(99), out.Sequence)
	// only the sequence byte moved
	assert.Equal(t, in.Target, out.Target)
	assert.Equal(t, in.Transit, out.Transit)
}

func TestAckRoundTrip(t *testing.T) {
	in := &Ack{InstanceID: 30, Sequence: 100, Status: StatusUnableToAccept}
	out, err := ParseAck(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, out.Accepted())

	p := in.Marshal()
	SetAckSequence(p, 5)
	out, _ = ParseAck(p)
	assert.Equal(t, uint8(5), out.Sequence)
}

func TestAckStatusBoundary(t *testing.T) {
	ok, _ := ParseAck([]byte{1, 0, 2, 127})
	assert.True(t, ok.Accepted())
	bad, _ := ParseAck([]byte{1, 0, 2, 128})
	assert.False(t, bad.Accepted())
}

func TestAckTruncated(t *testing.T) {
	_, err := ParseAck([]byte{1, 0, 2})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDISRoundTrip(t *testing.T) {
	var d DIS
	_, err := ParseDIS(d.Marshal())
	require.NoError(t, err)
	_, err = ParseDIS([]byte{0})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPad1AndPadNSkipped(t *testing.T) {
	base := (&DAO{InstanceID: 1, Sequence: 2}).Marshal()
	payload := append(base, OptPad1, OptPad1, OptPadN, 2, 0, 0)
	payload = append(payload, OptTarget, 18, 0, 128)
	tgt := target.As16()
	payload = append(payload, tgt[:]...)
	out, err := ParseDAO(payload)
	require.NoError(t, err)
	require.NotNil(t, out.Target)
	assert.Equal(t, target, out.Target.Prefix)
}
