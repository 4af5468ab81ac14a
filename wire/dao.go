package wire

import (
	"fmt"
	"net/netip"
)

// Target is the RPL Target option body, RFC 6550 section 6.7.7.
type Target struct {
	PrefixLength uint8
	Prefix       netip.Addr
}

// AsPrefix returns the target as a masked prefix.
func (t *Target) AsPrefix() netip.Prefix {
	return netip.PrefixFrom(t.Prefix, int(t.PrefixLength))
}

// Transit is the Transit Information option body, RFC 6550 section 6.7.8.
// The parent address is present only in non-storing mode (body length 20).
type Transit struct {
	Flags        uint8
	PathControl  uint8
	PathSequence uint8
	PathLifetime uint8
	Parent       netip.Addr // zero value when absent
}

// DAO is a Destination Advertisement Object, RFC 6550 section 6.4. The DCO
// of draft-ietf-roll-efficient-npdao mirrors this framing exactly, so the
// same structure carries both; only the ICMPv6 code differs.
type DAO struct {
	InstanceID uint8
	Ack        bool // K flag: DAO-ACK requested
	HasDODAGID bool // D flag
	Sequence   uint8
	DODAGID    netip.Addr

	Target  *Target
	Transit *Transit
}

// DCO is a Destination Cleanup Object. Same framing as the DAO.
type DCO = DAO

// ParseDAO decodes a DAO (or DCO) payload including its sub-options.
func ParseDAO(p []byte) (*DAO, error) {
	if len(p) < daoBaseLen {
		return nil, fmt.Errorf("%w: DAO base %d bytes", ErrMalformed, len(p))
	}
	d := &DAO{
		InstanceID: p[0],
		Ack:        p[1]&FlagDAOAck != 0,
		HasDODAGID: p[1]&FlagDAODODAGID != 0,
		Sequence:   p[3],
	}
	pos := daoBaseLen
	if d.HasDODAGID {
		if len(p) < pos+dodagIDLen {
			return nil, fmt.Errorf("%w: DAO DODAGID truncated", ErrMalformed)
		}
		d.DODAGID = addrFrom(p[pos : pos+dodagIDLen])
		pos += dodagIDLen
	}

	opts := options{buf: p, pos: pos}
	for {
		typ, body, done, err := opts.next()
		if err != nil {
			return nil, err
		}
		if done {
			return d, nil
		}
		switch typ {
		case OptTarget:
			if len(body) < 2 {
				return nil, fmt.Errorf("%w: target length %d", ErrMalformed, len(body))
			}
			t := &Target{PrefixLength: body[1]}
			n := prefixBytes(t.PrefixLength)
			if t.PrefixLength > 128 || 2+n > len(body) {
				return nil, fmt.Errorf("%w: target prefix length %d", ErrMalformed, t.PrefixLength)
			}
			var a [16]byte
			copy(a[:], body[2:2+n])
			t.Prefix = netip.AddrFrom16(a)
			d.Target = t
		case OptTransit:
			if len(body) < transitBodyMin {
				return nil, fmt.Errorf("%w: transit length %d", ErrMalformed, len(body))
			}
			tr := &Transit{
				Flags:        body[0],
				PathControl:  body[1],
				PathSequence: body[2],
				PathLifetime: body[3],
			}
			if len(body) >= transitBodyFull {
				tr.Parent = addrFrom(body[4:20])
			}
			d.Transit = tr
		default:
			// Unknown options are skipped.
		}
	}
}

// ParseDCO decodes a DCO payload. A DCO without a Transit option is
// malformed: its path sequence decides which hop is authoritative, so a
// cleanup without one cannot be acted on.
func ParseDCO(p []byte) (*DCO, error) {
	d, err := ParseDAO(p)
	if err != nil {
		return nil, err
	}
	if d.Transit == nil {
		return nil, fmt.Errorf("%w: DCO without transit information", ErrMalformed)
	}
	return d, nil
}

// Marshal encodes the DAO base, the optional DODAGID, then the target and
// transit sub-options.
func (d *DAO) Marshal() []byte {
	b := make([]byte, 0, 64)
	var flags uint8
	if d.Ack {
		flags |= FlagDAOAck
	}
	if d.HasDODAGID {
		flags |= FlagDAODODAGID
	}
	b = append(b, d.InstanceID, flags, 0, d.Sequence)
	if d.HasDODAGID {
		id := d.DODAGID.As16()
		b = append(b, id[:]...)
	}
	if d.Target != nil {
		n := prefixBytes(d.Target.PrefixLength)
		b = append(b, OptTarget, byte(2+n))
		b = append(b, 0, d.Target.PrefixLength)
		p := d.Target.Prefix.As16()
		b = append(b, p[:n]...)
	}
	if d.Transit != nil {
		blen := byte(transitBodyMin)
		if d.Transit.Parent.IsValid() {
			blen = transitBodyFull
		}
		b = append(b, OptTransit, blen)
		b = append(b, d.Transit.Flags, d.Transit.PathControl, d.Transit.PathSequence, d.Transit.PathLifetime)
		if d.Transit.Parent.IsValid() {
			p := d.Transit.Parent.As16()
			b = append(b, p[:]...)
		}
	}
	return b
}

// SetSequence rewrites the DAOSequence byte of an encoded DAO or DCO
// payload. Forwarding rewrites the sequence on a copy of the received
// payload; the forwarded copy must never carry the received sequence.
func SetSequence(p []byte, seq uint8) {
	if len(p) >= daoBaseLen {
		p[3] = seq
	}
}
