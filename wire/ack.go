package wire

import "fmt"

// Ack is the fixed 4-byte DAO-ACK / DCO-ACK body. A status below 128
// signals acceptance; 128 and above is a rejection.
type Ack struct {
	InstanceID uint8
	Sequence   uint8
	Status     uint8
}

// Accepted reports whether the status signals acceptance.
func (a *Ack) Accepted() bool {
	return a.Status < 128
}

// ParseAck decodes a DAO-ACK or DCO-ACK payload.
func ParseAck(p []byte) (*Ack, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: ACK %d bytes", ErrMalformed, len(p))
	}
	return &Ack{
		InstanceID: p[0],
		Sequence:   p[2],
		Status:     p[3],
	}, nil
}

func (a *Ack) Marshal() []byte {
	return []byte{a.InstanceID, 0, a.Sequence, a.Status}
}

// SetAckSequence rewrites the sequence byte of an encoded ACK payload,
// used when an ACK is translated back to a downstream hop's sequence space.
func SetAckSequence(p []byte, seq uint8) {
	if len(p) >= 4 {
		p[2] = seq
	}
}
