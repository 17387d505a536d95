package certificate

import (
	"crypto/sha256"
	"errors"
	"fmt"

	capnp "capnproto.org/go/capnp/v3"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/crypto"
	"github.com/iykyk-syn/narwhal/dag/certificate/certmsg"
)

var (
	errZeroRound             = errors.New("zero round")
	errDuplicateParent       = errors.New("duplicate parent")
	errDuplicateTransmission = errors.New("duplicate transmission")
)

// BatchCertificate certifies a batch header produced by an author in a round.
// It references transmissions of the author and certificates of the previous round as parents.
type BatchCertificate struct {
	id            narwhal.CertificateID
	round         uint64
	author        narwhal.Address
	transmissions []narwhal.TransmissionID // ids of all the transmissions included by the author
	parents       []narwhal.CertificateID  // ids of the certificates from prev round
	signatures    []crypto.Signature
}

// New constructs a new unsigned [BatchCertificate] computing its ID.
func New(
	round uint64,
	author narwhal.Address,
	transmissions []narwhal.TransmissionID,
	parents []narwhal.CertificateID,
) (*BatchCertificate, error) {
	cert := &BatchCertificate{
		round:         round,
		author:        author,
		transmissions: transmissions,
		parents:       parents,
	}

	var err error
	cert.id, err = cert.hashHeader()
	if err != nil {
		return nil, err
	}
	return cert, nil
}

func (c *BatchCertificate) ID() narwhal.CertificateID {
	return c.id
}

func (c *BatchCertificate) Round() uint64 {
	return c.round
}

func (c *BatchCertificate) Author() narwhal.Address {
	return c.author
}

func (c *BatchCertificate) Transmissions() []narwhal.TransmissionID {
	return c.transmissions
}

func (c *BatchCertificate) Parents() []narwhal.CertificateID {
	return c.parents
}

func (c *BatchCertificate) Signatures() []crypto.Signature {
	return c.signatures
}

// Sign signs over the ID of the [BatchCertificate] and appends the signature.
// It must not be called once the [BatchCertificate] is shared.
func (c *BatchCertificate) Sign(signer crypto.Signer) error {
	sig, err := signer.Sign(c.id.Bytes())
	if err != nil {
		return fmt.Errorf("signing certificate(%s): %w", c.id, err)
	}
	c.signatures = append(c.signatures, sig)
	return nil
}

func (c *BatchCertificate) String() string {
	return fmt.Sprintf("%s@%d", c.id, c.round)
}

// Validate performs basic stateless validation of the [BatchCertificate].
func (c *BatchCertificate) Validate() error {
	if c.round == 0 {
		return errZeroRound
	}

	parents := make(map[narwhal.CertificateID]struct{}, len(c.parents))
	for _, p := range c.parents {
		if _, ok := parents[p]; ok {
			return fmt.Errorf("%w: %s", errDuplicateParent, p)
		}
		parents[p] = struct{}{}
	}

	transmissions := make(map[narwhal.TransmissionID]struct{}, len(c.transmissions))
	for _, t := range c.transmissions {
		if _, ok := transmissions[t]; ok {
			return fmt.Errorf("%w: %s", errDuplicateTransmission, t)
		}
		transmissions[t] = struct{}{}
	}
	return nil
}

func (c *BatchCertificate) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	cert, err := certmsg.NewRootCertificate(seg)
	if err != nil {
		return nil, fmt.Errorf("converting segment to certificate: %w", err)
	}

	header, err := cert.NewHeader()
	if err != nil {
		return nil, err
	}
	if err = c.setHeader(header); err != nil {
		return nil, err
	}

	signers, err := cert.NewSigners(int32(len(c.signatures)))
	if err != nil {
		return nil, err
	}
	bodies, err := cert.NewSignatures(int32(len(c.signatures)))
	if err != nil {
		return nil, err
	}
	for i, sig := range c.signatures {
		if err = signers.Set(i, sig.Signer); err != nil {
			return nil, err
		}
		if err = bodies.Set(i, sig.Body); err != nil {
			return nil, err
		}
	}

	return msg.Marshal()
}

func (c *BatchCertificate) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}

	cert, err := certmsg.ReadRootCertificate(msg)
	if err != nil {
		return fmt.Errorf("converting received binary data to certificate: %w", err)
	}
	if !cert.HasHeader() {
		return errors.New("certificate without header")
	}

	header, err := cert.Header()
	if err != nil {
		return err
	}
	if err = c.getHeader(header); err != nil {
		return err
	}

	signers, err := cert.Signers()
	if err != nil {
		return err
	}
	bodies, err := cert.Signatures()
	if err != nil {
		return err
	}
	if signers.Len() != bodies.Len() {
		return fmt.Errorf("signers(%d) and signatures(%d) mismatch", signers.Len(), bodies.Len())
	}

	c.signatures = make([]crypto.Signature, signers.Len())
	for i := range c.signatures {
		signer, err := signers.At(i)
		if err != nil {
			return err
		}
		body, err := bodies.At(i)
		if err != nil {
			return err
		}
		// capnp data aliases the message buffer
		c.signatures[i] = crypto.Signature{
			Signer: append([]byte(nil), signer...),
			Body:   append([]byte(nil), body...),
		}
	}

	// the id is always derived from the content, never trusted from the wire
	c.id, err = c.hashHeader()
	return err
}

// hashHeader computes the ID out of the canonical header encoding.
func (c *BatchCertificate) hashHeader() (narwhal.CertificateID, error) {
	var id narwhal.CertificateID

	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return id, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	header, err := certmsg.NewRootHeader(seg)
	if err != nil {
		return id, fmt.Errorf("converting segment to header: %w", err)
	}
	if err = c.setHeader(header); err != nil {
		return id, err
	}

	bin, err := msg.Marshal()
	if err != nil {
		return id, err
	}
	return sha256.Sum256(bin), nil
}

func (c *BatchCertificate) setHeader(header certmsg.Header) error {
	header.SetRound(c.round)
	err := header.SetAuthor(c.author.Bytes())
	if err != nil {
		return err
	}

	tList, err := header.NewTransmissions(int32(len(c.transmissions)))
	if err != nil {
		return err
	}
	for i, t := range c.transmissions {
		bin, err := t.MarshalBinary()
		if err != nil {
			return err
		}
		if err = tList.Set(i, bin); err != nil {
			return err
		}
	}

	pList, err := header.NewParents(int32(len(c.parents)))
	if err != nil {
		return err
	}
	for i, p := range c.parents {
		if err = pList.Set(i, p.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (c *BatchCertificate) getHeader(header certmsg.Header) error {
	c.round = header.Round()

	author, err := header.Author()
	if err != nil {
		return err
	}
	c.author, err = narwhal.AddressFromBytes(author)
	if err != nil {
		return err
	}

	tList, err := header.Transmissions()
	if err != nil {
		return err
	}
	c.transmissions = make([]narwhal.TransmissionID, tList.Len())
	for i := range c.transmissions {
		data, err := tList.At(i)
		if err != nil {
			return err
		}
		if err = c.transmissions[i].UnmarshalBinary(data); err != nil {
			return fmt.Errorf("transmission #%d: %w", i, err)
		}
	}

	pList, err := header.Parents()
	if err != nil {
		return err
	}
	c.parents = make([]narwhal.CertificateID, pList.Len())
	for i := range c.parents {
		data, err := pList.At(i)
		if err != nil {
			return err
		}
		c.parents[i], err = narwhal.CertificateIDFromBytes(data)
		if err != nil {
			return fmt.Errorf("parent #%d: %w", i, err)
		}
	}
	return nil
}

// Unmarshal decodes a [BatchCertificate] out of its binary form.
func Unmarshal(data []byte) (*BatchCertificate, error) {
	cert := &BatchCertificate{}
	return cert, cert.UnmarshalBinary(data)
}
