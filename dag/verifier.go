package dag

import (
	"errors"
	"fmt"

	"github.com/iykyk-syn/narwhal/dag/certificate"
	"github.com/iykyk-syn/narwhal/quorum"
)

var (
	// ErrUnknownAuthor is returned when the certificate author is not a part of includers set.
	ErrUnknownAuthor = errors.New("author is not a part of includers set")
	// ErrInsufficientStake is returned when signers of the certificate do not reach the quorum.
	ErrInsufficientStake = errors.New("insufficient stake")

	errInvalidSignature = errors.New("invalid signature")
)

// Verifier checks certificates against the includers set before they enter the [DAG].
type Verifier struct {
	includers *quorum.Includers
}

func NewVerifier(includers *quorum.Includers) *Verifier {
	return &Verifier{includers: includers}
}

// Verify validates the certificate and checks that it is signed by the quorum.
func (v *Verifier) Verify(cert *certificate.BatchCertificate) error {
	err := cert.Validate()
	if err != nil {
		return fmt.Errorf("validating certificate(%s): %w", cert, err)
	}

	if v.includers.GetByAddress(cert.Author()) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAuthor, cert.Author())
	}

	id := cert.ID().Bytes()
	for _, sig := range cert.Signatures() {
		includer := v.includers.GetByPubKey(sig.Signer)
		if includer == nil {
			return fmt.Errorf("%w: %X", quorum.ErrUnknownSigner, sig.Signer)
		}
		if !includer.PubKey.VerifySignature(id, sig.Body) {
			return fmt.Errorf("%w from %s", errInvalidSignature, includer.PubKey.Address())
		}
	}

	stake, err := v.includers.Tally(cert.Signatures())
	if err != nil {
		return fmt.Errorf("tallying certificate(%s): %w", cert, err)
	}
	if required := v.includers.StakeRequired(); stake < required {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientStake, stake, required)
	}
	return nil
}
