package project

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
)

// SignatureSize is the length of one compact ECDSA segment.
const SignatureSize = 65

// AddressFromPubKey derives the hex hash160 identity for a public key.
func AddressFromPubKey(pub *btcec.PublicKey) Address {
	return Address(hex.EncodeToString(btcutil.Hash160(pub.SerializeCompressed())))
}

// RecoverSigner recovers the identity that produced a compact signature
// over the given digest.
func RecoverSigner(sig, digest []byte) (Address, error) {
	if len(sig) != SignatureSize {
		return ZeroAddress, fmt.Errorf("recover signer: bad length %d", len(sig))
	}
	pub, _, err := ecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return ZeroAddress, fmt.Errorf("recover signer: %w", err)
	}
	return AddressFromPubKey(pub), nil
}

// splitSignatures cuts the blob into fixed 65-byte segments, one per
// expected signer. Trailing segments may be absent; the blob length must
// still be a multiple of the segment size.
func splitSignatures(blob []byte, n int) ([][]byte, error) {
	if len(blob)%SignatureSize != 0 || len(blob) > n*SignatureSize {
		return nil, ErrInvalidSignature
	}
	segs := make([][]byte, 0, n)
	for off := 0; off < len(blob); off += SignatureSize {
		segs = append(segs, blob[off:off+SignatureSize])
	}
	return segs, nil
}

func isZeroSegment(seg []byte) bool {
	for _, b := range seg {
		if b != 0 {
			return false
		}
	}
	return true
}

// hashApproved reports whether the signer pre-approved the digest.
func (p *Project) hashApproved(signer Address, digest []byte) bool {
	if p.ApprovedHashes == nil {
		return false
	}
	return p.ApprovedHashes[signer][hex.EncodeToString(digest)]
}

// verifyAuthorization checks the signature blob against the ordered
// required-signer list. Each segment must recover to its expected signer;
// a missing or all-zero segment passes only if that signer pre-approved
// the digest. Any position failing both paths rejects the call.
func (p *Project) verifyAuthorization(expected []Address, digest, sigs []byte) error {
	segs, err := splitSignatures(sigs, len(expected))
	if err != nil {
		return err
	}
	for i, signer := range expected {
		if signer == ZeroAddress {
			return ErrInvalidSignature
		}
		var seg []byte
		if i < len(segs) {
			seg = segs[i]
		}
		if seg == nil || isZeroSegment(seg) {
			if p.hashApproved(signer, digest) {
				continue
			}
			return ErrInvalidSignature
		}
		got, err := RecoverSigner(seg, digest)
		if err != nil || got != signer {
			return ErrInvalidSignature
		}
	}
	return nil
}

// projectSigners is the ordered signer list for project-scope actions.
// Without an accepted contractor the builder signs alone; a delegated
// contractor signs alone; otherwise builder then contractor.
func (p *Project) projectSigners() []Address {
	if p.Contractor == ZeroAddress || !p.ContractorConfirmed {
		return []Address{p.Builder}
	}
	if p.ContractorDelegated {
		return []Address{p.Contractor}
	}
	return []Address{p.Builder, p.Contractor}
}

// taskSigners extends the project table with the subcontractor once the
// task is confirmed.
func (p *Project) taskSigners(t *Task) []Address {
	signers := p.projectSigners()
	if t.State >= TaskActive && t.Subcontractor != ZeroAddress {
		signers = append(signers, t.Subcontractor)
	}
	return signers
}
