package auth

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyResult is the outcome of verifying a challenge response.
type VerifyResult struct {
	Valid   bool
	Address string
}

// VerifyChallenge checks that signature is a valid personal_sign (EIP-191)
// signature of the stored challenge text by claimedAddress. Missing or
// expired challenges, or a signature recovering to a different address,
// both yield {valid:false} without revealing which.
func (s *ChallengeStore) VerifyChallenge(challengeID, claimedAddress string, signature []byte) VerifyResult {
	c, ok := s.Peek(challengeID)
	if !ok {
		return VerifyResult{Valid: false}
	}

	recovered, err := recoverPersonalSign(c.Challenge, signature)
	if err != nil {
		return VerifyResult{Valid: false}
	}

	if !strings.EqualFold(recovered, claimedAddress) {
		return VerifyResult{Valid: false}
	}

	s.Consume(challengeID)
	return VerifyResult{Valid: true, Address: normalizeAddress(recovered)}
}

// recoverPersonalSign recovers the signing address of a standard
// Ethereum personal_sign message (prefixed with
// "\x19Ethereum Signed Message:\n<len>").
func recoverPersonalSign(message string, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", errInvalidSignatureLength
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

var errInvalidSignatureLength = errBadSignature("signature must be 65 bytes")

type errBadSignature string

func (e errBadSignature) Error() string { return string(e) }
