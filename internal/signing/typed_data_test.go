package signing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

func testDomain() Domain {
	return Domain{
		ChainID:           1337,
		VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000001"),
	}
}

func TestVerifyChoiceAcceptsValidSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	domain := testDomain()

	td := apitypes.TypedData{
		Types:       matchChoiceTypes,
		PrimaryType: "MatchChoice",
		Domain:      domain.typedDataDomain(),
		Message: apitypes.TypedDataMessage{
			"matchId": "42",
			"choice":  "1",
			"nonce":   "7",
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifyChoice(domain, 42, 1, 7, sig, addr)
	if err != nil {
		t.Fatalf("VerifyChoice returned error: %v", err)
	}
	if !ok {
		t.Error("expected valid signature to verify")
	}
}

func TestVerifyChoiceRejectsWrongSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	otherAddr := crypto.PubkeyToAddress(other.PublicKey)
	domain := testDomain()

	td := BuildChoicePayload(domain, 1, 1)
	td.Message["choice"] = "2"
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifyChoice(domain, 1, 2, 1, sig, otherAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected signature from a different key to fail verification")
	}
}

func TestVerifyChoiceRejectsTamperedChoice(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	domain := testDomain()

	td := BuildChoicePayload(domain, 1, 1)
	td.Message["choice"] = "2" // agent signs STEAL
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Verify against a different claimed choice (SPLIT=1 instead of STEAL=2).
	ok, err := VerifyChoice(domain, 1, 1, 1, sig, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a tampered choice to fail verification")
	}
}

func TestVerifyChoiceRejectsWrongLengthSignature(t *testing.T) {
	domain := testDomain()
	_, err := VerifyChoice(domain, 1, 1, 1, []byte{1, 2, 3}, common.Address{})
	if err == nil {
		t.Error("expected an error for a non-65-byte signature")
	}
}

func TestVerifyTournamentJoinRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	domain := testDomain()

	td := BuildTournamentJoinPayload(domain, 9, 3)
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifyTournamentJoin(domain, 9, 3, sig, addr)
	if err != nil {
		t.Fatalf("VerifyTournamentJoin returned error: %v", err)
	}
	if !ok {
		t.Error("expected valid tournament join signature to verify")
	}
}

func TestGenerateCommitHashDeterministic(t *testing.T) {
	salt, err := GenerateMatchSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	sig := []byte("fake-signature-bytes")

	h1 := GenerateCommitHash(sig, salt)
	h2 := GenerateCommitHash(sig, salt)
	if h1 != h2 {
		t.Error("commit hash should be deterministic for the same inputs")
	}

	other, err := GenerateMatchSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if h3 := GenerateCommitHash(sig, other); h3 == h1 {
		t.Error("commit hash should differ when the salt differs")
	}
}
