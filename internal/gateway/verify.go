package gateway

import "crypto/ed25519"

// Verifier checks a client signature against the key the canister holds
// for that client.
type Verifier interface {
	Verify(pubKey, msg, sig []byte) bool
}

type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(pubKey, msg, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig)
}
