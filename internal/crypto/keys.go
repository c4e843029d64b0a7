package crypto

import (
	"crypto/ed25519"
)

// Signature contexts provide domain separation between the different
// message families signed with the same operator keys.
const (
	SignatureContextReceipt  = "irsb_receipt"
	SignatureContextEvidence = "irsb_evidence"
)

type Ed25519Signature [ed25519.SignatureSize]byte

// SignHash signs a content hash under the given context with an operator key.
func SignHash(priv ed25519.PrivateKey, context string, hash Hash) Ed25519Signature {
	message := append([]byte(context), hash[:]...)
	var sig Ed25519Signature
	copy(sig[:], ed25519.Sign(priv, message))
	return sig
}

// VerifyHashSignature verifies a context-separated signature over a content hash.
func VerifyHashSignature(pub ed25519.PublicKey, context string, hash Hash, sig Ed25519Signature) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	message := append([]byte(context), hash[:]...)
	return ed25519.Verify(pub, message, sig[:])
}
