// Package crypto provides the signing primitives used to authenticate
// votes, proposals and blocks.
//
// Reimint reuses Ethereum's secp256k1/keccak256 stack rather than the
// ed25519 keys used by cometbft's tmhash/ed25519 packages, since the
// chain this consensus engine drives is Ethereum-compatible end to end:
// validator addresses are 20-byte Keccak addresses and signatures are
// recoverable, so a vote can be authenticated without shipping the
// signer's public key alongside it.
package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length, in bytes, of a recoverable secp256k1
// signature: 32 (R) + 32 (S) + 1 (V).
const SignatureLength = 65

// PrivKey is a secp256k1 private key used to sign votes, proposals and
// blocks on behalf of a validator.
type PrivKey struct {
	key *ecdsa.PrivateKey
}

// GenPrivKey generates a new private key using OS randomness.
func GenPrivKey() (PrivKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return PrivKey{}, err
	}
	return PrivKey{key: key}, nil
}

// PrivKeyFromBytes loads a private key from its raw 32-byte representation.
func PrivKeyFromBytes(b []byte) (PrivKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return PrivKey{}, err
	}
	return PrivKey{key: key}, nil
}

// Bytes returns the raw 32-byte private scalar.
func (pk PrivKey) Bytes() []byte {
	return ethcrypto.FromECDSA(pk.key)
}

// PubKey derives the public key.
func (pk PrivKey) PubKey() PubKey {
	return PubKey{key: &pk.key.PublicKey}
}

// Address is a convenience for PubKey().Address().
func (pk PrivKey) Address() common.Address {
	return pk.PubKey().Address()
}

// Sign produces a 65-byte recoverable signature over keccak256(msg).
func (pk PrivKey) Sign(msg []byte) ([]byte, error) {
	return ethcrypto.Sign(ethcrypto.Keccak256(msg), pk.key)
}

// PubKey is a secp256k1 public key.
type PubKey struct {
	key *ecdsa.PublicKey
}

// Address returns the Ethereum-style address: the last 20 bytes of
// keccak256 of the uncompressed public key (sans the 0x04 prefix).
func (pub PubKey) Address() common.Address {
	if pub.key == nil {
		return common.Address{}
	}
	return ethcrypto.PubkeyToAddress(*pub.key)
}

func (pub PubKey) Bytes() []byte {
	if pub.key == nil {
		return nil
	}
	return ethcrypto.FromECDSAPub(pub.key)
}

// VerifySignature checks a 65-byte recoverable signature over
// keccak256(msg) against this public key.
func (pub PubKey) VerifySignature(msg, sig []byte) bool {
	if len(sig) != SignatureLength {
		return false
	}
	hash := ethcrypto.Keccak256(msg)
	return ethcrypto.VerifySignature(pub.Bytes(), hash, sig[:64])
}

// RecoverAddress recovers the signer address from a 65-byte recoverable
// signature over keccak256(msg). Used to validate votes and proposals
// without needing the signer's public key to be carried on the wire.
func RecoverAddress(msg, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("crypto: invalid signature length %d", len(sig))
	}
	pub, err := ethcrypto.SigToPub(ethcrypto.Keccak256(msg), sig)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
