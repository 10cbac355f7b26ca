package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RequestSigner signs ledger write requests with the engine's secp256k1 key
// so the gateway can verify the caller is the authorized resolver.
type RequestSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key (0x prefix optional) into a signer.
func NewSigner(privateKeyHex string) (*RequestSigner, error) {
	keyHex := strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X")
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse signing key: %w", err)
	}
	return &RequestSigner{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the resolver address derived from the signing key.
func (s *RequestSigner) Address() common.Address {
	return s.address
}

// Sign returns the hex-encoded secp256k1 signature over the keccak256 digest
// of payload.
func (s *RequestSigner) Sign(payload []byte) (string, error) {
	digest := ethcrypto.Keccak256(payload)
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign request: %w", err)
	}
	return hexutil.Encode(sig), nil
}
