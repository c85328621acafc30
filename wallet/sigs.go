package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sign signs keccak256(msg) with the hex encoded private key. The result is
// the 65 byte [R || S || V] form.
func Sign(privatekey string, msg []byte) ([]byte, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return nil, err
	}

	hash := crypto.Keccak256Hash(msg)
	return crypto.Sign(hash.Bytes(), privateKey)
}

// Recover returns the checksummed address that produced sig over msg.
func Recover(sig []byte, msg []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length: %d", len(sig))
	}
	hash := crypto.Keccak256Hash(msg)
	publicKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*publicKey).Hex(), nil
}

// Verify reports whether sig over msg was made by addr.
func Verify(addr string, sig []byte, msg []byte) (bool, error) {
	if !IsAddress(addr) {
		return false, fmt.Errorf("invalid address: %s", addr)
	}
	signer, err := Recover(sig, msg)
	if err != nil {
		return false, err
	}
	return signer == common.HexToAddress(addr).Hex(), nil
}

func IsAddress(addr string) bool {
	return reAddress.MatchString(addr)
}

// ToPublic converts private key to public key
func ToPublic(priv string) (string, *ecdsa.PublicKey, error) {
	if len(strings.TrimSpace(priv)) == 0 {
		return "", nil, fmt.Errorf("invalid private key")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(priv), "0x"))
	if err != nil {
		return "", nil, err
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", nil, fmt.Errorf("cannot assert type: publicKey is not of type *ecdsa.PublicKey")
	}

	publicKeyBytes := crypto.FromECDSAPub(publicKeyECDSA)
	publicK := hexutil.Encode(publicKeyBytes)[4:]
	return publicK, publicKeyECDSA, nil
}
