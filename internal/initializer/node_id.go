package initializer

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lagrangedao/go-compute-market/constants"
	"golang.org/x/xerrors"
)

// GenerateNodeID loads the node key from the repo, creating it on first
// start, and returns the node id (uncompressed public key) and address.
func GenerateNodeID(repoPath string) (string, string, error) {
	privateKeyPath := filepath.Join(repoPath, constants.NODE_KEY_FILE)
	var privateKeyBytes []byte

	if _, err := os.Stat(privateKeyPath); err == nil {
		privateKeyBytes, err = os.ReadFile(privateKeyPath)
		if err != nil {
			return "", "", xerrors.Errorf("reading private key: %w", err)
		}
	} else {
		privateKeyBytes = make([]byte, 32)
		if _, err := rand.Read(privateKeyBytes); err != nil {
			return "", "", xerrors.Errorf("generating random key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(privateKeyPath), 0700); err != nil {
			return "", "", xerrors.Errorf("creating directory for private key: %w", err)
		}
		if err := os.WriteFile(privateKeyPath, privateKeyBytes, 0600); err != nil {
			return "", "", xerrors.Errorf("writing private key: %w", err)
		}
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return "", "", xerrors.Errorf("converting private key bytes: %w", err)
	}
	nodeID := hex.EncodeToString(crypto.FromECDSAPub(&privateKey.PublicKey))
	address := crypto.PubkeyToAddress(privateKey.PublicKey).String()
	return nodeID, address, nil
}
