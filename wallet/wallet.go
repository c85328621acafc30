package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filswan/go-swan-lib/logs"
	"github.com/lagrangedao/go-compute-market/constants"
	"golang.org/x/xerrors"
)

const (
	KNamePrefix = "wallet-"
)

var (
	ErrKeyInfoNotFound = fmt.Errorf("key info not found")
	ErrKeyExists       = fmt.Errorf("key already exists")
)

var reAddress = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// SetupWallet opens the keystore under the market repo.
func SetupWallet(repoPath string) (*LocalWallet, error) {
	kstore, err := OpenOrInitKeystore(filepath.Join(repoPath, constants.KEYSTORE_DIR))
	if err != nil {
		return nil, err
	}
	return NewWallet(kstore), nil
}

type LocalWallet struct {
	keys     map[string]*KeyInfo
	keystore KeyStore

	lk sync.Mutex
}

func NewWallet(keystore KeyStore) *LocalWallet {
	return &LocalWallet{
		keys:     make(map[string]*KeyInfo),
		keystore: keystore,
	}
}

// Close releases the keystore when it holds resources.
func (w *LocalWallet) Close() error {
	if c, ok := w.keystore.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// WalletSign returns the hex encoded signature of msg by addr.
func (w *LocalWallet) WalletSign(ctx context.Context, addr string, msg []byte) (string, error) {
	ki, err := w.findKey(addr)
	if err != nil {
		return "", err
	}
	if ki == nil {
		return "", xerrors.Errorf("signing using private key '%s': %w", addr, ErrKeyInfoNotFound)
	}
	sig, err := Sign(ki.PrivateKey, msg)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (w *LocalWallet) WalletVerify(ctx context.Context, addr string, sigByte []byte, data string) (bool, error) {
	return Verify(addr, sigByte, []byte(data))
}

func (w *LocalWallet) findKey(addr string) (*KeyInfo, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	addr = NormalizeAddress(addr)
	k, ok := w.keys[addr]
	if ok {
		return k, nil
	}
	if w.keystore == nil {
		logs.GetLogger().Warn("findKey didn't find the key in in-memory wallet")
		return nil, nil
	}

	ki, err := w.keystore.Get(KNamePrefix + addr)
	if err != nil {
		if xerrors.Is(err, ErrKeyInfoNotFound) {
			return nil, nil
		}
		return nil, xerrors.Errorf("getting from keystore: %w", err)
	}

	w.keys[addr] = &ki
	return &ki, nil
}

func (w *LocalWallet) WalletExport(ctx context.Context, addr string) (*KeyInfo, error) {
	k, err := w.findKey(addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to find key to export: %w", err)
	}
	if k == nil {
		return nil, xerrors.Errorf("private key not found for %s: %w", addr, ErrKeyInfoNotFound)
	}

	return k, nil
}

func (w *LocalWallet) WalletImport(ctx context.Context, ki *KeyInfo) (string, error) {
	if ki == nil || len(strings.TrimSpace(ki.PrivateKey)) == 0 {
		return "", fmt.Errorf("not found private key")
	}
	key := KeyInfo{PrivateKey: strings.TrimPrefix(strings.TrimSpace(ki.PrivateKey), "0x")}

	_, publicKeyECDSA, err := ToPublic(key.PrivateKey)
	if err != nil {
		return "", err
	}
	address := crypto.PubkeyToAddress(*publicKeyECDSA).Hex()

	existing, err := w.findKey(address)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", xerrors.Errorf("importing %s: %w", address, ErrKeyExists)
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	if err := w.keystore.Put(KNamePrefix+address, key); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[address] = &key
	return address, nil
}

// WalletList returns the addresses held by the keystore, sorted.
func (w *LocalWallet) WalletList(ctx context.Context) ([]string, error) {
	all, err := w.keystore.List()
	if err != nil {
		return nil, xerrors.Errorf("listing keystore: %w", err)
	}

	addressList := make([]string, 0, len(all))
	for _, a := range all {
		if strings.HasPrefix(a, KNamePrefix) {
			addressList = append(addressList, strings.TrimPrefix(a, KNamePrefix))
		}
	}
	sort.Strings(addressList)
	return addressList, nil
}

func (w *LocalWallet) WalletNew(ctx context.Context) (string, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	privateK, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	privateKeyBytes := crypto.FromECDSA(privateK)
	privateKey := hexutil.Encode(privateKeyBytes)[2:]
	address := crypto.PubkeyToAddress(privateK.PublicKey).Hex()

	keyInfo := KeyInfo{PrivateKey: privateKey}
	if err := w.keystore.Put(KNamePrefix+address, keyInfo); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[address] = &keyInfo

	return address, nil
}

func (w *LocalWallet) WalletDelete(ctx context.Context, addr string) error {
	k, err := w.findKey(addr)
	if err != nil {
		return xerrors.Errorf("wallet delete: failed to delete key %s : %w", addr, err)
	}
	if k == nil {
		return nil // already not there
	}

	w.lk.Lock()
	defer w.lk.Unlock()

	addr = NormalizeAddress(addr)
	if err := w.keystore.Delete(KNamePrefix + addr); err != nil {
		return xerrors.Errorf("wallet delete: failed to delete key %s: %w", addr, err)
	}
	delete(w.keys, addr)

	return nil
}

// NormalizeAddress maps any valid spelling of an address to its checksummed form.
func NormalizeAddress(addr string) string {
	if IsAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
