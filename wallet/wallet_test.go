package wallet

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(t *testing.T) *LocalWallet {
	ks, err := OpenOrInitKeystore(filepath.Join(t.TempDir(), "keystore"))
	require.NoError(t, err)
	w := NewWallet(ks)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWalletLifecycle(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t)

	addr, err := w.WalletNew(ctx)
	require.NoError(t, err)
	assert.True(t, IsAddress(addr))

	list, err := w.WalletList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, list)

	ki, err := w.WalletExport(ctx, strings.ToLower(addr))
	require.NoError(t, err)

	_, err = w.WalletImport(ctx, ki)
	assert.ErrorIs(t, err, ErrKeyExists)

	require.NoError(t, w.WalletDelete(ctx, addr))
	_, err = w.WalletExport(ctx, addr)
	assert.ErrorIs(t, err, ErrKeyInfoNotFound)

	imported, err := w.WalletImport(ctx, &KeyInfo{PrivateKey: "0x" + ki.PrivateKey + "\n"})
	require.NoError(t, err)
	assert.Equal(t, addr, imported)
}

func TestWalletSignVerify(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t)

	addr, err := w.WalletNew(ctx)
	require.NoError(t, err)
	other, err := w.WalletNew(ctx)
	require.NoError(t, err)

	sig, err := w.WalletSign(ctx, addr, []byte("hello market"))
	require.NoError(t, err)
	sigBytes, err := hexutil.Decode(sig)
	require.NoError(t, err)

	ok, err := w.WalletVerify(ctx, addr, sigBytes, "hello market")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.WalletVerify(ctx, other, sigBytes, "hello market")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.WalletVerify(ctx, addr, sigBytes, "tampered")
	require.NoError(t, err)
	assert.False(t, ok)

	signer, err := Recover(sigBytes, []byte("hello market"))
	require.NoError(t, err)
	assert.Equal(t, addr, signer)

	_, err = w.WalletSign(ctx, "0x0000000000000000000000000000000000000001", []byte("x"))
	assert.ErrorIs(t, err, ErrKeyInfoNotFound)
}

func TestKeystoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := SetupWallet(dir)
	require.NoError(t, err)
	addr, err := w.WalletNew(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = SetupWallet(dir)
	require.NoError(t, err)
	defer w.Close()
	list, err := w.WalletList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, list)
}
