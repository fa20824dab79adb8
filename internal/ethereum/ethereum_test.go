package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPricer struct {
	wei *big.Int
	err error
}

func (f fixedPricer) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.wei, f.err
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestGasOracle_EstimateCostUSD(t *testing.T) {
	o := NewGasOracle(fixedPricer{wei: gwei(100)}, "Ethereum", 150000, 1)
	cost, err := o.EstimateCostUSD(context.Background(), 2000)
	require.NoError(t, err)
	// 100 gwei x 150k gas = 0.015 ETH
	assert.InDelta(t, 30.0, cost, 1e-9)
	assert.Equal(t, "ethereum", o.Network())
}

func TestGasOracle_MultiplierApplies(t *testing.T) {
	o := NewGasOracle(fixedPricer{wei: gwei(10)}, "arbitrum", 100000, 1.5)
	g, err := o.GasPriceGwei(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 15.0, g, 1e-9)

	// a non-positive multiplier means none
	o = NewGasOracle(fixedPricer{wei: gwei(10)}, "arbitrum", 100000, 0)
	g, err = o.GasPriceGwei(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, g, 1e-9)
}

func TestGasOracle_Errors(t *testing.T) {
	o := NewGasOracle(fixedPricer{err: errors.New("rpc down")}, "base", 100000, 1)
	_, err := o.EstimateCostUSD(context.Background(), 2000)
	assert.ErrorContains(t, err, "rpc down")

	o = NewGasOracle(fixedPricer{wei: gwei(1)}, "base", 100000, 1)
	_, err = o.EstimateCostUSD(context.Background(), 0)
	assert.Error(t, err)
}

func TestNativeAsset(t *testing.T) {
	assert.Equal(t, "ETH", NativeAsset("Arbitrum"))
	assert.Equal(t, "BNB", NativeAsset("bsc"))
	assert.Empty(t, NativeAsset("solana"))
}

func TestKeystore_DecryptKey(t *testing.T) {
	dir := t.TempDir()
	raw := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	acc, err := raw.NewAccount("s3cret")
	require.NoError(t, err)

	ks, err := OpenKeystore(dir)
	require.NoError(t, err)
	addr := acc.Address.Hex()
	assert.True(t, ks.Has(addr))
	assert.Contains(t, ks.Addresses(), addr)

	key, err := ks.DecryptKey(addr, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, acc.Address, crypto.PubkeyToAddress(key.PublicKey))

	_, err = ks.DecryptKey(addr, "wrong")
	assert.ErrorIs(t, err, keystore.ErrDecrypt)

	_, err = ks.DecryptKey("0x0000000000000000000000000000000000000001", "s3cret")
	assert.ErrorIs(t, err, ErrUnknownAccount)
	assert.NotContains(t, err.Error(), "0x0000000000000000000000000000000000000001")

	_, err = ks.DecryptKey("not-an-address", "s3cret")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "not-an-address")
	assert.False(t, ks.Has("not-an-address"))
}

func TestOpenKeystore_MissingDir(t *testing.T) {
	_, err := OpenKeystore(t.TempDir() + "/missing")
	assert.Error(t, err)
}
