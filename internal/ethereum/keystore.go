package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownAccount = errors.New("account not in keystore")

// Keystore reads encrypted wallet keys from a geth-style keystore directory.
type Keystore struct {
	ks *keystore.KeyStore
}

func OpenKeystore(dir string) (*Keystore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open keystore: %s is not a directory", dir)
	}
	return &Keystore{ks: keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)}, nil
}

// Addresses lists the wallets held in the keystore.
func (k *Keystore) Addresses() []string {
	accs := k.ks.Accounts()
	out := make([]string, len(accs))
	for i, a := range accs {
		out[i] = a.Address.Hex()
	}
	return out
}

func (k *Keystore) Has(address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	return k.ks.HasAddress(common.HexToAddress(address))
}

// DecryptKey returns the private key for address. The key never leaves the caller.
func (k *Keystore) DecryptKey(address, password string) (*ecdsa.PrivateKey, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.New("decrypt key: invalid address")
	}
	acc, err := k.ks.Find(accounts.Account{Address: common.HexToAddress(address)})
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", ErrUnknownAccount)
	}
	blob, err := os.ReadFile(acc.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: read key file: %w", err)
	}
	key, err := keystore.DecryptKey(blob, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	return key.PrivateKey, nil
}
