package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// nativeAssets maps a network to the symbol its gas is paid in.
var nativeAssets = map[string]string{
	"ethereum": "ETH",
	"arbitrum": "ETH",
	"optimism": "ETH",
	"base":     "ETH",
	"polygon":  "POL",
	"bsc":      "BNB",
}

// NativeAsset returns the gas token symbol for network, or "" if unknown.
func NativeAsset(network string) string {
	return nativeAssets[strings.ToLower(network)]
}

type gasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracle turns the node's suggested gas price into a per-transaction USD cost.
type GasOracle struct {
	rpc      gasPricer
	closer   func()
	network  string
	gasLimit uint64
	gasMul   float64
}

func DialGasOracle(rpcURL, network string, gasLimit uint64, gasMultiplier float64) (*GasOracle, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	o := NewGasOracle(rpc, network, gasLimit, gasMultiplier)
	o.closer = rpc.Close
	return o, nil
}

func NewGasOracle(rpc gasPricer, network string, gasLimit uint64, gasMultiplier float64) *GasOracle {
	if gasMultiplier <= 0 {
		gasMultiplier = 1
	}
	return &GasOracle{
		rpc:      rpc,
		network:  strings.ToLower(network),
		gasLimit: gasLimit,
		gasMul:   gasMultiplier,
	}
}

func (o *GasOracle) Network() string  { return o.network }
func (o *GasOracle) GasLimit() uint64 { return o.gasLimit }

func (o *GasOracle) Close() {
	if o.closer != nil {
		o.closer()
	}
}

// GasPrice returns the suggested gas price in wei with the multiplier applied.
func (o *GasOracle) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := o.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	mul := new(big.Float).SetFloat64(o.gasMul)
	adjusted := new(big.Float).Mul(new(big.Float).SetInt(price), mul)
	result, _ := adjusted.Int(nil)
	return result, nil
}

func (o *GasOracle) GasPriceGwei(ctx context.Context) (float64, error) {
	wei, err := o.GasPrice(ctx)
	if err != nil {
		return 0, err
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.GWei)).Float64()
	return gwei, nil
}

// EstimateCostUSD prices one transaction at the gas limit, given the native token's
// USD price.
func (o *GasOracle) EstimateCostUSD(ctx context.Context, nativeUSD float64) (float64, error) {
	if nativeUSD <= 0 {
		return 0, fmt.Errorf("native token price must be positive, got %f", nativeUSD)
	}
	wei, err := o.GasPrice(ctx)
	if err != nil {
		return 0, err
	}
	fee := new(big.Float).Mul(new(big.Float).SetInt(wei), new(big.Float).SetUint64(o.gasLimit))
	native, _ := new(big.Float).Quo(fee, big.NewFloat(params.Ether)).Float64()
	return native * nativeUSD, nil
}
