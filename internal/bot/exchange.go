package bot

import (
	"context"
	"errors"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

var (
	ErrUnknownOrder        = errors.New("unknown order")
	ErrOrderNotCancellable = errors.New("order is not cancellable")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

type OrderRequest struct {
	StrategyID string
	Wallet     string
	Pair       string
	Side       models.OrderSide
	Price      float64
	// Amount is the base-asset quantity.
	Amount float64
}

// Fill is the exchange's view of an order.
type Fill struct {
	OrderID       string
	Status        models.OrderStatus
	ExecutedPrice float64
	Amount        float64
	// Fee is charged in the quote asset.
	Fee      float64
	TxHash   string
	GasUsed  uint64
	GasPrice float64
}

// Exchange places and tracks orders on behalf of a wallet.
type Exchange interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (*Fill, error)
}
