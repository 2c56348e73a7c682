package ledger

import (
	"context"
	"fmt"
	"math/bits"
	"slices"

	"github.com/helix-tools/ledger-go/types"
)

// SplitPayment divides a payment into the platform fee, floor(amount*feeRate/1000),
// and the seller's remainder. feeRate must not exceed MaxFeeRate.
func SplitPayment(amount, feeRate uint64) (fee, sellerAmount uint64) {
	// hi < feeRate <= 1000, so the 128-bit quotient fits in 64 bits.
	hi, lo := bits.Mul64(amount, feeRate)
	fee, _ = bits.Div64(hi, lo, 1000)

	return fee, amount - fee
}

// settle pays out one payment: fee to the operator, remainder to the seller.
// It runs before any state is written so a failure leaves nothing behind.
func (l *Ledger) settle(ctx context.Context, op, kind, reference, seller string, amount uint64) (fee, sellerAmount uint64, err error) {
	fee, sellerAmount = SplitPayment(amount, l.feeRate)

	payouts := []types.Payout{
		{To: l.operator, Amount: fee, Reference: reference},
		{To: seller, Amount: sellerAmount, Reference: reference},
	}
	if err := l.payments.Transfer(ctx, payouts); err != nil {
		return 0, 0, &Error{Kind: ErrTransferFailure, Op: op, Msg: "payout could not be delivered", Err: err}
	}

	l.metrics.paymentVolume.WithLabelValues(kind).Add(float64(amount))
	l.metrics.feesCollected.Add(float64(fee))

	return fee, sellerAmount, nil
}

// PurchaseDataset buys one-time access to an active dataset. payment must be at
// least the listed price; the full payment is split, overpayment is not refunded.
func (l *Ledger) PurchaseDataset(ctx context.Context, caller string, id, payment uint64) (receipt types.PurchaseReceipt, err error) {
	const op = "PurchaseDataset"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if err := requireCaller(op, caller); err != nil {
		return types.PurchaseReceipt{}, err
	}

	ds, err := l.activeDataset(op, id)
	if err != nil {
		return types.PurchaseReceipt{}, err
	}
	if payment < ds.Price {
		return types.PurchaseReceipt{}, newError(ErrInsufficientPayment, op, "paid %d, price is %d", payment, ds.Price)
	}

	fee, sellerAmount, err := l.settle(ctx, op, "purchase", fmt.Sprintf("purchase:%d", id), ds.Owner, payment)
	if err != nil {
		return types.PurchaseReceipt{}, err
	}

	l.userPurchases[caller] = append(l.userPurchases[caller], id)
	l.emit(ctx, types.Event{
		Type:         types.EventDatasetPurchased,
		Actor:        caller,
		DatasetID:    id,
		User:         caller,
		Amount:       payment,
		Fee:          fee,
		SellerAmount: sellerAmount,
	})

	return types.PurchaseReceipt{
		DatasetID:    id,
		Buyer:        caller,
		Seller:       ds.Owner,
		Amount:       payment,
		Fee:          fee,
		SellerAmount: sellerAmount,
	}, nil
}

// hasPurchased scans user's purchase index for id.
func (l *Ledger) hasPurchased(user string, id uint64) bool {
	return slices.Contains(l.userPurchases[user], id)
}
