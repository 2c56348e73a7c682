package types

// Payout is one leg of a payment split: an amount credited to an identity.
type Payout struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	// Reference ties the payout to the operation that produced it, e.g. "purchase:42".
	Reference string `json:"reference"`
}
