// internal/domain/requests.go
package domain

// CreditRequest is a validated quest-reward credit.
type CreditRequest struct {
	Account AccountKey
	Amount  Amount
}

// TransferRequest is a validated peer-to-peer transfer.
type TransferRequest struct {
	From   AccountKey
	To     AccountKey
	Amount Amount
}
