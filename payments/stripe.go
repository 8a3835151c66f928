package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/transfer"
)

// StripeProvider реализует CheckoutGateway, ProofVerifier и PayoutProvider
// поверх Stripe. Суммы везде в минимальных единицах валюты (центы/пайсы),
// конвертация не нужна.
type StripeProvider struct {
	currency string
}

func NewStripeProvider(secretKey, currency string) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if currency == "" {
		currency = "inr"
	}
	stripe.Key = secretKey
	return &StripeProvider{currency: currency}, nil
}

func (p *StripeProvider) OpenCheckout(ctx context.Context, amount int64, currency string, meta CheckoutMetadata) (*ProviderProof, error) {
	if currency == "" {
		currency = p.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata("tournament_id", meta.TournamentID)
	params.AddMetadata("registration_id", meta.RegistrationID)
	params.AddMetadata("transaction_id", meta.TransactionID)
	if meta.Email != "" {
		params.AddMetadata("email", meta.Email)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	if pi.Status == stripe.PaymentIntentStatusCanceled {
		return nil, ErrCheckoutCancelled
	}

	return &ProviderProof{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
	}, nil
}

func (p *StripeProvider) Verify(ctx context.Context, proof *ProviderProof, transactionID string) (*VerificationResult, error) {
	if proof == nil || proof.PaymentIntentID == "" {
		return nil, errors.New("provider proof is empty")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(proof.PaymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent %s: %w", proof.PaymentIntentID, err)
	}

	// Платёж засчитывается только если провайдер сам привязал intent
	// к нашей транзакции: защита от подмены чужого доказательства.
	if got := pi.Metadata["transaction_id"]; got != transactionID {
		return &VerificationResult{Success: false, Reason: "payment does not belong to this transaction"}, nil
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &VerificationResult{Success: true}, nil
	case stripe.PaymentIntentStatusCanceled:
		return &VerificationResult{Success: false, Reason: "payment was cancelled at the provider"}, nil
	default:
		return &VerificationResult{Success: false, Reason: fmt.Sprintf("payment not completed, provider status: %s", pi.Status)}, nil
	}
}

func (p *StripeProvider) Payout(ctx context.Context, destinationAccountID string, amount int64, memo string) (string, error) {
	if destinationAccountID == "" {
		return "", errors.New("destination account id is required")
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(p.currency),
		Destination: stripe.String(destinationAccountID),
		Description: stripe.String(memo),
	}
	params.Context = ctx

	tr, err := transfer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create transfer: %w", err)
	}
	return tr.ID, nil
}
