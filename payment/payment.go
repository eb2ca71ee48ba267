// Package payment tops up citizen wallets through Stripe. A wallet is only
// credited from a verified webhook, keyed on the PaymentIntent id.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
)

// DefaultMinTopUp is the smallest accepted top-up in major units
const DefaultMinTopUp int64 = 10

// DefaultCurrency is used when none is configured
const DefaultCurrency = "inr"

const metadataUser = "userId"

// IntentCreator creates Stripe PaymentIntents
type IntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntents struct{}

func (stripeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

// Notifier tells a user their wallet was credited
type Notifier interface {
	Notify(ctx context.Context, recipient string, kind models.NotificationType, title, body string)
}

// Config holds the Stripe credentials and limits
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	MinTopUp      int64
	Intents       IntentCreator
	Notifier      Notifier
}

// Service creates top-up orders and applies confirmed payments
type Service struct {
	ledger        *ledger.Ledger
	intents       IntentCreator
	notifier      Notifier
	webhookSecret string
	currency      string
	minTopUp      int64
}

// TopUpOrder is returned to the client to confirm the payment
type TopUpOrder struct {
	Success      bool   `json:"success"`
	OrderID      string `json:"orderId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// New returns a payment service. The secret key is installed globally on
// the stripe client.
func New(l *ledger.Ledger, cfg Config) *Service {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	s := &Service{
		ledger:        l,
		intents:       cfg.Intents,
		notifier:      cfg.Notifier,
		webhookSecret: cfg.WebhookSecret,
		currency:      strings.ToLower(cfg.Currency),
		minTopUp:      cfg.MinTopUp,
	}
	if s.intents == nil {
		s.intents = stripeIntents{}
	}
	if s.currency == "" {
		s.currency = DefaultCurrency
	}
	if s.minTopUp <= 0 {
		s.minTopUp = DefaultMinTopUp
	}
	return s
}

// CreateTopUp opens a PaymentIntent for amount major units. Nothing is
// credited until the webhook confirms the payment.
func (s *Service) CreateTopUp(_ context.Context, actor lifecycle.Actor, amount int64) (*TopUpOrder, error) {
	if actor.Role != models.RoleCitizen {
		return nil, models.Errorf(models.KindForbidden, "only citizens can top up a wallet")
	}
	if amount < s.minTopUp {
		return nil, models.Errorf(models.KindBadRequest, "minimum top-up amount is %d", s.minTopUp)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount * 100),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(metadataUser, actor.ID)
	params.AddMetadata("purpose", "wallet_topup")

	pi, err := s.intents.New(params)
	if err != nil {
		zap.S().Errorw("failed to create payment intent", "user", actor.ID, "amount", amount, "error", err)
		return nil, fmt.Errorf("could not create payment order: %w", err)
	}
	zap.S().Infow("payment intent created", "user", actor.ID, "orderId", pi.ID, "amount", amount)
	return &TopUpOrder{
		Success:      true,
		OrderID:      pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       amount,
		Currency:     s.currency,
	}, nil
}

// HandleWebhook verifies a Stripe event and credits the wallet for a
// succeeded PaymentIntent. Redelivered events are acknowledged without a
// second credit. It returns the resulting entry, or nil when nothing was
// credited.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*models.LedgerEntry, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, models.Errorf(models.KindBadRequest, "invalid webhook signature")
	}
	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		zap.S().Debugw("ignoring stripe event", "type", event.Type)
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, models.Errorf(models.KindBadRequest, "malformed payment intent")
	}
	userID := pi.Metadata[metadataUser]
	if userID == "" {
		return nil, models.Errorf(models.KindBadRequest, "payment intent %s has no user", pi.ID)
	}
	received := pi.AmountReceived
	if received == 0 {
		received = pi.Amount
	}
	amount := received / 100

	entry, err := s.ledger.Credit(ctx, ledger.Movement{
		Actor:            userID,
		Amount:           amount,
		Key:              ledger.TopUpKey(pi.ID),
		Description:      fmt.Sprintf("wallet top-up via payment %s", pi.ID),
		PaymentReference: pi.ID,
	})
	if errors.Is(err, models.ErrAlreadyProcessed) {
		zap.S().Infow("payment already credited", "paymentIntent", pi.ID, "user", userID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	zap.S().Infow("wallet topped up", "paymentIntent", pi.ID, "user", userID, "amount", amount, "balance", entry.ResultingBalance)
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, models.NotificationWalletCredit, "Wallet topped up",
			fmt.Sprintf("%d has been added to your wallet. New balance: %d.", amount, entry.ResultingBalance))
	}
	return entry, nil
}
