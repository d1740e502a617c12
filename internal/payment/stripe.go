package payment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/recallbox/recallbox/internal/config"
)

// Service creates Stripe checkout and billing portal sessions. The session
// constructors are injectable so tests can run without Stripe credentials.
type Service struct {
	cfg config.StripeConfig

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortalSession   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// NewService creates a Service and sets the global Stripe API key.
func NewService(cfg config.StripeConfig) *Service {
	stripe.Key = cfg.SecretKey
	return &Service{
		cfg:                   cfg,
		createCheckoutSession: checkoutsession.New,
		createPortalSession:   portalsession.New,
	}
}

// Enabled reports whether Stripe credentials are configured. When disabled,
// the billing endpoints return 503 and the service runs free-tier only.
func (s *Service) Enabled() bool {
	return s.cfg.SecretKey != "" && s.cfg.PriceID != ""
}

// CreateCheckoutURL creates a subscription checkout session for the user and
// returns the hosted payment page URL. The user id rides along as the
// client reference and subscription metadata so the webhook can link the
// resulting subscription back to our account.
func (s *Service) CreateCheckoutURL(userID uuid.UUID, email string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(userID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID.String()},
		},
	}

	session, err := s.createCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("creating checkout session: %w", err)
	}
	return session.URL, nil
}

// CreatePortalURL creates a billing portal session for an existing Stripe
// customer and returns the portal URL.
func (s *Service) CreatePortalURL(customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.cfg.PortalReturn),
	}

	session, err := s.createPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("creating portal session: %w", err)
	}
	return session.URL, nil
}
