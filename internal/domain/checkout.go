package domain

type CheckoutStatus string

const (
	CheckoutStatusInitiated        CheckoutStatus = "INITIATED"
	CheckoutStatusPaymentPending   CheckoutStatus = "PAYMENT_PENDING"
	CheckoutStatusPaymentCompleted CheckoutStatus = "PAYMENT_COMPLETED"
	CheckoutStatusCompleted        CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed           CheckoutStatus = "FAILED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	"":                             {CheckoutStatusInitiated},
	CheckoutStatusInitiated:        {CheckoutStatusPaymentPending, CheckoutStatusFailed},
	CheckoutStatusPaymentPending:   {CheckoutStatusPaymentCompleted, CheckoutStatusCompleted, CheckoutStatusFailed},
	CheckoutStatusPaymentCompleted: {CheckoutStatusCompleted, CheckoutStatusFailed},
}

// CanTransitionTo reports whether a checkout may move from one status to another.
// Terminal states only allow starting a new checkout.
func CanTransitionTo(from, to CheckoutStatus) bool {
	if from.IsTerminal() {
		return to == CheckoutStatusInitiated
	}
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanConfirm reports whether a payment confirmation may run from status.
// A flow with no status is resuming a payment made elsewhere, and a failed
// confirm may be retried; the server rejects sessions it already completed.
func CanConfirm(from CheckoutStatus) bool {
	if from == "" || from == CheckoutStatusFailed {
		return true
	}
	return CanTransitionTo(from, CheckoutStatusCompleted)
}

// PaymentSheet is the bundle the payment-sheet provider needs to present a payment.
type PaymentSheet struct {
	PaymentIntent  string `json:"paymentIntent"`
	EphemeralKey   string `json:"ephemeralKey"`
	Customer       string `json:"customer"`
	PublishableKey string `json:"publishableKey,omitempty"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type OrderConfirmation struct {
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
