package domain

// CheckoutState — состояние одной попытки оформления заказа. Не сохраняется.
type CheckoutState string

const (
	// CheckoutStateNone — попытка только начата, намерение ещё не создано.
	CheckoutStateNone      CheckoutState = ""
	CheckoutStateInitiated CheckoutState = "INITIATED"
	CheckoutStateVerified  CheckoutState = "VERIFIED"
	CheckoutStateFinalized CheckoutState = "FINALIZED"
	CheckoutStateFailed    CheckoutState = "FAILED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateNone:      {CheckoutStateInitiated, CheckoutStateFailed},
	CheckoutStateInitiated: {CheckoutStateVerified, CheckoutStateFailed},
	CheckoutStateVerified:  {CheckoutStateFinalized, CheckoutStateFailed},
}

// IsTerminal сообщает, что из состояния нет переходов.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateFinalized || s == CheckoutStateFailed
}

// String возвращает имя состояния для логов и меток метрик.
func (s CheckoutState) String() string {
	if s == CheckoutStateNone {
		return "NONE"
	}
	return string(s)
}

// CanTransitionTo проверяет допустимость перехода.
func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
