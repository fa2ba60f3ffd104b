package domain

import "testing"

func TestCheckoutStateTransitions(t *testing.T) {
	tests := []struct {
		from CheckoutState
		to   CheckoutState
		want bool
	}{
		{CheckoutStateInitiated, CheckoutStateVerified, true},
		{CheckoutStateInitiated, CheckoutStateFailed, true},
		{CheckoutStateInitiated, CheckoutStateFinalized, false},
		{CheckoutStateVerified, CheckoutStateFinalized, true},
		{CheckoutStateVerified, CheckoutStateFailed, true},
		{CheckoutStateFinalized, CheckoutStateFailed, false},
		{CheckoutStateFailed, CheckoutStateInitiated, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCheckoutStateIsTerminal(t *testing.T) {
	if CheckoutStateInitiated.IsTerminal() || CheckoutStateVerified.IsTerminal() {
		t.Fatal("intermediate states must not be terminal")
	}
	if !CheckoutStateFinalized.IsTerminal() || !CheckoutStateFailed.IsTerminal() {
		t.Fatal("finalized and failed must be terminal")
	}
}

func TestCheckoutStateNone(t *testing.T) {
	if !CheckoutStateNone.CanTransitionTo(CheckoutStateInitiated) {
		t.Fatal("new attempt must be able to enter INITIATED")
	}
	if !CheckoutStateNone.CanTransitionTo(CheckoutStateFailed) {
		t.Fatal("new attempt must be able to fail before an intent exists")
	}
	if CheckoutStateNone.String() != "NONE" {
		t.Fatalf("unexpected name %q", CheckoutStateNone.String())
	}
}
