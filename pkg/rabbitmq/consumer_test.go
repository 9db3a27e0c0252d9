package rabbitmq

import "testing"

func TestSettle(t *testing.T) {
	tests := []struct {
		name        string
		known       bool
		handled     bool
		redelivered bool
		want        settlement
	}{
		{name: "handled", known: true, handled: true, want: settleAck},
		{name: "handled on redelivery", known: true, handled: true, redelivered: true, want: settleAck},
		{name: "unknown routing key", known: false, want: settleAck},
		{name: "first failure", known: true, handled: false, want: settleRequeue},
		{name: "failure on redelivery", known: true, handled: false, redelivered: true, want: settleDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := settle(tt.known, tt.handled, tt.redelivered); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestConsumeWithBindingsRequiresHandlers(t *testing.T) {
	c := &Consumer{}
	if err := c.ConsumeWithBindings("dincash.events", "q", map[string]func([]byte) bool{"identity.user.created": nil}); err == nil {
		t.Fatal("expected error when every binding has a nil handler")
	}
}
