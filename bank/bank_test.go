package bank

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestCreditAndSend(t *testing.T) {
	b := New()
	b.Credit(1000)
	if got := b.Balance(); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}

	if !b.BestEffortSend("alice", 300) {
		t.Fatalf("send failed with sufficient balance")
	}
	if got := b.Balance(); got != 700 {
		t.Errorf("house = %d, want 700", got)
	}
	if got := b.AccountBalance("alice"); got != 300 {
		t.Errorf("alice = %d, want 300", got)
	}
}

func TestSendOverdrawnFails(t *testing.T) {
	b := New()
	b.Credit(100)
	if b.BestEffortSend("alice", 101) {
		t.Errorf("send succeeded past house balance")
	}
	if got := b.Balance(); got != 100 {
		t.Errorf("failed send changed the house balance: %d", got)
	}
}

func TestSendZeroIsANoOp(t *testing.T) {
	b := New()
	if !b.BestEffortSend("alice", 0) {
		t.Errorf("zero send reported failure")
	}
}

func TestRefuser(t *testing.T) {
	b := New()
	b.Credit(100)
	b.SetRefuser(func(account string) bool { return account == "frozen" })

	if b.BestEffortSend("frozen", 10) {
		t.Errorf("send to refused account succeeded")
	}
	if !b.BestEffortSend("alice", 10) {
		t.Errorf("send to ordinary account failed")
	}
}

func TestClaims(t *testing.T) {
	b := New()
	b.Credit(100)
	b.AddClaim("bob", 40)
	b.AddClaim("bob", 2)
	if got := b.Claim("bob"); got != 42 {
		t.Fatalf("claim = %d, want 42", got)
	}

	amount, paid := b.WithdrawClaim("bob")
	if !paid || amount != 42 {
		t.Fatalf("WithdrawClaim = (%d, %v), want (42, true)", amount, paid)
	}
	if got := b.Claim("bob"); got != 0 {
		t.Errorf("claim after withdrawal = %d, want 0", got)
	}
	if got := b.AccountBalance("bob"); got != 42 {
		t.Errorf("bob = %d, want 42", got)
	}
}

func TestWithdrawRefusedClaimIsKept(t *testing.T) {
	b := New()
	b.Credit(100)
	b.AddClaim("frozen", 50)
	b.SetRefuser(func(account string) bool { return account == "frozen" })

	if _, paid := b.WithdrawClaim("frozen"); paid {
		t.Fatalf("withdrawal to refused account succeeded")
	}
	if got := b.Claim("frozen"); got != 50 {
		t.Errorf("claim after refused withdrawal = %d, want 50", got)
	}

	b.SetRefuser(nil)
	if amount, paid := b.WithdrawClaim("frozen"); !paid || amount != 50 {
		t.Errorf("retry after unfreezing = (%d, %v), want (50, true)", amount, paid)
	}
}

func TestConcurrentWithdrawalsPayOnce(t *testing.T) {
	// Withdrawal runs on the HTTP server, so the same claim can be hit from
	// several requests at once.  Exactly one may deliver.
	for trial := 0; trial < 200; trial++ {
		b := New()
		b.Credit(400)
		b.AddClaim("bob", 100)

		var wg sync.WaitGroup
		var delivered atomic.Int64
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if amount, paid := b.WithdrawClaim("bob"); paid {
					delivered.Add(amount)
				}
			}()
		}
		wg.Wait()

		if got := delivered.Load(); got != 100 {
			t.Fatalf("trial %d: delivered %d for a claim of 100", trial, got)
		}
		if got := b.AccountBalance("bob"); got != 100 {
			t.Fatalf("trial %d: bob = %d, want 100", trial, got)
		}
		if got := b.Claim("bob"); got != 0 {
			t.Fatalf("trial %d: claim left after withdrawal: %d", trial, got)
		}
		if got := b.Balance(); got != 300 {
			t.Fatalf("trial %d: house = %d, want 300", trial, got)
		}
	}
}

func TestWithdrawNothing(t *testing.T) {
	b := New()
	if amount, paid := b.WithdrawClaim("nobody"); paid || amount != 0 {
		t.Errorf("WithdrawClaim with no claim = (%d, %v), want (0, false)", amount, paid)
	}
}
