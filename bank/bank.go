// package bank tracks credit balances: the house balance that stakes flow
// into, per-account balances that payouts flow out to, and claimable credit
// left behind by payouts that couldn't be delivered.
//
// Sends are best-effort on purpose: one unpayable recipient must never stall
// a settlement batch for everybody else.  A failed send is not lost, though;
// it becomes a claim the recipient can withdraw later.
package bank

import (
	"log"
	"sync"

	"github.com/ts4z/tote/varz"
)

var (
	sendsOK     = varz.NewInt("sendsOK")
	sendsFailed = varz.NewInt("sendsFailed")
)

// Sink is the value-transfer collaborator the settlement engine pays
// through.  BestEffortSend reports delivery; it never returns an error, and
// the caller's own state must not depend on the outcome.
type Sink interface {
	BestEffortSend(to string, amount int64) bool
}

// Treasury is the full surface pool needs: stake intake, balance reads,
// payouts, and the claims queue.
type Treasury interface {
	Sink
	Credit(amount int64)
	Balance() int64
	AddClaim(to string, amount int64)
}

// Bank is the in-process Treasury.  Account "delivery" can be vetoed by a
// Refuser, which is how a frozen or bogus account behaves in production and
// how tests simulate an unpayable recipient.
type Bank struct {
	mu       sync.Mutex
	house    int64
	accounts map[string]int64
	claims   map[string]int64
	refuser  Refuser
}

// Refuser reports accounts that cannot accept delivery.
type Refuser func(account string) bool

var _ Treasury = (*Bank)(nil)

func New() *Bank {
	return &Bank{
		accounts: make(map[string]int64),
		claims:   make(map[string]int64),
	}
}

// SetRefuser installs the delivery veto.  Pass nil to accept everything.
func (b *Bank) SetRefuser(r Refuser) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuser = r
}

// Credit adds stake intake to the house balance.
func (b *Bank) Credit(amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.house += amount
}

// Balance is the current house balance.
func (b *Bank) Balance() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.house
}

// BestEffortSend moves amount from the house to an account.  Refused
// delivery or an overdrawn house both report failure; neither is an error
// for the caller.
func (b *Bank) BestEffortSend(to string, amount int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(to, amount)
}

// sendLocked is BestEffortSend with b.mu already held.
func (b *Bank) sendLocked(to string, amount int64) bool {
	if amount <= 0 {
		return true
	}
	if b.house < amount {
		log.Printf("warning: send of %d to %q exceeds house balance %d", amount, to, b.house)
		sendsFailed.Add(1)
		return false
	}
	if b.refuser != nil && b.refuser(to) {
		sendsFailed.Add(1)
		return false
	}

	b.house -= amount
	b.accounts[to] += amount
	sendsOK.Add(1)
	return true
}

// AddClaim records undeliverable credit.  The house keeps the value until
// the recipient withdraws it.
func (b *Bank) AddClaim(to string, amount int64) {
	if amount <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claims[to] += amount
	log.Printf("recorded claim of %d for %q (total %d)", amount, to, b.claims[to])
}

// Claim is the claimable credit for an account.
func (b *Bank) Claim(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.claims[account]
}

// WithdrawClaim re-attempts delivery of an account's claimed credit.  On
// success the claim is cleared; on refusal it is kept.  The read, the send,
// and the clear are one critical section: concurrent withdrawals of the same
// claim must not both deliver.
func (b *Bank) WithdrawClaim(account string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	amount := b.claims[account]
	if amount == 0 {
		return 0, false
	}
	if !b.sendLocked(account, amount) {
		return 0, false
	}
	delete(b.claims, account)
	return amount, true
}

// AccountBalance is what an account has received.
func (b *Bank) AccountBalance(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[account]
}
