package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"

	"lintas/pkg/core"
)

// ledgerEntry tracks one currency. Total is always derived as free + used so
// the balance invariant cannot drift.
type ledgerEntry struct {
	free apd.Decimal
	used apd.Decimal
}

// Ledger is the simulated account. Placing an order moves funds from free to
// used; a fill releases the used portion and credits the opposite currency.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

// NewLedger creates a ledger seeded with the given free amounts per currency.
// Amounts that fail to parse are skipped.
func NewLedger(seed map[string]string) *Ledger {
	l := &Ledger{entries: make(map[string]*ledgerEntry, len(seed))}
	for currency, amount := range seed {
		entry := &ledgerEntry{}
		if _, _, err := entry.free.SetString(amount); err != nil {
			continue
		}
		l.entries[currency] = entry
	}
	return l
}

// Reserve moves amount from free to used, failing when free is insufficient.
func (l *Ledger) Reserve(currency string, amount *apd.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entry(currency)
	if entry.free.Cmp(amount) < 0 {
		return &insufficientError{
			currency:  currency,
			required:  *amount,
			available: entry.free,
		}
	}
	subFrom(&entry.free, amount)
	addTo(&entry.used, amount)
	return nil
}

// Release moves amount back from used to free, capped at the held amount.
func (l *Ledger) Release(currency string, amount *apd.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entry(currency)
	release := *amount
	if entry.used.Cmp(&release) < 0 {
		release = entry.used
	}
	subFrom(&entry.used, &release)
	addTo(&entry.free, &release)
}

// Settle executes a fill: the held amount of the spent currency is consumed
// and the received currency is credited to free. Buy and sell are symmetric;
// the caller picks which currency was reserved.
func (l *Ledger) Settle(spendCurrency string, spend *apd.Decimal, receiveCurrency string, receive *apd.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	spent := l.entry(spendCurrency)
	consumed := *spend
	if spent.used.Cmp(&consumed) < 0 {
		// Slippage pushed the cost past the reservation; the difference
		// comes out of free.
		var overflow apd.Decimal
		_, _ = apd.BaseContext.Sub(&overflow, &consumed, &spent.used)
		spent.used.SetInt64(0)
		subFrom(&spent.free, &overflow)
	} else {
		subFrom(&spent.used, &consumed)
	}

	addTo(&l.entry(receiveCurrency).free, receive)
}

// Balance returns a snapshot for one currency.
func (l *Ledger) Balance(currency string) core.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot(currency, l.entry(currency), time.Now())
}

// Balances returns a snapshot of every currency in the ledger.
func (l *Ledger) Balances() []core.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	out := make([]core.Balance, 0, len(l.entries))
	for currency, entry := range l.entries {
		out = append(out, l.snapshot(currency, entry, now))
	}
	return out
}

func (l *Ledger) snapshot(currency string, entry *ledgerEntry, now time.Time) core.Balance {
	balance := core.Balance{
		Currency:  currency,
		Free:      entry.free,
		Used:      entry.used,
		Timestamp: now,
	}
	_, _ = apd.BaseContext.Add(&balance.Total, &entry.free, &entry.used)
	return balance
}

// entry returns the ledger entry for a currency, creating a zero entry on
// first use. Callers must hold the mutex.
func (l *Ledger) entry(currency string) *ledgerEntry {
	entry, ok := l.entries[currency]
	if !ok {
		entry = &ledgerEntry{}
		l.entries[currency] = entry
	}
	return entry
}

type insufficientError struct {
	currency  string
	required  apd.Decimal
	available apd.Decimal
}

func (e *insufficientError) Error() string {
	return fmt.Sprintf("insufficient %s: required %s, available %s",
		e.currency, e.required.String(), e.available.String())
}

func addTo(dst, amount *apd.Decimal) {
	_, _ = apd.BaseContext.Add(dst, dst, amount)
}

func subFrom(dst, amount *apd.Decimal) {
	_, _ = apd.BaseContext.Sub(dst, dst, amount)
}
