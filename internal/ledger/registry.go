package ledger

import "solana-wallet-watch/internal/domain"

// Registry is the process-wide table of tracked accounts. It is built once at
// startup from static configuration and never mutated afterwards, so lookups
// need no locking; all synchronization lives inside the accounts themselves.
type Registry struct {
	byAddress map[string]*Account
	order     []string
}

// NewRegistry builds a registry from the configured accounts, preserving
// their order for stable listings.
func NewRegistry(accounts []*Account) *Registry {
	r := &Registry{byAddress: make(map[string]*Account, len(accounts))}
	for _, a := range accounts {
		if _, ok := r.byAddress[a.Address()]; ok {
			continue
		}
		r.byAddress[a.Address()] = a
		r.order = append(r.order, a.Address())
	}
	return r
}

// Get returns the account for an address.
func (r *Registry) Get(address string) (*Account, bool) {
	a, ok := r.byAddress[address]
	return a, ok
}

// Accounts returns all accounts in configuration order.
func (r *Registry) Accounts() []*Account {
	out := make([]*Account, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.byAddress[addr])
	}
	return out
}

// Addresses returns the tracked addresses in configuration order.
func (r *Registry) Addresses() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Summaries returns a point-in-time copy of every account's visible state.
func (r *Registry) Summaries() []domain.AccountSummary {
	out := make([]domain.AccountSummary, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.byAddress[addr].Summary())
	}
	return out
}
