package transit

import (
	"fmt"
	"sync"

	"github.com/nedpals/davi-transit/card"
)

// Factory recognizes and decodes one operator's cards.
//
// Check must be cheap and must not fail: it inspects the card and reports
// whether Identify and Parse can handle it. Identify and Parse are only
// called on cards that passed Check.
type Factory interface {
	// CardType is the card variant the factory accepts.
	CardType() card.CardType
	Check(c card.Card) bool
	Identify(c card.Card) (*Identity, error)
	Parse(c card.Card) (*Report, error)
}

// Registry is an ordered list of factories. Checks are not required to be
// mutually exclusive, so a catch-all factory must be registered after the
// factories it would otherwise shadow.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories []Factory
}

// NewRegistry returns a registry holding factories in the given order.
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register appends f. It is tried after every factory already registered.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, f)
}

// Factories returns a copy of the registered factories in order.
func (r *Registry) Factories() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Factory(nil), r.factories...)
}

// Resolve returns the first factory for c's card type whose Check accepts
// c, or nil if the card is unidentified.
func (r *Registry) Resolve(c card.Card) Factory {
	if c == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.factories {
		if f.CardType() != c.CardType() {
			continue
		}
		if f.Check(c) {
			return f
		}
	}
	return nil
}

// Identify resolves c and returns its identity. An unidentified card yields
// nil and no error.
func (r *Registry) Identify(c card.Card) (*Identity, error) {
	f := r.Resolve(c)
	if f == nil {
		return nil, nil
	}
	id, err := f.Identify(c)
	if err != nil {
		return nil, fmt.Errorf("identify %s card: %w", c.CardType(), err)
	}
	return id, nil
}

// Parse resolves c and returns its identity and full report. An
// unidentified card yields nil for both and no error.
func (r *Registry) Parse(c card.Card) (*Identity, *Report, error) {
	f := r.Resolve(c)
	if f == nil {
		return nil, nil, nil
	}
	id, err := f.Identify(c)
	if err != nil {
		return nil, nil, fmt.Errorf("identify %s card: %w", c.CardType(), err)
	}
	report, err := f.Parse(c)
	if err != nil {
		return id, nil, fmt.Errorf("parse %s card: %w", c.CardType(), err)
	}
	return id, report, nil
}
