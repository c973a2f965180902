package checkout

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAuthorizer decides whether a charge goes through.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, amount decimal.Decimal, card string) (bool, error)
}

type AuthorizerFunc func(ctx context.Context, amount decimal.Decimal, card string) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, amount decimal.Decimal, card string) (bool, error) {
	return f(ctx, amount, card)
}

// SimulatedPayment approves a charge with the configured probability. There is
// no real payment provider behind it.
type SimulatedPayment struct {
	rate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedPayment(successRate float64) *SimulatedPayment {
	return &SimulatedPayment{
		rate: successRate,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SimulatedPayment) Authorize(ctx context.Context, _ decimal.Decimal, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < p.rate, nil
}
