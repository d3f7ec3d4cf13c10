package usecase

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

// ModelChain is the ordered, non-empty list of models tried for one request.
// It is fixed before the first call.
type ModelChain []string

// ShouldAdvance reports whether a failure of candidate attempt (0-based) moves
// on to the next candidate. Only an exhausted allowance is expected to be
// resolved by switching models.
func (c ModelChain) ShouldAdvance(attempt int, err *ClassifiedError) bool {
	if err == nil || err.Kind != KindQuotaExceeded {
		return false
	}
	return attempt+1 < len(c)
}

// ModelDefaults is the default model and its fallbacks for one capability.
type ModelDefaults struct {
	Default   string
	Fallbacks []string
}

type FallbackPolicy struct {
	defaults map[domain.Capability]ModelDefaults
}

func NewFallbackPolicy(defaults map[domain.Capability]ModelDefaults) *FallbackPolicy {
	cp := make(map[domain.Capability]ModelDefaults, len(defaults))
	for capability, d := range defaults {
		cp[capability] = ModelDefaults{Default: d.Default, Fallbacks: append([]string(nil), d.Fallbacks...)}
	}
	return &FallbackPolicy{defaults: cp}
}

// DefaultModel returns the configured default for a capability, or "".
func (p *FallbackPolicy) DefaultModel(capability domain.Capability) string {
	return p.defaults[capability].Default
}

// BuildChain returns the default chain when hint is empty or the default, and
// exactly [hint] otherwise. Explicit requests are never substituted.
func (p *FallbackPolicy) BuildChain(hint string, capability domain.Capability) ModelChain {
	hint = strings.TrimSpace(hint)
	d := p.defaults[capability]
	if hint != "" && hint != d.Default {
		return ModelChain{hint}
	}
	if d.Default == "" {
		if hint == "" {
			return nil
		}
		return ModelChain{hint}
	}
	chain := ModelChain{d.Default}
	for _, m := range d.Fallbacks {
		if m != "" && m != d.Default {
			chain = append(chain, m)
		}
	}
	return chain
}

// attemptFunc is one provider call against one candidate model.
type attemptFunc[T any] func(ctx context.Context, model string) (T, error)

// runChain tries candidates strictly in order, one at a time. onAttempt, when
// set, observes each attempt before it is made.
func runChain[T any](ctx context.Context, chain ModelChain, call attemptFunc[T], onAttempt func(i int, model string)) (T, string, *ClassifiedError) {
	var zero T
	if len(chain) == 0 {
		return zero, "", &ClassifiedError{Kind: KindModelUnavailable, Message: anyModelMessage, HTTPStatus: http.StatusBadRequest}
	}
	for i, model := range chain {
		if onAttempt != nil {
			onAttempt(i, model)
		}
		result, err := call(ctx, model)
		if err == nil {
			return result, model, nil
		}
		classified := Classify(err)
		log.WithCtx(ctx).Warn("provider attempt failed",
			zap.String("model", model),
			zap.Int("attempt", i+1),
			zap.Int("candidates", len(chain)),
			zap.String("kind", string(classified.Kind)),
			zap.Error(err))
		if !chain.ShouldAdvance(i, classified) {
			return zero, model, classified
		}
		log.WithCtx(ctx).Info("advancing to fallback model", zap.String("from", model), zap.String("to", chain[i+1]))
	}
	// Unreachable: the last candidate never advances.
	return zero, "", &ClassifiedError{Kind: KindGeneric, Message: genericMessage, HTTPStatus: http.StatusBadRequest}
}
