package inspectcore

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline is the Decision Pipeline driver (spec.md §4.I): it wires the
// Request Descriptor Builder's output through URL-map matching, challenge
// verification, tagging, rate-limiting, ACL resolution, and the WAF
// Scanner, short-circuiting on the first terminal outcome.
type Pipeline struct {
	Config      *ConfigStore
	Tagger      *Tagger
	Limiter     *RateLimitEvaluator
	WAF         *WAFScanner
	Grasshopper Grasshopper
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewPipeline wires the given components into a Pipeline. logger may be
// nil, in which case a no-op logger is used. A fresh Metrics instance is
// always created.
func NewPipeline(config *ConfigStore, tagger *Tagger, limiter *RateLimitEvaluator, waf *WAFScanner, gh Grasshopper, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Config:      config,
		Tagger:      tagger,
		Limiter:     limiter,
		WAF:         waf,
		Grasshopper: gh,
		Logger:      logger,
		Metrics:     NewMetrics(),
	}
}

// Inspect runs req through the full pipeline and returns a terminal
// Decision (spec.md §4.I). It is a pure function of req given a fixed
// snapshot, counter store, and signature database (spec.md §8 invariant
// 1). The caller-provided ctx is checked for cancellation between stages;
// a cancelled context yields a plain Pass rather than aborting mid-stage.
// The cancellation is logged at debug level and counted under the
// "cancelled" metrics stage; no tag is attached to the Pass.
func (p *Pipeline) Inspect(ctx context.Context, req *RequestRecord) Decision {
	correlationID := uuid.NewString()
	logger := p.Logger.With(zap.String("correlation_id", correlationID))
	timer := p.Metrics.StartTimer()
	defer timer.ObserveDuration()

	snap := p.Config.Load()
	if snap == nil {
		logger.Warn("configuration snapshot unavailable, passing", zap.Error(ErrConfigUnavailable))
		p.Metrics.ObserveDecision("pass")
		return PassDecision()
	}

	hostMapName, urlMap, ok := MatchURLMap(req, snap)
	if !ok {
		p.Metrics.ObserveDecision("pass")
		return PassDecision()
	}

	if cancelled(ctx) {
		return p.cancelledPass(logger)
	}

	if dec, handled := verifyPhase02(req, p.Grasshopper); handled {
		logger.Info("challenge verified, short-circuiting", zap.String("path", req.Path))
		p.Metrics.ObserveDecision("challenge-verify")
		return dec
	}

	if cancelled(ctx) {
		return p.cancelledPass(logger)
	}

	tags := TagRequest(p.Tagger, req, hostMapName, urlMap)

	if cancelled(ctx) {
		return p.cancelledPass(logger)
	}

	if dec := p.Limiter.Evaluate(ctx, req, urlMap.Limits, tags); dec != nil {
		logger.Info("rate limit decision", zap.Bool("pass", dec.Pass))
		p.Metrics.ObserveDecision("limit")
		return *dec
	}

	if cancelled(ctx) {
		return p.cancelledPass(logger)
	}

	aclResult := CheckACL(tags, urlMap.ACLProfile)
	if dec, terminal := resolveACL(aclResult, urlMap.ACLActive, req, tags, p.Grasshopper); terminal {
		logger.Info("acl decision", zap.Bool("pass", dec.Pass))
		p.Metrics.ObserveDecision("acl")
		return dec
	}

	if cancelled(ctx) {
		return p.cancelledPass(logger)
	}

	dec, score, hits := p.WAF.Scan(req, urlMap.WAFProfile)
	debugScan(logger, req, hits, score, urlMap.WAFProfile.Threshold, !dec.Pass)
	if dec.Pass {
		p.Metrics.ObserveDecision("pass")
	} else {
		p.Metrics.ObserveDecision("waf")
	}
	return dec
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (p *Pipeline) cancelledPass(logger *zap.Logger) Decision {
	logger.Debug("request context cancelled between stages")
	p.Metrics.ObserveDecision("cancelled")
	return PassDecision()
}
