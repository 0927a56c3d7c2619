// Package router posts ordinary messages and transaction-approval requests
// into established connection topics. Counters move only after the append
// succeeds, and nothing is retried inside the core: a transport failure
// surfaces to the caller, who owns retry and backoff policy.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aetherflow-dev/aetherflow/hcs10"
	"github.com/aetherflow-dev/aetherflow/pkg/observability"
	"github.com/aetherflow-dev/aetherflow/registry"
	"github.com/aetherflow-dev/aetherflow/topic"
)

// Router routes payloads over connection topics on behalf of registered
// agents. Router is safe for concurrent use.
type Router struct {
	dir  *registry.Directory
	logc topic.Log

	// Per-operator rate limiting. A limited send waits rather than fails;
	// a canceled wait surfaces the context error without touching counters.
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	rps        float64
	burst      int
}

// Option configures a Router.
type Option func(*Router)

// WithRateLimit bounds each agent's submit rate. Zero rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Router) {
		r.rps = rps
		r.burst = burst
	}
}

// NewRouter creates a router bound to a directory.
func NewRouter(dir *registry.Directory, opts ...Option) *Router {
	r := &Router{
		dir:      dir,
		logc:     dir.Log(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendMessage appends a message envelope to the connection topic. On success
// the sender's sent counter and activity timestamp are updated; on any
// failure they are not.
func (r *Router) SendMessage(ctx context.Context, from *registry.AgentRecord, connectionTopic topic.ID, data string) (topic.TxID, error) {
	if err := r.checkSender(from, connectionTopic); err != nil {
		return "", err
	}

	env := hcs10.NewMessage(from.OperatorID(), data)
	return r.submit(ctx, from, connectionTopic, env)
}

// SendTransactionRequest appends a transaction envelope carrying the
// externally managed schedule id of a pending multi-party transaction.
func (r *Router) SendTransactionRequest(ctx context.Context, from *registry.AgentRecord, connectionTopic topic.ID, scheduleID, data string) (topic.TxID, error) {
	if err := r.checkSender(from, connectionTopic); err != nil {
		return "", err
	}

	env := hcs10.NewTransaction(from.OperatorID(), scheduleID, data)
	return r.submit(ctx, from, connectionTopic, env)
}

func (r *Router) checkSender(from *registry.AgentRecord, connectionTopic topic.ID) error {
	if from.Status() != registry.StatusActive {
		return fmt.Errorf("agent %s is not active: %w", from.AccountID, hcs10.ErrProtocolViolation)
	}
	if connectionTopic == "" {
		return fmt.Errorf("empty connection topic: %w", hcs10.ErrMalformed)
	}
	return nil
}

func (r *Router) submit(ctx context.Context, from *registry.AgentRecord, connectionTopic topic.ID, env *hcs10.Envelope) (topic.TxID, error) {
	payload, err := env.Encode()
	if err != nil {
		return "", err
	}

	if err := r.wait(ctx, from.AccountID); err != nil {
		return "", err
	}

	start := time.Now()
	txID, err := r.logc.SubmitMessage(ctx, connectionTopic, payload, hcs10.OperationMemo(env.Op))
	if err != nil {
		observability.RecordTopicSubmit("error", time.Since(start))
		observability.RecordEnvelope(string(env.Op), "error")
		return "", fmt.Errorf("send %s to %s: %w", env.Op, connectionTopic, err)
	}

	from.IncrementMessagesSent()
	observability.RecordTopicSubmit("ok", time.Since(start))
	observability.RecordEnvelope(string(env.Op), "ok")
	log.Printf("router: %s sent %s to %s (tx %s)", from.AccountID, env.Op, connectionTopic, txID)
	return txID, nil
}

// wait applies the sender's rate limiter, if limiting is configured.
func (r *Router) wait(ctx context.Context, accountID string) error {
	if r.rps <= 0 {
		return nil
	}

	r.limitersMu.Lock()
	limiter, ok := r.limiters[accountID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[accountID] = limiter
	}
	r.limitersMu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", accountID, err)
	}
	return nil
}
