package afip

import (
	"context"
	"sync"
	"time"

	"github.com/alapierre/go-afip-client/afip/model"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultRenewalMargin ticket is renewed when it expires within this margin.
const DefaultRenewalMargin = 10 * time.Minute

// Authenticator source of fresh tickets, implemented by AuthClient.
type Authenticator interface {
	Login(ctx context.Context, service string) (model.Ticket, error)
}

// TicketCache keeps one ticket per service and renews it on demand.
// Concurrent callers needing a renewal share a single WSAA call.
type TicketCache struct {
	auth Authenticator

	mu    sync.RWMutex
	cache map[string]model.Ticket

	group singleflight.Group

	// o ile wcześniej przed wygaśnięciem odnowić ticket
	renewalMargin time.Duration
	now           func() time.Time
}

type TicketCacheOption func(*TicketCache)

func WithRenewalMargin(d time.Duration) TicketCacheOption {
	return func(p *TicketCache) { p.renewalMargin = d }
}

// WithClock zegar używany do oceny ważności (testy)
func WithClock(now func() time.Time) TicketCacheOption {
	return func(p *TicketCache) { p.now = now }
}

// NewTicketCache creates an empty cache; the first Ticket call per service performs the login.
func NewTicketCache(auth Authenticator, opts ...TicketCacheOption) *TicketCache {
	p := &TicketCache{
		auth:          auth,
		cache:         make(map[string]model.Ticket),
		renewalMargin: DefaultRenewalMargin,
		now:           time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ticket returns a ticket valid for longer than the renewal margin, logging in when needed.
// A failed login leaves the previous entry untouched.
func (p *TicketCache) Ticket(ctx context.Context, service string) (model.Ticket, error) {
	if service == "" {
		service = DefaultService
	}

	force := IsForceAuth(ctx)
	if !force {
		if t, ok := p.current(service); ok {
			return t, nil
		}
	}

	ch := p.group.DoChan(service, func() (any, error) {
		// podwójne sprawdzenie, ktoś mógł właśnie odnowić
		if !force {
			if t, ok := p.current(service); ok {
				return t, nil
			}
		}

		log.WithField("service", service).Debug("TicketCache: requesting new ticket")
		// the shared login must not be cancelled by the first caller leaving
		t, err := p.auth.Login(context.WithoutCancel(ctx), service)
		if err != nil {
			return model.Ticket{}, err
		}

		p.mu.Lock()
		p.cache[service] = t
		p.mu.Unlock()
		return t, nil
	})

	select {
	case <-ctx.Done():
		return model.Ticket{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Ticket{}, res.Err
		}
		return res.Val.(model.Ticket), nil
	}
}

// Invalidate drops the cached ticket for service.
func (p *TicketCache) Invalidate(service string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, service)
}

func (p *TicketCache) current(service string) (model.Ticket, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.cache[service]
	if !ok || !t.ValidFor(p.now().UTC(), p.renewalMargin) {
		return model.Ticket{}, false
	}
	return t, true
}
