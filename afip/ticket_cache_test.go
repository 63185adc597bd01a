package afip

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type countingAuth struct {
	calls   atomic.Int32
	delay   time.Duration
	release chan struct{}
	err     error
	ticket  model.Ticket
}

func (a *countingAuth) Login(ctx context.Context, _ string) (model.Ticket, error) {
	a.calls.Add(1)
	if a.release != nil {
		<-a.release
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return model.Ticket{}, a.err
	}
	return a.ticket, nil
}

func seeded(auth Authenticator, expiresIn time.Duration) *TicketCache {
	c := NewTicketCache(auth, WithClock(func() time.Time { return testNow }))
	c.cache[DefaultService] = model.Ticket{Token: "OLD", Sign: "OLD", ExpiresAt: testNow.Add(expiresIn)}
	return c
}

func TestTicketCache_HitWithoutLogin(t *testing.T) {
	auth := &countingAuth{}
	c := seeded(auth, 15*time.Minute)

	ticket, err := c.Ticket(context.Background(), DefaultService)
	require.NoError(t, err)

	assert.Equal(t, "OLD", ticket.Token)
	assert.EqualValues(t, 0, auth.calls.Load())
}

func TestTicketCache_RenewsOnceUnderConcurrency(t *testing.T) {
	auth := &countingAuth{
		delay:  50 * time.Millisecond,
		ticket: model.Ticket{Token: "NEW", Sign: "NEW", ExpiresAt: testNow.Add(12 * time.Hour)},
	}
	c := seeded(auth, 5*time.Minute)

	const callers = 20
	tokens := make([]string, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			ticket, err := c.Ticket(context.Background(), DefaultService)
			tokens[i] = ticket.Token
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, auth.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "NEW", tok)
	}
}

func TestTicketCache_EmptyFetches(t *testing.T) {
	auth := &countingAuth{ticket: model.Ticket{Token: "NEW", Sign: "NEW", ExpiresAt: testNow.Add(12 * time.Hour)}}
	c := NewTicketCache(auth, WithClock(func() time.Time { return testNow }))

	for i := 0; i < 3; i++ {
		_, err := c.Ticket(context.Background(), "")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, auth.calls.Load())
}

func TestTicketCache_FailureKeepsPrevious(t *testing.T) {
	boom := errors.New("wsaa down")
	auth := &countingAuth{err: boom}
	c := seeded(auth, 5*time.Minute)

	_, err := c.Ticket(context.Background(), DefaultService)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "OLD", c.cache[DefaultService].Token)
}

func TestTicketCache_InvalidateAndForce(t *testing.T) {
	auth := &countingAuth{ticket: model.Ticket{Token: "NEW", Sign: "NEW", ExpiresAt: testNow.Add(12 * time.Hour)}}
	c := seeded(auth, 15*time.Minute)

	ticket, err := c.Ticket(ContextWithForceAuth(context.Background()), DefaultService)
	require.NoError(t, err)
	assert.Equal(t, "NEW", ticket.Token)
	assert.EqualValues(t, 1, auth.calls.Load())

	c.Invalidate(DefaultService)
	_, err = c.Ticket(context.Background(), DefaultService)
	require.NoError(t, err)
	assert.EqualValues(t, 2, auth.calls.Load())
}

func TestTicketCache_CallerCancelDoesNotAbortLogin(t *testing.T) {
	auth := &countingAuth{
		release: make(chan struct{}),
		ticket:  model.Ticket{Token: "NEW", Sign: "NEW", ExpiresAt: testNow.Add(12 * time.Hour)},
	}
	c := NewTicketCache(auth, WithClock(func() time.Time { return testNow }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Ticket(ctx, DefaultService)
		done <- err
	}()

	require.Eventually(t, func() bool { return auth.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(auth.release)
	require.Eventually(t, func() bool {
		_, ok := c.current(DefaultService)
		return ok
	}, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, auth.calls.Load())
}
