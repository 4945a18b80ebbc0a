package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chromeDesktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

type fakeStore struct {
	records map[string]*Record
}

func (s *fakeStore) FindByShortCode(ctx context.Context, code string) (*Record, error) {
	return s.records[code], nil
}

type fakeSink struct {
	mu     sync.Mutex
	clicks []Click
	ch     chan Click
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan Click, 16)}
}

func (s *fakeSink) CreateClick(ctx context.Context, click Click) error {
	s.mu.Lock()
	s.clicks = append(s.clicks, click)
	s.mu.Unlock()
	s.ch <- click
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clicks)
}

// wait blocks until one click arrives or the test fails.
func (s *fakeSink) wait(t *testing.T) Click {
	t.Helper()
	select {
	case click := <-s.ch:
		return click
	case <-time.After(2 * time.Second):
		t.Fatal("no click recorded within deadline")
		return Click{}
	}
}

type fakeGeo struct {
	country string
	city    string
	err     error

	mu    sync.Mutex
	calls int
}

func (g *fakeGeo) Lookup(ctx context.Context, ip string) (string, string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.country, g.city, g.err
}

type fakeGrants struct {
	valid map[string]string // code -> accepted token
}

func (g *fakeGrants) Valid(ctx context.Context, code, token string) bool {
	accepted, ok := g.valid[code]
	return ok && accepted == token
}

func strptr(s string) *string { return &s }

func timeptr(t time.Time) *time.Time { return &t }

type fixture struct {
	resolver *Resolver
	store    *fakeStore
	sink     *fakeSink
	geo      *fakeGeo
	grants   *fakeGrants
}

func newFixture(records ...*Record) *fixture {
	store := &fakeStore{records: make(map[string]*Record)}
	for _, r := range records {
		store.records[r.ShortCode] = r
	}

	sink := newFakeSink()
	geo := &fakeGeo{country: "US", city: "New York"}
	grants := &fakeGrants{valid: make(map[string]string)}
	log := zerolog.Nop()

	return &fixture{
		resolver: New(store, sink, geo, grants, &log),
		store:    store,
		sink:     sink,
		geo:      geo,
		grants:   grants,
	}
}

func baseRequest() Request {
	return Request{
		UserAgent: chromeDesktopUA,
		IP:        "203.0.113.7",
		Referer:   "https://news.example/post",
		Now:       time.Now(),
	}
}

// assertNoClick gives the background goroutine a moment to misbehave before
// checking that nothing was logged.
func assertNoClick(t *testing.T, sink *fakeSink) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sink.count())
}

func TestResolve_NotFound(t *testing.T) {
	now := time.Now()

	t.Run("missing record", func(t *testing.T) {
		f := newFixture()

		outcome := f.resolver.Resolve(context.Background(), "nope", baseRequest())

		assert.Equal(t, OutcomeNotFound, outcome.Kind)
		assertNoClick(t, f.sink)
	})

	t.Run("inactive record", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 1, ShortCode: "off", Active: false,
			TargetURL: strptr("https://x.example"),
		})

		outcome := f.resolver.Resolve(context.Background(), "off", baseRequest())

		assert.Equal(t, OutcomeNotFound, outcome.Kind)
		assertNoClick(t, f.sink)
	})

	t.Run("not yet started", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 1, ShortCode: "soon", Active: true,
			TargetURL: strptr("https://x.example"),
			StartsAt:  timeptr(now.Add(time.Hour)),
		})

		outcome := f.resolver.Resolve(context.Background(), "soon", baseRequest())

		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})

	t.Run("expired yesterday", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 1, ShortCode: "old", Active: true,
			TargetURL: strptr("https://x.example"),
			ExpiresAt: timeptr(now.Add(-24 * time.Hour)),
		})

		outcome := f.resolver.Resolve(context.Background(), "old", baseRequest())

		assert.Equal(t, OutcomeNotFound, outcome.Kind)
		assertNoClick(t, f.sink)
	})

	t.Run("inside the validity window", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 1, ShortCode: "live", Active: true,
			TargetURL: strptr("https://x.example"),
			StartsAt:  timeptr(now.Add(-time.Hour)),
			ExpiresAt: timeptr(now.Add(time.Hour)),
		})

		outcome := f.resolver.Resolve(context.Background(), "live", baseRequest())

		assert.Equal(t, OutcomeRedirect, outcome.Kind)
		assert.Equal(t, "https://x.example", outcome.TargetURL)
	})

	t.Run("store error degrades to not found", func(t *testing.T) {
		f := newFixture()
		f.resolver.store = errStore{}

		outcome := f.resolver.Resolve(context.Background(), "any", baseRequest())

		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})
}

type errStore struct{}

func (errStore) FindByShortCode(ctx context.Context, code string) (*Record, error) {
	return nil, errors.New("store down")
}

func TestResolve_PasswordGate(t *testing.T) {
	record := &Record{
		ID: 7, ShortCode: "vip", Active: true,
		TargetURL: strptr("https://secret.example"),
		Password:  strptr("s3cr3t"),
	}

	t.Run("no grant token", func(t *testing.T) {
		f := newFixture(record)

		outcome := f.resolver.Resolve(context.Background(), "vip", baseRequest())

		assert.Equal(t, OutcomePasswordRequired, outcome.Kind)
		assertNoClick(t, f.sink)
	})

	t.Run("invalid grant token", func(t *testing.T) {
		f := newFixture(record)
		f.grants.valid["vip"] = "good-token"

		req := baseRequest()
		req.GrantToken = "bad-token"
		outcome := f.resolver.Resolve(context.Background(), "vip", req)

		assert.Equal(t, OutcomePasswordRequired, outcome.Kind)
	})

	t.Run("valid grant token", func(t *testing.T) {
		f := newFixture(record)
		f.grants.valid["vip"] = "good-token"

		req := baseRequest()
		req.GrantToken = "good-token"
		outcome := f.resolver.Resolve(context.Background(), "vip", req)

		assert.Equal(t, OutcomeRedirect, outcome.Kind)
		assert.Equal(t, "https://secret.example", outcome.TargetURL)
		f.sink.wait(t)
	})
}

func TestResolve_Pending(t *testing.T) {
	t.Run("no target and no rules", func(t *testing.T) {
		f := newFixture(&Record{ID: 2, ShortCode: "soon", Active: true})

		outcome := f.resolver.Resolve(context.Background(), "soon", baseRequest())

		assert.Equal(t, OutcomePending, outcome.Kind)
		assertNoClick(t, f.sink)
	})

	t.Run("no target and no matching rule", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 2, ShortCode: "soon", Active: true,
			Rules: []Rule{{Kind: RuleDevice, Key: "mobile", TargetURL: "https://m.example"}},
		})

		outcome := f.resolver.Resolve(context.Background(), "soon", baseRequest())

		assert.Equal(t, OutcomePending, outcome.Kind)
		assertNoClick(t, f.sink)
	})

	t.Run("matching rule rescues a pending record", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 2, ShortCode: "soon", Active: true,
			Rules: []Rule{{Kind: RuleDevice, Key: "desktop", TargetURL: "https://d.example"}},
		})

		outcome := f.resolver.Resolve(context.Background(), "soon", baseRequest())

		assert.Equal(t, OutcomeRedirect, outcome.Kind)
		assert.Equal(t, "https://d.example", outcome.TargetURL)
	})
}

func TestResolve_Bots(t *testing.T) {
	f := newFixture(&Record{
		ID: 3, ShortCode: "seo", Active: true,
		TargetURL: strptr("https://x.example"),
	})

	req := baseRequest()
	req.UserAgent = googlebotUA
	outcome := f.resolver.Resolve(context.Background(), "seo", req)

	assert.Equal(t, OutcomeRedirect, outcome.Kind)
	assert.Equal(t, "https://x.example", outcome.TargetURL)
	assertNoClick(t, f.sink)
}

func TestResolve_TargetingOrder(t *testing.T) {
	// mobile+US visitor, device rule stored first: first structural match wins.
	f := newFixture(&Record{
		ID: 4, ShortCode: "promo", Active: true,
		TargetURL: strptr("https://default.example"),
		Rules: []Rule{
			{Kind: RuleDevice, Key: "mobile", TargetURL: "https://a.example"},
			{Kind: RuleGeo, Key: "US", TargetURL: "https://b.example"},
		},
	})

	req := baseRequest()
	req.UserAgent = iphoneSafariUA
	outcome := f.resolver.Resolve(context.Background(), "promo", req)

	assert.Equal(t, OutcomeRedirect, outcome.Kind)
	assert.Equal(t, "https://a.example", outcome.TargetURL)
}

func TestResolve_GeoTargeting(t *testing.T) {
	record := &Record{
		ID: 5, ShortCode: "intl", Active: true,
		TargetURL: strptr("https://default.example"),
		Rules: []Rule{
			{Kind: RuleGeo, Key: "US", TargetURL: "https://us.example"},
		},
	}

	t.Run("geo match overrides default", func(t *testing.T) {
		f := newFixture(record)

		outcome := f.resolver.Resolve(context.Background(), "intl", baseRequest())

		assert.Equal(t, OutcomeRedirect, outcome.Kind)
		assert.Equal(t, "https://us.example", outcome.TargetURL)

		// The synchronous lookup result is reused for the click record.
		click := f.sink.wait(t)
		assert.Equal(t, "US", click.Country)
		assert.Equal(t, 1, f.geo.calls)
	})

	t.Run("geo failure falls back to default target", func(t *testing.T) {
		f := newFixture(record)
		f.geo.err = errors.New("lookup down")

		outcome := f.resolver.Resolve(context.Background(), "intl", baseRequest())

		assert.Equal(t, OutcomeRedirect, outcome.Kind)
		assert.Equal(t, "https://default.example", outcome.TargetURL)

		click := f.sink.wait(t)
		assert.Equal(t, "Unknown", click.Country)
		assert.Equal(t, "Unknown", click.City)
	})
}

func TestResolve_ClickEnrichment(t *testing.T) {
	t.Run("click carries derived fields", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 6, ShortCode: "promo", Active: true,
			TargetURL: strptr("https://x.example"),
		})

		outcome := f.resolver.Resolve(context.Background(), "promo", baseRequest())
		require.Equal(t, OutcomeRedirect, outcome.Kind)

		click := f.sink.wait(t)
		assert.Equal(t, int64(6), click.RedirectID)
		assert.Equal(t, "Chrome", click.Browser)
		assert.Equal(t, "desktop", click.Device)
		assert.Equal(t, "203.0.113.7", click.IP)
		assert.Equal(t, chromeDesktopUA, click.RawUA)
		require.NotNil(t, click.Referer)
		assert.Equal(t, "https://news.example/post", *click.Referer)
		assert.Equal(t, "US", click.Country)
		assert.Equal(t, "New York", click.City)
	})

	t.Run("geo failure degrades to Unknown", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 6, ShortCode: "promo", Active: true,
			TargetURL: strptr("https://x.example"),
		})
		f.geo.err = errors.New("timeout")

		outcome := f.resolver.Resolve(context.Background(), "promo", baseRequest())
		require.Equal(t, OutcomeRedirect, outcome.Kind)
		assert.Equal(t, "https://x.example", outcome.TargetURL)

		click := f.sink.wait(t)
		assert.Equal(t, "Unknown", click.Country)
		assert.Equal(t, "Unknown", click.City)
	})

	t.Run("empty referer stays nil", func(t *testing.T) {
		f := newFixture(&Record{
			ID: 6, ShortCode: "promo", Active: true,
			TargetURL: strptr("https://x.example"),
		})

		req := baseRequest()
		req.Referer = ""
		f.resolver.Resolve(context.Background(), "promo", req)

		click := f.sink.wait(t)
		assert.Nil(t, click.Referer)
	})
}

func TestResolve_ClickFailureDoesNotBlock(t *testing.T) {
	f := newFixture(&Record{
		ID: 8, ShortCode: "promo", Active: true,
		TargetURL: strptr("https://x.example"),
	})
	f.resolver.clicks = failingSink{}

	outcome := f.resolver.Resolve(context.Background(), "promo", baseRequest())

	assert.Equal(t, OutcomeRedirect, outcome.Kind)
}

type failingSink struct{}

func (failingSink) CreateClick(ctx context.Context, click Click) error {
	return errors.New("db down")
}
