package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmpotulo28/redirect/internal/uaparse"
	"github.com/mmpotulo28/redirect/pkg/metrics"
)

// Record is the resolver's view of one short code configuration.
type Record struct {
	ID        int64
	ShortCode string
	TargetURL *string
	Active    bool
	StartsAt  *time.Time
	ExpiresAt *time.Time
	Password  *string
	Rules     []Rule
}

// Click is one resolved visit, persisted asynchronously.
type Click struct {
	RedirectID int64
	CreatedAt  time.Time
	RawUA      string
	Browser    string
	OS         string
	Device     string
	IP         string
	Referer    *string
	Country    string
	City       string
}

// Request carries everything the resolver needs about the inbound visit.
// GrantToken is the capability extracted from the pwd_<shortCode> cookie by
// the HTTP layer; it is empty when no cookie was sent.
type Request struct {
	UserAgent  string
	IP         string
	Referer    string
	Now        time.Time
	GrantToken string
}

// OutcomeKind enumerates the four terminal results of a resolution.
type OutcomeKind string

const (
	OutcomeNotFound         OutcomeKind = "not_found"
	OutcomePasswordRequired OutcomeKind = "password_required"
	OutcomePending          OutcomeKind = "pending"
	OutcomeRedirect         OutcomeKind = "redirect"
)

// Outcome is the single terminal result of one resolution. TargetURL is set
// only for OutcomeRedirect.
type Outcome struct {
	Kind      OutcomeKind
	TargetURL string
}

// Store looks up redirect records by short code. A missing record is
// (nil, nil), not an error.
type Store interface {
	FindByShortCode(ctx context.Context, code string) (*Record, error)
}

// ClickSink persists click records.
type ClickSink interface {
	CreateClick(ctx context.Context, click Click) error
}

// GeoLookup resolves a client IP to an ISO country code and city.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (country, city string, err error)
}

// GrantChecker reports whether a grant token proves the visitor passed
// password verification for the given short code.
type GrantChecker interface {
	Valid(ctx context.Context, code, token string) bool
}

const clickWriteTimeout = 5 * time.Second

type Resolver struct {
	store  Store
	clicks ClickSink
	geo    GeoLookup
	grants GrantChecker
	log    *zerolog.Logger
}

func New(store Store, clicks ClickSink, geo GeoLookup, grants GrantChecker, log *zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		clicks: clicks,
		geo:    geo,
		grants: grants,
		log:    log,
	}
}

// Resolve runs the redirect decision path for one inbound visit and returns
// exactly one outcome. A qualifying visit also enqueues a click record;
// persistence happens in the background and never affects the outcome.
func (r *Resolver) Resolve(ctx context.Context, code string, req Request) Outcome {
	outcome := r.resolve(ctx, code, req)
	metrics.ResolutionOutcomes.WithLabelValues(string(outcome.Kind)).Inc()

	return outcome
}

func (r *Resolver) resolve(ctx context.Context, code string, req Request) Outcome {
	record, err := r.store.FindByShortCode(ctx, code)
	if err != nil {
		r.log.Error().Msgf("failed to load redirect %s: %v", code, err)
		return Outcome{Kind: OutcomeNotFound}
	}
	if record == nil || !record.Active {
		return Outcome{Kind: OutcomeNotFound}
	}

	// A scheduled-but-inactive link is indistinguishable from a missing one.
	if record.StartsAt != nil && req.Now.Before(*record.StartsAt) {
		return Outcome{Kind: OutcomeNotFound}
	}
	if record.ExpiresAt != nil && req.Now.After(*record.ExpiresAt) {
		return Outcome{Kind: OutcomeNotFound}
	}

	if record.Password != nil && *record.Password != "" {
		if req.GrantToken == "" || !r.grants.Valid(ctx, code, req.GrantToken) {
			return Outcome{Kind: OutcomePasswordRequired}
		}
	}

	agent := uaparse.Classify(req.UserAgent)

	// Geo rules need the country before the target can be chosen; otherwise
	// the lookup is deferred to the click goroutine so it never delays the
	// redirect.
	var country, city string
	geoResolved := false
	if hasGeoRule(record.Rules) {
		country, city, err = r.geo.Lookup(ctx, req.IP)
		if err != nil {
			country, city = "", ""
		}
		geoResolved = true
	}

	target := matchRules(record.Rules, agent.Device, country)
	if target == "" && record.TargetURL != nil {
		target = *record.TargetURL
	}
	if target == "" {
		return Outcome{Kind: OutcomePending}
	}

	// Bots still get redirected, they just don't show up in analytics.
	if !agent.Bot {
		r.recordClick(record.ID, req, agent, country, city, geoResolved)
	}

	return Outcome{Kind: OutcomeRedirect, TargetURL: target}
}

// recordClick enriches and persists one click in the background. Failures
// are observability events, never control flow.
func (r *Resolver) recordClick(redirectID int64, req Request, agent uaparse.Agent, country, city string, geoResolved bool) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Msgf("panic in recordClick: %v", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), clickWriteTimeout)
		defer cancel()

		if !geoResolved {
			var err error
			country, city, err = r.geo.Lookup(ctx, req.IP)
			if err != nil {
				country, city = "", ""
			}
		}
		if country == "" {
			country = uaparse.Unknown
		}
		if city == "" {
			city = uaparse.Unknown
		}

		var referer *string
		if req.Referer != "" {
			referer = &req.Referer
		}

		click := Click{
			RedirectID: redirectID,
			CreatedAt:  req.Now,
			RawUA:      req.UserAgent,
			Browser:    agent.Browser,
			OS:         agent.OS,
			Device:     agent.Device,
			IP:         req.IP,
			Referer:    referer,
			Country:    country,
			City:       city,
		}

		if err := r.clicks.CreateClick(ctx, click); err != nil {
			metrics.ClickLogFailures.Inc()
			r.log.Warn().Msgf("failed to save click for redirect=%d: %v", redirectID, err)
		}
	}()
}
