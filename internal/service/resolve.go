package service

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/wb-go/wbf/ginext"

	"github.com/mmpotulo28/redirect/internal/dto"
	"github.com/mmpotulo28/redirect/internal/grant"
	"github.com/mmpotulo28/redirect/internal/repo"
	"github.com/mmpotulo28/redirect/internal/resolver"
	"github.com/mmpotulo28/redirect/pkg/validator"
)

func parseID(c *ginext.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		dto.FieldIncorrectError(c, "id")
		return 0, false
	}
	return id, true
}

func grantCookieName(shortCode string) string {
	return "pwd_" + shortCode
}

// RecordSource feeds cached redirect records to the resolver. Rules with an
// unrecognized kind are dropped here so the resolver only ever sees device
// and geo rules.
type RecordSource struct {
	cache *RecordCache
}

func NewRecordSource(cache *RecordCache) *RecordSource {
	return &RecordSource{cache: cache}
}

func (s *RecordSource) FindByShortCode(ctx context.Context, code string) (*resolver.Record, error) {
	entity, err := s.cache.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}

	rules := make([]resolver.Rule, 0, len(entity.Rules))
	for _, rule := range entity.Rules {
		kind := resolver.RuleKind(rule.Kind)
		if kind != resolver.RuleDevice && kind != resolver.RuleGeo {
			continue
		}
		rules = append(rules, resolver.Rule{
			Kind:      kind,
			Key:       rule.MatchKey,
			TargetURL: rule.TargetURL,
		})
	}

	return &resolver.Record{
		ID:        entity.ID,
		ShortCode: entity.ShortCode,
		TargetURL: entity.TargetURL,
		Active:    entity.Active,
		StartsAt:  entity.StartsAt,
		ExpiresAt: entity.ExpiresAt,
		Password:  entity.Password,
		Rules:     rules,
	}, nil
}

// ClickWriter persists resolved clicks through the repository.
type ClickWriter struct {
	repo repo.Repository
}

func NewClickWriter(repository repo.Repository) *ClickWriter {
	return &ClickWriter{repo: repository}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (w *ClickWriter) CreateClick(ctx context.Context, click resolver.Click) error {
	return w.repo.CreateClick(ctx, repo.ClickEntity{
		RedirectID: click.RedirectID,
		CreatedAt:  click.CreatedAt,
		RawUA:      optional(click.RawUA),
		Browser:    optional(click.Browser),
		OS:         optional(click.OS),
		Device:     optional(click.Device),
		IP:         optional(click.IP),
		Referer:    click.Referer,
		Country:    optional(click.Country),
		City:       optional(click.City),
	})
}

func (s *service) Resolve(c *ginext.Context) {
	code := c.Param("short_code")

	// Absent cookie just means no grant yet.
	token, _ := c.Cookie(grantCookieName(code))

	outcome := s.resolver.Resolve(c.Request.Context(), code, resolver.Request{
		UserAgent:  c.Request.UserAgent(),
		IP:         c.ClientIP(),
		Referer:    c.Request.Referer(),
		Now:        time.Now(),
		GrantToken: token,
	})

	switch outcome.Kind {
	case resolver.OutcomeRedirect:
		c.Redirect(http.StatusFound, outcome.TargetURL)
	case resolver.OutcomePasswordRequired:
		dto.PasswordRequiredResponse(c, code)
	case resolver.OutcomePending:
		dto.PendingResponse(c)
	default:
		dto.NotFoundError(c)
	}
}

type verifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

func (s *service) VerifyPassword(c *ginext.Context) {
	code := c.Param("short_code")

	var req verifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Invalid request body")
		return
	}
	if err := validator.Validate(c.Request.Context(), req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
		return
	}

	token, ok := s.verifier.Verify(c.Request.Context(), code, req.Password)
	if !ok {
		dto.PasswordInvalidError(c)
		return
	}

	c.SetCookie(grantCookieName(code), token, int(grant.TTL.Seconds()), "/", "", s.secureCookies, true)

	dto.SuccessResponse(c, map[string]string{"message": "Password accepted"})
}
