package service

import (
	"errors"
	"math/rand"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/mmpotulo28/redirect/internal/dto"
	"github.com/mmpotulo28/redirect/internal/grant"
	"github.com/mmpotulo28/redirect/internal/repo"
	"github.com/mmpotulo28/redirect/internal/resolver"
	"github.com/mmpotulo28/redirect/pkg/validator"
)

type Service interface {
	ListRedirects(c *ginext.Context)
	CreateRedirect(c *ginext.Context)
	GetRedirect(c *ginext.Context)
	UpdateRedirect(c *ginext.Context)
	DeleteRedirect(c *ginext.Context)
	SetQRCode(c *ginext.Context)
	ShowAnalytics(c *ginext.Context)

	Resolve(c *ginext.Context)
	VerifyPassword(c *ginext.Context)
}

type service struct {
	repo     repo.Repository
	cache    *RecordCache
	resolver *resolver.Resolver
	verifier *grant.Verifier
	log      *zerolog.Logger

	// secureCookies marks the grant cookie Secure; enabled outside debug mode.
	secureCookies bool
}

func NewService(repository repo.Repository, cache *RecordCache, res *resolver.Resolver, verifier *grant.Verifier, secureCookies bool, log *zerolog.Logger) Service {
	return &service{
		repo:          repository,
		cache:         cache,
		resolver:      res,
		verifier:      verifier,
		log:           log,
		secureCookies: secureCookies,
	}
}

const shortCodeLength = 6

func generateShortCode(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

type targetingRuleRequest struct {
	Type      string `json:"type" validate:"required,oneof=device geo"`
	Key       string `json:"key" validate:"required,max=100"`
	TargetURL string `json:"target_url" validate:"required,url"`
}

type createRedirectRequest struct {
	TargetURL      *string                `json:"target_url" validate:"omitempty,url"`
	ShortCode      *string                `json:"short_code" validate:"omitempty,alphanum,min=3,max=30"`
	Description    *string                `json:"description"`
	Active         *bool                  `json:"active"`
	StartsAt       *time.Time             `json:"starts_at"`
	ExpiresAt      *time.Time             `json:"expires_at"`
	Password       *string                `json:"password"`
	OGTitle        *string                `json:"og_title"`
	OGDescription  *string                `json:"og_description"`
	OGImage        *string                `json:"og_image" validate:"omitempty,url"`
	TargetingRules []targetingRuleRequest `json:"targeting_rules" validate:"omitempty,dive"`
}

func toRuleEntities(rules []targetingRuleRequest) []repo.TargetingRuleEntity {
	entities := make([]repo.TargetingRuleEntity, 0, len(rules))
	for i, rule := range rules {
		entities = append(entities, repo.TargetingRuleEntity{
			Position:  i,
			Kind:      rule.Type,
			MatchKey:  rule.Key,
			TargetURL: rule.TargetURL,
		})
	}
	return entities
}

func userID(c *ginext.Context) string {
	return c.GetString("userID")
}

func (s *service) CreateRedirect(c *ginext.Context) {
	var req createRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.log.Error().Msgf("Invalid request body: %v", err)
		dto.BadResponseError(c, dto.FieldBadFormat, "Invalid request body")
		return
	}

	if err := validator.Validate(c.Request.Context(), req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
		return
	}

	code := generateShortCode(shortCodeLength)
	if req.ShortCode != nil {
		code = *req.ShortCode
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	entity := repo.RedirectEntity{
		ShortCode:     code,
		TargetURL:     req.TargetURL,
		Description:   req.Description,
		Active:        active,
		StartsAt:      req.StartsAt,
		ExpiresAt:     req.ExpiresAt,
		Password:      req.Password,
		OGTitle:       req.OGTitle,
		OGDescription: req.OGDescription,
		OGImage:       req.OGImage,
		UserID:        userID(c),
		CreatedAt:     time.Now(),
		Rules:         toRuleEntities(req.TargetingRules),
	}

	id, err := s.repo.CreateRedirect(c.Request.Context(), entity)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			dto.ShortAlreadyExistsError(c)
			return
		}
		s.log.Error().Msgf("Failed to create redirect: %v", err)
		dto.InternalServerError(c)
		return
	}
	entity.ID = id

	dto.SuccessCreatedResponse(c, toServiceRedirect(entity))
}

func (s *service) ListRedirects(c *ginext.Context) {
	entities, err := s.repo.ListRedirects(c.Request.Context(), userID(c))
	if err != nil {
		s.log.Error().Msgf("Failed to list redirects: %v", err)
		dto.InternalServerError(c)
		return
	}

	redirects := make([]Redirect, 0, len(entities))
	for _, entity := range entities {
		redirects = append(redirects, toServiceRedirect(entity))
	}

	dto.SuccessResponse(c, redirects)
}

func (s *service) GetRedirect(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entity, err := s.repo.GetRedirectByID(c.Request.Context(), id, userID(c))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to get redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	dto.SuccessResponse(c, toServiceRedirect(*entity))
}

type updateRedirectRequest struct {
	TargetURL      *string                 `json:"target_url" validate:"omitempty,url"`
	ShortCode      *string                 `json:"short_code" validate:"omitempty,alphanum,min=3,max=30"`
	Description    *string                 `json:"description"`
	Active         *bool                   `json:"active"`
	StartsAt       *time.Time              `json:"starts_at"`
	ExpiresAt      *time.Time              `json:"expires_at"`
	Password       *string                 `json:"password"`
	OGTitle        *string                 `json:"og_title"`
	OGDescription  *string                 `json:"og_description"`
	OGImage        *string                 `json:"og_image" validate:"omitempty,url"`
	TargetingRules *[]targetingRuleRequest `json:"targeting_rules" validate:"omitempty,dive"`
}

func (s *service) UpdateRedirect(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updateRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Invalid request body")
		return
	}
	if err := validator.Validate(c.Request.Context(), req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
		return
	}

	existing, err := s.repo.GetRedirectByID(c.Request.Context(), id, userID(c))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to load redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	previousCode := existing.ShortCode

	// PATCH semantics: only supplied fields change.
	if req.ShortCode != nil {
		existing.ShortCode = *req.ShortCode
	}
	if req.TargetURL != nil {
		existing.TargetURL = req.TargetURL
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}
	if req.StartsAt != nil {
		existing.StartsAt = req.StartsAt
	}
	if req.ExpiresAt != nil {
		existing.ExpiresAt = req.ExpiresAt
	}
	if req.Password != nil {
		existing.Password = req.Password
	}
	if req.OGTitle != nil {
		existing.OGTitle = req.OGTitle
	}
	if req.OGDescription != nil {
		existing.OGDescription = req.OGDescription
	}
	if req.OGImage != nil {
		existing.OGImage = req.OGImage
	}

	replaceRules := req.TargetingRules != nil
	if replaceRules {
		existing.Rules = toRuleEntities(*req.TargetingRules)
	}

	if err := s.repo.UpdateRedirect(c.Request.Context(), *existing, replaceRules); err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			dto.ShortAlreadyExistsError(c)
			return
		}
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to update redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	s.cache.Invalidate(c.Request.Context(), previousCode, existing.ShortCode)

	dto.SuccessResponse(c, toServiceRedirect(*existing))
}

func (s *service) DeleteRedirect(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	existing, err := s.repo.GetRedirectByID(c.Request.Context(), id, userID(c))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to load redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	if err := s.repo.DeleteRedirect(c.Request.Context(), id, userID(c)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to delete redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	s.cache.Invalidate(c.Request.Context(), existing.ShortCode)

	dto.SuccessNoContent(c)
}

type setQRCodeRequest struct {
	QRCodeURL string `json:"qr_code_url" validate:"required,url"`
}

func (s *service) SetQRCode(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req setQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Invalid request body")
		return
	}
	if err := validator.Validate(c.Request.Context(), req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
		return
	}

	if err := s.repo.SetQRCodeURL(c.Request.Context(), id, userID(c), req.QRCodeURL); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to set qr code for redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	dto.SuccessResponse(c, map[string]string{"qr_code_url": req.QRCodeURL})
}

const recentClicksLimit = 100

func (s *service) ShowAnalytics(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// Ownership gate before any click data is exposed.
	if _, err := s.repo.GetRedirectByID(c.Request.Context(), id, userID(c)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			dto.NotFoundError(c)
			return
		}
		s.log.Error().Msgf("Failed to load redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	ctx := c.Request.Context()

	summary, err := s.repo.GetRedirectAnalytics(ctx, id)
	if err != nil {
		s.log.Error().Msgf("Failed to get analytics for redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	byDate, err := s.repo.GetClicksByDate(ctx, id)
	if err != nil {
		s.log.Error().Msgf("Failed to get click series for redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}

	analytics := Analytics{Summary: *summary, ByDate: byDate}

	breakdowns := []struct {
		field string
		dest  *[]repo.FieldStat
	}{
		{"browser", &analytics.Browsers},
		{"os", &analytics.OS},
		{"device", &analytics.Devices},
		{"country", &analytics.Countries},
	}
	for _, b := range breakdowns {
		stats, err := s.repo.GetFieldBreakdown(ctx, id, b.field)
		if err != nil {
			s.log.Error().Msgf("Failed to get %s breakdown for redirect %d: %v", b.field, id, err)
			dto.InternalServerError(c)
			return
		}
		*b.dest = stats
	}

	clicks, err := s.repo.ListClicks(ctx, id, recentClicksLimit)
	if err != nil {
		s.log.Error().Msgf("Failed to list clicks for redirect %d: %v", id, err)
		dto.InternalServerError(c)
		return
	}
	analytics.RecentClicks = make([]Click, 0, len(clicks))
	for _, click := range clicks {
		analytics.RecentClicks = append(analytics.RecentClicks, toServiceClick(click))
	}

	dto.SuccessResponse(c, analytics)
}
