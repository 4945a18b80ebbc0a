package service

import (
	"time"

	"github.com/mmpotulo28/redirect/internal/repo"
)

type Redirect struct {
	ID            int64           `json:"id"`
	ShortCode     string          `json:"short_code"`
	TargetURL     *string         `json:"target_url,omitempty"`
	Description   *string         `json:"description,omitempty"`
	Active        bool            `json:"active"`
	StartsAt      *time.Time      `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	HasPassword   bool            `json:"has_password"`
	OGTitle       *string         `json:"og_title,omitempty"`
	OGDescription *string         `json:"og_description,omitempty"`
	OGImage       *string         `json:"og_image,omitempty"`
	QRCodeURL     *string         `json:"qr_code_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ClickCount    int64           `json:"click_count"`
	Rules         []TargetingRule `json:"targeting_rules,omitempty"`
}

type TargetingRule struct {
	Type      string `json:"type"`
	Key       string `json:"key"`
	TargetURL string `json:"target_url"`
}

type Click struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Browser   *string   `json:"browser,omitempty"`
	OS        *string   `json:"os,omitempty"`
	Device    *string   `json:"device,omitempty"`
	IP        *string   `json:"ip,omitempty"`
	Referer   *string   `json:"referer,omitempty"`
	Country   *string   `json:"country,omitempty"`
	City      *string   `json:"city,omitempty"`
	RawUA     *string   `json:"raw_ua,omitempty"`
}

type Analytics struct {
	Summary      repo.RedirectAnalytics `json:"summary"`
	ByDate       []repo.DateStat        `json:"by_date"`
	Browsers     []repo.FieldStat       `json:"browsers"`
	OS           []repo.FieldStat       `json:"os"`
	Devices      []repo.FieldStat       `json:"devices"`
	Countries    []repo.FieldStat       `json:"countries"`
	RecentClicks []Click                `json:"recent_clicks"`
}

// The stored secret itself never leaves the service layer; dashboard callers
// only learn whether a password is set.
func toServiceRedirect(e repo.RedirectEntity) Redirect {
	rules := make([]TargetingRule, 0, len(e.Rules))
	for _, rule := range e.Rules {
		rules = append(rules, TargetingRule{
			Type:      rule.Kind,
			Key:       rule.MatchKey,
			TargetURL: rule.TargetURL,
		})
	}

	return Redirect{
		ID:            e.ID,
		ShortCode:     e.ShortCode,
		TargetURL:     e.TargetURL,
		Description:   e.Description,
		Active:        e.Active,
		StartsAt:      e.StartsAt,
		ExpiresAt:     e.ExpiresAt,
		HasPassword:   e.Password != nil && *e.Password != "",
		OGTitle:       e.OGTitle,
		OGDescription: e.OGDescription,
		OGImage:       e.OGImage,
		QRCodeURL:     e.QRCodeURL,
		CreatedAt:     e.CreatedAt,
		ClickCount:    e.ClickCount,
		Rules:         rules,
	}
}

func toServiceClick(e repo.ClickEntity) Click {
	return Click{
		ID:        e.ID,
		CreatedAt: e.CreatedAt,
		Browser:   e.Browser,
		OS:        e.OS,
		Device:    e.Device,
		IP:        e.IP,
		Referer:   e.Referer,
		Country:   e.Country,
		City:      e.City,
		RawUA:     e.RawUA,
	}
}
