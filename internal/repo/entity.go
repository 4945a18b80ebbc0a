package repo

import "time"

type RedirectEntity struct {
	ID            int64      `db:"id"`
	ShortCode     string     `db:"short_code"`
	TargetURL     *string    `db:"target_url"`
	Description   *string    `db:"description"`
	Active        bool       `db:"active"`
	StartsAt      *time.Time `db:"starts_at"`
	ExpiresAt     *time.Time `db:"expires_at"`
	Password      *string    `db:"password"`
	OGTitle       *string    `db:"og_title"`
	OGDescription *string    `db:"og_description"`
	OGImage       *string    `db:"og_image"`
	QRCodeURL     *string    `db:"qr_code_url"`
	UserID        string     `db:"user_id"`
	CreatedAt     time.Time  `db:"created_at"`

	Rules      []TargetingRuleEntity `db:"-"`
	ClickCount int64                 `db:"-"`
}

type TargetingRuleEntity struct {
	ID         int64  `db:"id"`
	RedirectID int64  `db:"redirect_id"`
	Position   int    `db:"position"`
	Kind       string `db:"kind"`
	MatchKey   string `db:"match_key"`
	TargetURL  string `db:"target_url"`
}

type ClickEntity struct {
	ID         int64     `db:"id"`
	RedirectID int64     `db:"redirect_id"`
	CreatedAt  time.Time `db:"created_at"`
	RawUA      *string   `db:"raw_ua"`
	Browser    *string   `db:"browser"`
	OS         *string   `db:"os"`
	Device     *string   `db:"device"`
	IP         *string   `db:"ip"`
	Referer    *string   `db:"referer"`
	Country    *string   `db:"country"`
	City       *string   `db:"city"`
}

type RedirectAnalytics struct {
	RedirectID  int64           `json:"redirect_id"`
	TotalClicks int64           `json:"total_clicks"`
	UniqueIPs   int64           `json:"unique_ips"`
	Period      AnalyticsPeriod `json:"period"`
}

type AnalyticsPeriod struct {
	Last7Days  int64 `json:"last_7_days"`
	Last30Days int64 `json:"last_30_days"`
	AllTime    int64 `json:"all_time"`
}

type FieldStat struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type DateStat struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
