package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
)

// ErrNotFound is returned when a redirect does not exist or is not owned by
// the requesting user.
var ErrNotFound = errors.New("redirect not found")

type Repository interface {
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error

	CreateRedirect(ctx context.Context, redirect RedirectEntity) (int64, error)
	GetRedirectByID(ctx context.Context, id int64, userID string) (*RedirectEntity, error)
	ListRedirects(ctx context.Context, userID string) ([]RedirectEntity, error)
	UpdateRedirect(ctx context.Context, redirect RedirectEntity, replaceRules bool) error
	DeleteRedirect(ctx context.Context, id int64, userID string) error
	SetQRCodeURL(ctx context.Context, id int64, userID, qrCodeURL string) error

	GetRedirectByShortCode(ctx context.Context, code string) (*RedirectEntity, error)
	PasswordForShortCode(ctx context.Context, code string) (*string, error)

	CreateClick(ctx context.Context, click ClickEntity) error
	ListClicks(ctx context.Context, redirectID int64, limit int) ([]ClickEntity, error)

	GetRedirectAnalytics(ctx context.Context, redirectID int64) (*RedirectAnalytics, error)
	GetClicksByDate(ctx context.Context, redirectID int64) ([]DateStat, error)
	GetFieldBreakdown(ctx context.Context, redirectID int64, field string) ([]FieldStat, error)
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) CreateRedirect(ctx context.Context, redirect RedirectEntity) (int64, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO redirects (short_code, target_url, description, active, starts_at, expires_at,
		                       password, og_title, og_description, og_image, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	var id int64
	err = tx.QueryRowContext(ctx, query,
		redirect.ShortCode,
		redirect.TargetURL,
		redirect.Description,
		redirect.Active,
		redirect.StartsAt,
		redirect.ExpiresAt,
		redirect.Password,
		redirect.OGTitle,
		redirect.OGDescription,
		redirect.OGImage,
		redirect.UserID,
		redirect.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert redirect: %w", err)
	}

	if err := insertRules(ctx, tx, id, redirect.Rules); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit redirect: %w", err)
	}

	return id, nil
}

func insertRules(ctx context.Context, tx *sql.Tx, redirectID int64, rules []TargetingRuleEntity) error {
	query := `
		INSERT INTO targeting_rules (redirect_id, position, kind, match_key, target_url)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, rule := range rules {
		if _, err := tx.ExecContext(ctx, query, redirectID, i, rule.Kind, rule.MatchKey, rule.TargetURL); err != nil {
			return fmt.Errorf("failed to insert targeting rule: %w", err)
		}
	}

	return nil
}

const redirectColumns = `id, short_code, target_url, description, active, starts_at, expires_at,
	password, og_title, og_description, og_image, qr_code_url, user_id, created_at`

func scanRedirect(rows *sql.Rows) (*RedirectEntity, error) {
	var redirect RedirectEntity
	err := rows.Scan(
		&redirect.ID,
		&redirect.ShortCode,
		&redirect.TargetURL,
		&redirect.Description,
		&redirect.Active,
		&redirect.StartsAt,
		&redirect.ExpiresAt,
		&redirect.Password,
		&redirect.OGTitle,
		&redirect.OGDescription,
		&redirect.OGImage,
		&redirect.QRCodeURL,
		&redirect.UserID,
		&redirect.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan redirect: %w", err)
	}

	return &redirect, nil
}

func (r *repository) GetRedirectByID(ctx context.Context, id int64, userID string) (*RedirectEntity, error) {
	query := fmt.Sprintf(`SELECT %s FROM redirects WHERE id = $1 AND user_id = $2`, redirectColumns)

	rows, err := r.db.QueryContext(ctx, query, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redirect by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	redirect, err := scanRedirect(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadRules(ctx, []*RedirectEntity{redirect}); err != nil {
		return nil, err
	}
	if err := r.loadClickCounts(ctx, []*RedirectEntity{redirect}); err != nil {
		return nil, err
	}

	return redirect, nil
}

func (r *repository) ListRedirects(ctx context.Context, userID string) ([]RedirectEntity, error) {
	query := fmt.Sprintf(`SELECT %s FROM redirects WHERE user_id = $1 ORDER BY created_at DESC`, redirectColumns)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list redirects: %w", err)
	}
	defer rows.Close()

	var redirects []*RedirectEntity
	for rows.Next() {
		redirect, err := scanRedirect(rows)
		if err != nil {
			return nil, err
		}
		redirects = append(redirects, redirect)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	rows.Close()

	if err := r.loadRules(ctx, redirects); err != nil {
		return nil, err
	}
	if err := r.loadClickCounts(ctx, redirects); err != nil {
		return nil, err
	}

	result := make([]RedirectEntity, 0, len(redirects))
	for _, redirect := range redirects {
		result = append(result, *redirect)
	}

	return result, nil
}

// loadRules attaches targeting rules in position order to each redirect.
func (r *repository) loadRules(ctx context.Context, redirects []*RedirectEntity) error {
	if len(redirects) == 0 {
		return nil
	}

	byID := make(map[int64]*RedirectEntity, len(redirects))
	ids := make([]int64, 0, len(redirects))
	for _, redirect := range redirects {
		byID[redirect.ID] = redirect
		ids = append(ids, redirect.ID)
	}

	query := `
		SELECT id, redirect_id, position, kind, match_key, target_url
		FROM targeting_rules
		WHERE redirect_id = ANY($1)
		ORDER BY redirect_id, position
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query targeting rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule TargetingRuleEntity
		if err := rows.Scan(&rule.ID, &rule.RedirectID, &rule.Position, &rule.Kind, &rule.MatchKey, &rule.TargetURL); err != nil {
			return fmt.Errorf("failed to scan targeting rule: %w", err)
		}
		if redirect, ok := byID[rule.RedirectID]; ok {
			redirect.Rules = append(redirect.Rules, rule)
		}
	}

	return rows.Err()
}

func (r *repository) loadClickCounts(ctx context.Context, redirects []*RedirectEntity) error {
	if len(redirects) == 0 {
		return nil
	}

	byID := make(map[int64]*RedirectEntity, len(redirects))
	ids := make([]int64, 0, len(redirects))
	for _, redirect := range redirects {
		byID[redirect.ID] = redirect
		ids = append(ids, redirect.ID)
	}

	query := `SELECT redirect_id, COUNT(*) FROM clicks WHERE redirect_id = ANY($1) GROUP BY redirect_id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query click counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return fmt.Errorf("failed to scan click count: %w", err)
		}
		if redirect, ok := byID[id]; ok {
			redirect.ClickCount = count
		}
	}

	return rows.Err()
}

func (r *repository) UpdateRedirect(ctx context.Context, redirect RedirectEntity, replaceRules bool) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE redirects
		SET short_code = $1, target_url = $2, description = $3, active = $4, starts_at = $5,
		    expires_at = $6, password = $7, og_title = $8, og_description = $9, og_image = $10
		WHERE id = $11 AND user_id = $12
	`
	res, err := tx.ExecContext(ctx, query,
		redirect.ShortCode,
		redirect.TargetURL,
		redirect.Description,
		redirect.Active,
		redirect.StartsAt,
		redirect.ExpiresAt,
		redirect.Password,
		redirect.OGTitle,
		redirect.OGDescription,
		redirect.OGImage,
		redirect.ID,
		redirect.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update redirect: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	// Rules have no independent identity: a rule update replaces the whole set.
	if replaceRules {
		if _, err := tx.ExecContext(ctx, `DELETE FROM targeting_rules WHERE redirect_id = $1`, redirect.ID); err != nil {
			return fmt.Errorf("failed to clear targeting rules: %w", err)
		}
		if err := insertRules(ctx, tx, redirect.ID, redirect.Rules); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit redirect update: %w", err)
	}

	return nil
}

func (r *repository) DeleteRedirect(ctx context.Context, id int64, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM redirects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete redirect: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *repository) SetQRCodeURL(ctx context.Context, id int64, userID, qrCodeURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE redirects SET qr_code_url = $1 WHERE id = $2 AND user_id = $3`,
		qrCodeURL, id, userID)
	if err != nil {
		return fmt.Errorf("failed to set qr code url: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *repository) GetRedirectByShortCode(ctx context.Context, code string) (*RedirectEntity, error) {
	query := fmt.Sprintf(`SELECT %s FROM redirects WHERE short_code = $1 LIMIT 1`, redirectColumns)

	rows, err := r.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query redirect by short code: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	redirect, err := scanRedirect(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadRules(ctx, []*RedirectEntity{redirect}); err != nil {
		return nil, err
	}

	return redirect, nil
}

func (r *repository) PasswordForShortCode(ctx context.Context, code string) (*string, error) {
	redirect, err := r.GetRedirectByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return redirect.Password, nil
}

func (r *repository) CreateClick(ctx context.Context, click ClickEntity) error {
	query := `
		INSERT INTO clicks (redirect_id, created_at, raw_ua, browser, os, device, ip, referer, country, city)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		click.RedirectID,
		click.CreatedAt,
		click.RawUA,
		click.Browser,
		click.OS,
		click.Device,
		click.IP,
		click.Referer,
		click.Country,
		click.City,
	)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	return nil
}

func (r *repository) ListClicks(ctx context.Context, redirectID int64, limit int) ([]ClickEntity, error) {
	query := `
		SELECT id, redirect_id, created_at, raw_ua, browser, os, device, ip, referer, country, city
		FROM clicks
		WHERE redirect_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, redirectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	var clicks []ClickEntity
	for rows.Next() {
		var click ClickEntity
		err := rows.Scan(
			&click.ID,
			&click.RedirectID,
			&click.CreatedAt,
			&click.RawUA,
			&click.Browser,
			&click.OS,
			&click.Device,
			&click.IP,
			&click.Referer,
			&click.Country,
			&click.City,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, click)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return clicks, nil
}
