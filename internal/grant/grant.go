package grant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/redis"
)

// TTL is how long a grant proves password verification for a short code.
const TTL = 24 * time.Hour

// Commands is the slice of the Redis client the grant store needs. Grants
// are never revoked, so there is no delete.
type Commands interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// grantRecord is what gets stored under grant:<code>:<token>. The expiry is
// kept in the value as well so a stale entry is rejected even if the key
// somehow outlives its TTL.
type grantRecord struct {
	ShortCode string    `json:"short_code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store issues and checks time-limited access grants backed by Redis.
type Store struct {
	rdb Commands
	log *zerolog.Logger
	now func() time.Time
}

func NewStore(rdb Commands, log *zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log, now: time.Now}
}

func grantKey(code, token string) string {
	return fmt.Sprintf("grant:%s:%s", code, token)
}

// Issue creates a grant scoped to the short code and returns its token.
func (s *Store) Issue(ctx context.Context, code string) (string, error) {
	token := uuid.NewString()

	record := grantRecord{
		ShortCode: code,
		IssuedAt:  s.now(),
		ExpiresAt: s.now().Add(TTL),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal grant: %w", err)
	}

	if err := s.rdb.SetWithExpiration(ctx, grantKey(code, token), data, TTL); err != nil {
		return "", fmt.Errorf("failed to store grant: %w", err)
	}

	return token, nil
}

// Valid reports whether the token is an unexpired grant for the short code.
func (s *Store) Valid(ctx context.Context, code, token string) bool {
	if token == "" {
		return false
	}

	data, err := s.rdb.Get(ctx, grantKey(code, token))
	if err != nil {
		if !errors.Is(err, redis.NoMatches) {
			s.log.Warn().Msgf("failed to read grant for %s: %v", code, err)
		}
		return false
	}

	var record grantRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		s.log.Warn().Msgf("corrupt grant for %s: %v", code, err)
		return false
	}

	return record.ShortCode == code && s.now().Before(record.ExpiresAt)
}

// PasswordSource exposes the stored secret for a short code. A nil result
// means the record has no password or does not exist.
type PasswordSource interface {
	PasswordForShortCode(ctx context.Context, code string) (*string, error)
}

// Verifier checks supplied passwords and issues grants on success.
type Verifier struct {
	records PasswordSource
	grants  *Store
	log     *zerolog.Logger
}

func NewVerifier(records PasswordSource, grants *Store, log *zerolog.Logger) *Verifier {
	return &Verifier{records: records, grants: grants, log: log}
}

// Verify compares the supplied password against the stored secret and, on
// match, issues a 24h grant for the short code. Records without a password
// always fail, so "no password configured" is never mistaken for "any
// password works".
//
// The comparison is plaintext equality against the stored secret, matching
// how the secrets are stored today. See DESIGN.md for the hashing caveat.
func (v *Verifier) Verify(ctx context.Context, code, supplied string) (string, bool) {
	stored, err := v.records.PasswordForShortCode(ctx, code)
	if err != nil {
		v.log.Error().Msgf("failed to load password for %s: %v", code, err)
		return "", false
	}
	if stored == nil || *stored == "" {
		return "", false
	}

	if *stored != supplied {
		return "", false
	}

	token, err := v.grants.Issue(ctx, code)
	if err != nil {
		v.log.Error().Msgf("failed to issue grant for %s: %v", code, err)
		return "", false
	}

	return token, true
}
