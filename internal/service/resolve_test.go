package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmpotulo28/redirect/internal/repo"
	"github.com/mmpotulo28/redirect/internal/resolver"
)

type fakeRepo struct {
	repo.Repository
	record  *repo.RedirectEntity
	clicks  []repo.ClickEntity
	created []repo.RedirectEntity
}

func (f *fakeRepo) GetRedirectByShortCode(ctx context.Context, code string) (*repo.RedirectEntity, error) {
	if f.record == nil || f.record.ShortCode != code {
		return nil, repo.ErrNotFound
	}
	return f.record, nil
}

func (f *fakeRepo) CreateClick(ctx context.Context, click repo.ClickEntity) error {
	f.clicks = append(f.clicks, click)
	return nil
}

func TestRecordSourceFindByShortCode(t *testing.T) {
	log := zerolog.Nop()
	target := "https://example.com"

	t.Run("maps record and drops unknown rule kinds", func(t *testing.T) {
		repository := &fakeRepo{record: &repo.RedirectEntity{
			ID:        7,
			ShortCode: "abc123",
			TargetURL: &target,
			Active:    true,
			Rules: []repo.TargetingRuleEntity{
				{Kind: "device", MatchKey: "mobile", TargetURL: "https://m.example.com"},
				{Kind: "lang", MatchKey: "en", TargetURL: "https://en.example.com"},
				{Kind: "geo", MatchKey: "US", TargetURL: "https://us.example.com"},
			},
		}}
		source := NewRecordSource(NewRecordCache(nil, repository, time.Minute, &log))

		record, err := source.FindByShortCode(context.Background(), "abc123")
		require.NoError(t, err)
		require.NotNil(t, record)

		assert.Equal(t, int64(7), record.ID)
		assert.Equal(t, &target, record.TargetURL)
		require.Len(t, record.Rules, 2)
		assert.Equal(t, resolver.RuleDevice, record.Rules[0].Kind)
		assert.Equal(t, resolver.RuleGeo, record.Rules[1].Kind)
	})

	t.Run("missing code yields nil without error", func(t *testing.T) {
		source := NewRecordSource(NewRecordCache(nil, &fakeRepo{}, time.Minute, &log))

		record, err := source.FindByShortCode(context.Background(), "nothere")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func TestClickWriterMapsEmptyFieldsToNull(t *testing.T) {
	repository := &fakeRepo{}
	writer := NewClickWriter(repository)

	err := writer.CreateClick(context.Background(), resolver.Click{
		RedirectID: 7,
		CreatedAt:  time.Now(),
		Browser:    "Chrome",
		Country:    "",
	})
	require.NoError(t, err)
	require.Len(t, repository.clicks, 1)

	click := repository.clicks[0]
	assert.Equal(t, int64(7), click.RedirectID)
	require.NotNil(t, click.Browser)
	assert.Equal(t, "Chrome", *click.Browser)
	assert.Nil(t, click.Country)
	assert.Nil(t, click.RawUA)
}
