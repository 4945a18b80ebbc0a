package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmpotulo28/redirect/internal/dto"
	"github.com/mmpotulo28/redirect/internal/repo"
)

func (f *fakeRepo) CreateRedirect(ctx context.Context, redirect repo.RedirectEntity) (int64, error) {
	f.created = append(f.created, redirect)
	return 42, nil
}

func newTestService(repository repo.Repository) Service {
	log := zerolog.Nop()
	cache := NewRecordCache(nil, repository, time.Minute, &log)
	return NewService(repository, cache, nil, nil, false, &log)
}

func postJSON(svc Service, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/redirects", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("userID", "user-1")

	svc.CreateRedirect(c)

	return w
}

func TestCreateRedirectRejectsMalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "unknown rule type",
			body:     `{"targeting_rules":[{"type":"lang","key":"en","target_url":"https://en.example.com"}]}`,
			wantCode: dto.FieldIncorrect,
		},
		{
			name:     "rule target is not a url",
			body:     `{"targeting_rules":[{"type":"device","key":"mobile","target_url":"not-a-url"}]}`,
			wantCode: dto.FieldIncorrect,
		},
		{
			name:     "target is not a url",
			body:     `{"target_url":"not-a-url"}`,
			wantCode: dto.FieldIncorrect,
		},
		{
			name:     "custom short code too short",
			body:     `{"short_code":"ab"}`,
			wantCode: dto.FieldIncorrect,
		},
		{
			name:     "body is not json",
			body:     `{broken`,
			wantCode: dto.FieldBadFormat,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repository := &fakeRepo{}
			w := postJSON(newTestService(repository), tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)

			assert.Empty(t, repository.created)
		})
	}
}

func TestCreateRedirectAcceptsValidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repository := &fakeRepo{}
	body := `{"target_url":"https://example.com","targeting_rules":[{"type":"geo","key":"US","target_url":"https://us.example.com"}]}`
	w := postJSON(newTestService(repository), body)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repository.created, 1)

	created := repository.created[0]
	assert.Equal(t, "user-1", created.UserID)
	require.NotNil(t, created.TargetURL)
	assert.Equal(t, "https://example.com", *created.TargetURL)
	assert.Len(t, created.ShortCode, 6)
	require.Len(t, created.Rules, 1)
	assert.Equal(t, "geo", created.Rules[0].Kind)
}
