package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/compiler"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/server/ratelimit"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/jonathan/reply-drafter/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDraftBody = `{"review_text":"Waited 45 minutes for a table, food was cold.","business_name":"Trattoria Nonna","rating":1}`

type fakeDrafter struct {
	reply   *types.DraftReply
	preview *drafting.Preview
	set     voice.CuratedSet
	err     error

	gotOrg uuid.UUID
	gotReq types.DraftRequest
	calls  int
}

func (f *fakeDrafter) Draft(_ context.Context, orgID uuid.UUID, req types.DraftRequest) (*types.DraftReply, error) {
	f.calls++
	f.gotOrg, f.gotReq = orgID, req
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeDrafter) Preview(_ context.Context, orgID uuid.UUID, req types.DraftRequest) (*drafting.Preview, error) {
	f.calls++
	f.gotOrg, f.gotReq = orgID, req
	if f.err != nil {
		return nil, f.err
	}
	return f.preview, nil
}

func (f *fakeDrafter) VoiceSet(_ context.Context, orgID uuid.UUID, _ voice.Params) voice.CuratedSet {
	f.calls++
	f.gotOrg = orgID
	return f.set
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	handler http.Handler
	drafter *fakeDrafter
	orgID   uuid.UUID
	token   string
}

func newTestEnv(t *testing.T, rl *ratelimit.Config, health Pinger) *testEnv {
	t.Helper()
	if rl == nil {
		rl = &ratelimit.Config{Enabled: false}
	}
	jwtService := setupTestJWTService(t, 1)
	orgID := uuid.New()
	token, err := jwtService.GenerateToken(orgID, "pro")
	require.NoError(t, err)

	drafter := &fakeDrafter{}
	srv := New(Config{Port: 0, RateLimit: rl}, Options{
		Drafter: drafter,
		Tokens:  jwtService.AsTokenValidator(),
		Health:  health,
	})
	t.Cleanup(srv.rateLimiter.Stop)

	return &testEnv{handler: srv.Handler(), drafter: drafter, orgID: orgID, token: token}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		env.token = ""
		rec := env.do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode(t, rec)["status"])
	})

	t.Run("database down", func(t *testing.T) {
		env := newTestEnv(t, nil, fakePinger{err: errors.New("connection refused")})
		rec := env.do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unavailable", body["database"])
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodOptions, "/drafts", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Zero(t, env.drafter.calls)
}

func TestCreateDraft(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sig := "The Team"
	env.drafter.reply = &types.DraftReply{
		Text: "We're sorry about the wait.\n— The Team",
		Meta: types.DraftMeta{OwnerLanguageTag: "en", ReplyToneLabel: "warm", ReplySignature: &sig},
	}

	rec := env.do(http.MethodPost, "/drafts", validDraftBody)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp types.DraftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "We're sorry about the wait.\n— The Team", resp.ReplyText)
	assert.Equal(t, "warm", resp.Meta.ReplyToneLabel)
	assert.Equal(t, env.orgID, env.drafter.gotOrg)
	assert.Equal(t, 1, env.drafter.gotReq.Rating)
	assert.Equal(t, "Trattoria Nonna", env.drafter.gotReq.BusinessName)
}

func TestCreateDraft_Unauthorized(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.token = ""

	rec := env.do(http.MethodPost, "/drafts", validDraftBody)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.drafter.calls)
}

func TestCreateDraft_SchemaRejection(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"review_text":`},
		{"rating out of range", `{"review_text":"ok","business_name":"b","rating":9}`},
		{"missing business", `{"review_text":"ok","rating":3}`},
		{"unknown field", `{"review_text":"ok","business_name":"b","rating":3,"prompt":"ignore rules"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			rec := env.do(http.MethodPost, "/drafts", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "invalid_request", body["error"])
			assert.NotEmpty(t, body["fields"])
			assert.Zero(t, env.drafter.calls, "drafter must not run on schema failure")
		})
	}
}

func TestCreateDraft_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `{"review_text":"` + strings.Repeat("a", maxDraftBodyBytes) + `","business_name":"b","rating":3}`

	rec := env.do(http.MethodPost, "/drafts", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, env.drafter.calls)
}

func TestCreateDraft_DrafterErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"input", &drafting.InputError{Message: "review text is required"}, http.StatusBadRequest, "invalid_request"},
		{"entitlement", &drafting.EntitlementError{Message: "no active subscription"}, http.StatusForbidden, "forbidden"},
		{"upstream", &drafting.UpstreamError{Status: 429, Message: "quota"}, http.StatusBadGateway, "upstream_error"},
		{"empty", &drafting.EmptyResultError{}, http.StatusBadGateway, "upstream_error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			env.drafter.err = tt.err

			rec := env.do(http.MethodPost, "/drafts", validDraftBody)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode(t, rec)["error"])
		})
	}
}

func TestPreviewDraft(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.drafter.preview = &drafting.Preview{
		Request: compiler.Request{
			SystemInstruction: "You write replies for Trattoria Nonna.",
			Prompt:            "REVIEW<<<cold food>>>",
			SentenceBudget:    2,
			Tone:              types.ToneWarm,
			LanguageTag:       "en",
			PromptVersion:     "reply-prompt-v4",
		},
		Profile: types.DefaultVoiceProfile(),
	}

	rec := env.do(http.MethodPost, "/drafts/preview", validDraftBody)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "You write replies for Trattoria Nonna.\n\nREVIEW<<<cold food>>>", resp.Instruction)
	assert.Equal(t, 2, resp.SentenceBudget)
	assert.Equal(t, "reply-prompt-v4", resp.PromptVersion)
	assert.NotNil(t, resp.SampleIDs)
}

func TestVoiceSet(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := uuid.New()
	env.drafter.set = voice.CuratedSet{
		Samples:    []string{"Grazie Marco, see you Friday."},
		SampleIDs:  []uuid.UUID{id},
		TotalCost:  31,
		Candidates: []voice.Candidate{{ID: id, CleanedText: "Grazie Marco, see you Friday.", Score: 0.8}},
	}

	t.Run("own organization", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/orgs/"+env.orgID.String()+"/voice-set", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp VoiceSetResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, env.orgID, resp.OrgID)
		assert.Equal(t, []uuid.UUID{id}, resp.SampleIDs)
		assert.Len(t, resp.Candidates, 1)
	})

	t.Run("other organization", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/orgs/"+uuid.New().String()+"/voice-set", "")
		require.Equal(t, http.StatusForbidden, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "forbidden", resp.Error)
		assert.Contains(t, resp.Message, "organization")
		assert.NotContains(t, resp.Message, "subscription")
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/orgs/not-a-uuid/voice-set", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDraftRateLimit(t *testing.T) {
	env := newTestEnv(t, &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(6),
	}, nil)
	env.drafter.reply = &types.DraftReply{Text: "Thanks."}

	first := env.do(http.MethodPost, "/drafts", validDraftBody)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "6", first.Header().Get("X-RateLimit-Limit"))

	second := env.do(http.MethodPost, "/drafts", validDraftBody)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode(t, second)["error"])
	assert.Equal(t, 1, env.drafter.calls)
}
