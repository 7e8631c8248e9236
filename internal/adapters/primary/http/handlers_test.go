package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mw "github.com/lorrc/region-sync/internal/adapters/primary/http/middleware"
	"github.com/lorrc/region-sync/internal/auth"
	"github.com/lorrc/region-sync/internal/core/dispatch"
	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/mocks"
	"github.com/lorrc/region-sync/internal/core/ports"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

const testSecret = "handler-test-secret"

type testServer struct {
	router   http.Handler
	tm       *auth.TokenManager
	receiver *mocks.MockEnvelopeReceiver
	presence *mocks.MockPresenceService
	estates  *mocks.MockEstateService
	friends  *fakeFriendsView
}

type fakeFriendsView struct {
	views map[uuid.UUID][]domain.FriendStatusPayload
}

func (f *fakeFriendsView) Snapshot(viewerID uuid.UUID) []domain.FriendStatusPayload {
	return f.views[viewerID]
}

// newTestServer wires the API routes the way the daemon does, minus the
// rate limiters.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logging.Discard()
	ts := &testServer{
		tm:       auth.NewTokenManager(testSecret, time.Hour),
		receiver: mocks.NewMockEnvelopeReceiver(),
		presence: mocks.NewMockPresenceService(),
		estates:  mocks.NewMockEstateService(),
		friends:  &fakeFriendsView{views: map[uuid.UUID][]domain.FriendStatusPayload{}},
	}

	errorHandler := NewErrorHandler(logger)
	envelopeHandler := NewEnvelopeHandler(ts.receiver, errorHandler, logger)
	presenceHandler := NewPresenceHandler(ts.presence, errorHandler, logger)
	estateHandler := NewEstateHandler(ts.estates, errorHandler, logger)
	meHandler := NewMeHandler(ts.friends, errorHandler, logger)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Route("/internal/v1/envelopes", envelopeHandler.RegisterRoutes)
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(ts.tm))
			r.Route("/presence", presenceHandler.RegisterRoutes)
			r.Route("/me", meHandler.RegisterRoutes)
			r.Route("/regions", estateHandler.RegisterRegionRoutes)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAdmin)
				r.Route("/estates", estateHandler.RegisterRoutes)
			})
		})
	})
	ts.router = r

	t.Cleanup(func() {
		ts.receiver.AssertExpectations(t)
		ts.presence.AssertExpectations(t)
		ts.estates.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID uuid.UUID, admin bool) string {
	t.Helper()
	token, err := ts.tm.GenerateToken(userID, admin)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestEnvelopeHandler(t *testing.T) {
	t.Run("consumed", func(t *testing.T) {
		ts := newTestServer(t)
		friend := uuid.New()
		ts.receiver.On("OnEnvelope",
			mock.MatchedBy(func(ctx context.Context) bool { return logging.GetDeliveryID(ctx) == "d-1" }),
			mock.MatchedBy(func(env domain.Envelope) bool {
				id, ok := env.UUID("FriendID")
				return env.Is("AgentStatusChange") && ok && id == friend
			}),
		).Return(true).Once()

		body := `{"Method":"AgentStatusChange","Message":{"FriendID":"` + friend.String() + `","UserID":"` + uuid.NewString() + `","NewStatus":true}}`
		rec := ts.do(t, http.MethodPost, "/internal/v1/envelopes", "", body, DeliveryIDHeader, "d-1")

		assert.Equal(t, http.StatusAccepted, rec.Code)
		receipt := decodeBody[EnvelopeReceipt](t, rec)
		assert.Equal(t, EnvelopeReceipt{Method: "AgentStatusChange", Consumed: true}, receipt)
	})

	t.Run("unknown method is accepted but not consumed", func(t *testing.T) {
		ts := newTestServer(t)
		ts.receiver.On("OnEnvelope", mock.Anything, mock.Anything).Return(false).Once()

		rec := ts.do(t, http.MethodPost, "/internal/v1/envelopes", "", `{"Method":"Nope","Message":{}}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.False(t, decodeBody[EnvelopeReceipt](t, rec).Consumed)
	})

	for name, body := range map[string]string{
		"not json":       `hello`,
		"missing method": `{"Message":{}}`,
		"array message":  `{"Method":"X","Message":[1]}`,
	} {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/internal/v1/envelopes", "", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "MALFORMED_ENVELOPE", decodeBody[ErrorResponse](t, rec).Code)
			ts.receiver.AssertNotCalled(t, "OnEnvelope", mock.Anything, mock.Anything)
		})
	}
}

func TestPresenceHandler(t *testing.T) {
	userID, regionID := uuid.New(), uuid.New()

	t.Run("login for self", func(t *testing.T) {
		ts := newTestServer(t)
		ts.presence.On("SetStatus", mock.Anything, ports.SetPresenceParams{
			UserID: userID, RegionID: regionID, Online: true,
		}).Return(domain.FanOut{Attempted: 3, Posted: 2}, nil).Once()

		body := `{"userId":"` + userID.String() + `","regionId":"` + regionID.String() + `","online":true}`
		rec := ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, userID, false), body)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeBody[struct {
			Data FanOutDTO `json:"data"`
		}](t, rec)
		assert.Equal(t, FanOutDTO{Attempted: 3, Posted: 2}, resp.Data)
	})

	t.Run("logout without region", func(t *testing.T) {
		ts := newTestServer(t)
		ts.presence.On("SetStatus", mock.Anything, ports.SetPresenceParams{UserID: userID}).
			Return(domain.FanOut{}, nil).Once()

		rec := ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, userID, false),
			`{"userId":"`+userID.String()+`","online":false}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("other user requires admin", func(t *testing.T) {
		ts := newTestServer(t)
		body := `{"userId":"` + userID.String() + `","regionId":"` + regionID.String() + `","online":true}`

		rec := ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, uuid.New(), false), body)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		ts.presence.On("SetStatus", mock.Anything, mock.Anything).Return(domain.FanOut{}, nil).Once()
		rec = ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, uuid.New(), true), body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/presence", "", `{}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"missing everything", `{}`, []string{"userId", "online"}},
		{"login without region", `{"userId":"` + userID.String() + `","online":true}`, []string{"regionId"}},
		{"bad uuid", `{"userId":"nope","regionId":"also-nope","online":true}`, []string{"userId", "regionId"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, userID, true), tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decodeBody[ValidationErrorResponse](t, rec)
			for _, f := range tt.fields {
				assert.Contains(t, resp.Fields, f)
			}
		})
	}

	t.Run("service validation error", func(t *testing.T) {
		ts := newTestServer(t)
		ts.presence.On("SetStatus", mock.Anything, mock.Anything).
			Return(domain.FanOut{}, apperrors.ErrInvalidStatusChange).Once()
		rec := ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, userID, false),
			`{"userId":"`+userID.String()+`","online":false}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("directory failure", func(t *testing.T) {
		ts := newTestServer(t)
		ts.presence.On("SetStatus", mock.Anything, mock.Anything).
			Return(domain.FanOut{}, errors.New("redis down")).Once()
		rec := ts.do(t, http.MethodPost, "/api/v1/presence", ts.token(t, userID, false),
			`{"userId":"`+userID.String()+`","online":false}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "redis down")
	})
}

func TestEstateHandler_UpdateSettings(t *testing.T) {
	admin := uuid.New()
	owner := uuid.New()
	body := `{"estateName":"  Mainland ","ownerId":"` + owner.String() + `","publicAccess":true,"abuseEmail":"abuse@example.com"}`

	t.Run("saved and propagated", func(t *testing.T) {
		ts := newTestServer(t)
		updatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		ts.estates.On("UpdateSettings", mock.Anything, mock.MatchedBy(func(p ports.UpdateEstateSettingsParams) bool {
			return p.EstateID == 7 && p.Settings.EstateID == 7 && p.Settings.OwnerID == owner && p.Settings.PublicAccess
		})).Return(&domain.EstateSettings{
			EstateID: 7, EstateName: "Mainland", OwnerID: owner, PublicAccess: true,
			AbuseEmail: "abuse@example.com", UpdatedAt: updatedAt,
		}, domain.FanOut{Attempted: 2, Posted: 2}, nil).Once()

		rec := ts.do(t, http.MethodPut, "/api/v1/estates/7/settings", ts.token(t, admin, true), body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeBody[struct {
			Data UpdateEstateSettingsResponse `json:"data"`
		}](t, rec)
		assert.Equal(t, uint32(7), resp.Data.Settings.EstateID)
		assert.Equal(t, "Mainland", resp.Data.Settings.EstateName)
		require.NotNil(t, resp.Data.Settings.OwnerID)
		assert.Equal(t, owner.String(), *resp.Data.Settings.OwnerID)
		require.NotNil(t, resp.Data.Settings.UpdatedAt)
		assert.Equal(t, "2026-03-01T12:00:00Z", *resp.Data.Settings.UpdatedAt)
		assert.Equal(t, FanOutDTO{Attempted: 2, Posted: 2}, resp.Data.Regions)
	})

	t.Run("requires admin", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/v1/estates/7/settings", ts.token(t, admin, false), body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad estate id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/v1/estates/0/settings", ts.token(t, admin, true), body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/v1/estates/7/settings", ts.token(t, admin, true),
			`{"estateName":"","abuseEmail":"nope","ownerId":"x"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeBody[ValidationErrorResponse](t, rec)
		assert.Contains(t, resp.Fields, "estateName")
		assert.Contains(t, resp.Fields, "abuseEmail")
		assert.Contains(t, resp.Fields, "ownerId")
	})

	t.Run("unknown estate", func(t *testing.T) {
		ts := newTestServer(t)
		ts.estates.On("UpdateSettings", mock.Anything, mock.Anything).
			Return(nil, domain.FanOut{}, apperrors.ErrEstateNotFound).Once()
		rec := ts.do(t, http.MethodPut, "/api/v1/estates/7/settings", ts.token(t, admin, true), body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "ESTATE_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)
	})
}

func TestEstateHandler_GetSettings(t *testing.T) {
	regionID := uuid.New()

	t.Run("found", func(t *testing.T) {
		ts := newTestServer(t)
		ts.estates.On("GetSettings", mock.Anything, regionID).
			Return(&domain.EstateSettings{EstateID: 3, EstateName: "Home"}, nil).Once()

		rec := ts.do(t, http.MethodGet, "/api/v1/regions/"+regionID.String()+"/estate-settings", ts.token(t, uuid.New(), false), "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[struct {
			Data EstateSettingsDTO `json:"data"`
		}](t, rec)
		assert.Equal(t, "Home", resp.Data.EstateName)
		assert.Nil(t, resp.Data.OwnerID)
		assert.Nil(t, resp.Data.UpdatedAt)
	})

	t.Run("not found", func(t *testing.T) {
		ts := newTestServer(t)
		ts.estates.On("GetSettings", mock.Anything, regionID).Return(nil, apperrors.ErrSettingsNotFound).Once()
		rec := ts.do(t, http.MethodGet, "/api/v1/regions/"+regionID.String()+"/estate-settings", ts.token(t, uuid.New(), false), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad region id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/regions/nope/estate-settings", ts.token(t, uuid.New(), false), "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestMeHandler(t *testing.T) {
	ts := newTestServer(t)
	userID, friend := uuid.New(), uuid.New()
	ts.friends.views[userID] = []domain.FriendStatusPayload{{FriendID: friend.String(), Online: true}}

	rec := ts.do(t, http.MethodGet, "/api/v1/me/", ts.token(t, userID, true), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MeResponse{UserID: userID.String(), Admin: true}, decodeBody[MeResponse](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/v1/me/friends", ts.token(t, userID, false), "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ListResponse[domain.FriendStatusPayload]](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, friend.String(), list.Data[0].FriendID)

	rec = ts.do(t, http.MethodGet, "/api/v1/me/friends", ts.token(t, uuid.New(), false), "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeBody[ListResponse[domain.FriendStatusPayload]](t, rec)
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Data)
}

type fixedStats dispatch.Stats

func (s fixedStats) Stats() dispatch.Stats { return dispatch.Stats(s) }

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	serve := func(h *HealthHandler, path string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.RegisterRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("liveness", func(t *testing.T) {
		rec := serve(NewHealthHandler(nil, nil, nil, "test"), "/health/live")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ready", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthChecker{"database": ok, "redis": ok}, nil, nil, "test")
		rec := serve(h, "/health/ready")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[HealthResponse](t, rec)
		assert.Equal(t, "healthy", resp.Status)
		assert.Len(t, resp.Checks, 2)
	})

	t.Run("not ready when a dependency is down", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthChecker{"database": ok, "redis": down}, nil, nil, "test")
		rec := serve(h, "/health/ready")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decodeBody[HealthResponse](t, rec)
		assert.Equal(t, "unhealthy", resp.Checks["redis"].Status)
		assert.Equal(t, "connection refused", resp.Checks["redis"].Message)
	})

	t.Run("not ready without dependencies", func(t *testing.T) {
		rec := serve(NewHealthHandler(nil, nil, nil, "test"), "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("detailed", func(t *testing.T) {
		stats := fixedStats{Queued: 5, Sent: 4, Failed: 1}
		h := NewHealthHandler(map[string]HealthChecker{"database": ok}, stats, func() int { return 2 }, "v1.2.3")
		rec := serve(h, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Version  string         `json:"version"`
			Scenes   int            `json:"scenes"`
			Dispatch dispatch.Stats `json:"dispatch"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "v1.2.3", resp.Version)
		assert.Equal(t, 2, resp.Scenes)
		assert.Equal(t, int64(4), resp.Dispatch.Sent)
		assert.Equal(t, int64(1), resp.Dispatch.Failed)
	})
}
