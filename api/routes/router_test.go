package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/schoolorders-backend/internal/auth"
	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/internal/dispatches"
	"github.com/angelmondragon/schoolorders-backend/internal/fulfillment"
	"github.com/angelmondragon/schoolorders-backend/internal/orders"
	"github.com/angelmondragon/schoolorders-backend/internal/supportrequests"
	"github.com/angelmondragon/schoolorders-backend/internal/users"
	pkgAuth "github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth/session"
	"github.com/angelmondragon/schoolorders-backend/pkg/config"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/dbtest"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/metrics"
)

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }
func (stubSessions) Generate(context.Context, string) (string, error) { return "refresh", nil }
func (stubSessions) Rotate(context.Context, string, string) (string, string, error) {
	return "", "", session.ErrInvalidRefreshToken
}
func (stubSessions) Revoke(context.Context, string) error { return nil }

type testServer struct {
	handler http.Handler
	cfg     *config.Config
	exec    *models.User
	admin   *models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.Nop()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "schoolorders", ExpirationMinutes: 30},
		Orders: config.OrdersConfig{
			PublicBaseURL:      "https://orders.example.com",
			TotalsTolerance:    "0.01",
			ShareTokenAttempts: 3,
		},
	}

	reg := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(reg)
	engine := fulfillment.NewEngine(orderMetrics)
	cat := catalog.MustDefault()

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(client.DB()),
		SessionManager: stubSessions{},
		JWTConfig:      cfg.JWT,
	})
	require.NoError(t, err)
	usersSvc, err := users.NewService(users.NewRepository(client.DB()), cfg.Password, logg)
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(client.DB()),
		Tx:      client,
		Catalog: cat,
		Engine:  engine,
		Metrics: orderMetrics,
		Logger:  logg,
		Config:  cfg.Orders,
	})
	require.NoError(t, err)
	dispatchSvc, err := dispatches.NewService(dispatches.NewRepository(client.DB()), client, engine, logg)
	require.NoError(t, err)
	supportSvc, err := supportrequests.NewService(supportrequests.NewRepository(client.DB()), logg)
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, client, nil, stubSessions{}, reg, metrics.NewHTTPMetrics(reg), Services{
		Catalog:         cat,
		Auth:            authSvc,
		Users:           usersSvc,
		Orders:          ordersSvc,
		Dispatches:      dispatchSvc,
		SupportRequests: supportSvc,
	})

	return &testServer{
		handler: handler,
		cfg:     cfg,
		exec:    dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive),
		admin:   dbtest.MustCreateUser(t, client.DB(), enums.UserRoleAdmin),
	}
}

func (s *testServer) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: u.ID,
		Role:   u.Role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest), string(envelope.Data))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	live := srv.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, live.Code)

	ready := srv.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, ready.Code, ready.Body.String())

	metricsRec := srv.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "http_request_duration_seconds")
}

func TestProtectedRoutesRequireAuthAndRole(t *testing.T) {
	srv := newTestServer(t)

	anon := srv.do(t, http.MethodGet, "/api/v1/orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(anon.Body.Bytes(), &envelope))
	assert.Equal(t, "UNAUTHORIZED", envelope.Code)

	execOnAdmin := srv.do(t, http.MethodGet, "/api/admin/v1/dispatches", srv.token(t, srv.exec), "")
	assert.Equal(t, http.StatusForbidden, execOnAdmin.Code)

	adminList := srv.do(t, http.MethodGet, "/api/admin/v1/dispatches", srv.token(t, srv.admin), "")
	assert.Equal(t, http.StatusOK, adminList.Code, adminList.Body.String())
}

func TestCatalogRoutes(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, srv.exec)

	all := srv.do(t, http.MethodGet, "/api/v1/catalog", token, "")
	require.Equal(t, http.StatusOK, all.Code)
	assert.Contains(t, all.Body.String(), "Kinder Box 1.0")

	one := srv.do(t, http.MethodGet, "/api/v1/catalog/General%20Books", token, "")
	require.Equal(t, http.StatusOK, one.Code, one.Body.String())
	assert.Contains(t, one.Body.String(), "School Atlas")

	missing := srv.do(t, http.MethodGet, "/api/v1/catalog/Comics", token, "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	execToken := srv.token(t, srv.exec)
	adminToken := srv.token(t, srv.admin)

	created := srv.do(t, http.MethodPost, "/api/v1/orders", execToken, `{
		"school": {"school_name": "Green Valley School", "city": "Bengaluru"},
		"items": {
			"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": 2, "price": 1},
			"Kinder Box 1.0-Nursery Pack of 5 books": {"qty": "1"}
		},
		"discount_value": "300"
	}`)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var order orders.OrderDTO
	decodeData(t, created, &order)
	assert.Equal(t, "5300.00", order.TotalAmount)
	assert.Equal(t, "5000.00", order.NetAmount)

	share := srv.do(t, http.MethodPost, "/api/v1/orders/share", execToken, fmt.Sprintf(`{"order_id": %d}`, order.ID))
	require.Equal(t, http.StatusOK, share.Code, share.Body.String())
	var link orders.ShareLinkDTO
	decodeData(t, share, &link)
	require.NotEmpty(t, link.Token)
	assert.True(t, strings.HasPrefix(link.URL, "https://orders.example.com/orders/public/"))

	publicView := srv.do(t, http.MethodGet, link.Path, "", "")
	require.Equal(t, http.StatusOK, publicView.Code, publicView.Body.String())

	submitted := srv.do(t, http.MethodPost, link.Path, "", `{
		"contacts": {"principal_name": "R. Iyer"},
		"items": {"General Books-School Atlas": {"qty": 1}}
	}`)
	require.Equal(t, http.StatusOK, submitted.Code, submitted.Body.String())
	var view orders.PublicOrderDTO
	decodeData(t, submitted, &view)
	assert.True(t, view.Completed)
	assert.Equal(t, "5450.00", view.NetAmount)

	dispatch := srv.do(t, http.MethodPost, "/api/admin/v1/dispatches", adminToken,
		fmt.Sprintf(`{"lr_no": "LR-1001", "transporter": "VRL Logistics", "order_ids": [%d]}`, order.ID))
	require.Equal(t, http.StatusCreated, dispatch.Code, dispatch.Body.String())
	var shipment dispatches.DispatchDTO
	decodeData(t, dispatch, &shipment)

	delivered := srv.do(t, http.MethodPost, fmt.Sprintf("/api/admin/v1/dispatches/%d/delivered", shipment.ID), adminToken, "")
	require.Equal(t, http.StatusOK, delivered.Code, delivered.Body.String())

	detail := srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", order.ID), execToken, "")
	require.Equal(t, http.StatusOK, detail.Code)
	var final orders.OrderDTO
	decodeData(t, detail, &final)
	assert.Equal(t, enums.DeliveryStatusDelivered, final.Status)
	require.NotNil(t, final.DispatchID)
	assert.Equal(t, shipment.ID, *final.DispatchID)

	backward := srv.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", order.ID), adminToken, `{"status": "pending"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, backward.Code, backward.Body.String())
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email": "nobody@example.com", "password": "whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
