package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/ratelimit"
	"github.com/dmitrijs2005/healthvault/internal/server/config"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/healthvault/internal/server/services"
)

const testMaxUpload = 1 << 10

func newTestServer(t *testing.T, limiter Limiter) *httptest.Server {
	t.Helper()
	rm := repomanager.NewMemoryRepositoryManager()
	files, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: time.Hour,
	}
	log := logging.Nop{}
	access := services.NewAccessControl(rm)
	users := services.NewUserService(rm, files, log, cfg)

	s := NewServer("127.0.0.1:0", log, Deps{
		Users:          users,
		Reports:        services.NewReportService(rm, files, access, log, testMaxUpload),
		Vitals:         services.NewVitalService(rm, access),
		Sharing:        services.NewSharingService(rm, access, users, log),
		Store:          rm,
		Limiter:        limiter,
		MaxUploadBytes: testMaxUpload,
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *client) send(req *http.Request) (*http.Response, []byte) {
	c.t.Helper()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *client) register(email, name string) authResponse {
	c.t.Helper()
	resp, data := c.do(http.MethodPost, "/api/auth/register",
		registerRequest{Email: email, Password: "password", FullName: name})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, string(data))
	var out authResponse
	require.NoError(c.t, json.Unmarshal(data, &out))
	return out
}

func (c *client) upload(fields map[string]string, contentType string, data []byte) (*http.Response, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="report.pdf"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(c.t, err)
	_, err = part.Write(data)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, c.base+"/api/reports/upload", &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL}
	resp, data := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL}

	reg := c.register("Alice@Example.com", "Alice")
	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.AccessToken)

	resp, _ := c.do(http.MethodPost, "/api/auth/register",
		registerRequest{Email: "alice@example.com", Password: "x", FullName: "A"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "alice@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data := c.do(http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[services.TokenPair](t, data)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)

	resp, _ = c.do(http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: reg.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/reports", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing bearer token")

	c.token = "garbage"
	resp, _ = c.do(http.MethodGet, "/api/reports", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c.token = pair.AccessToken
	resp, _ = c.do(http.MethodDelete, "/api/auth/account", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	c.token = ""
	resp, _ = c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "alice@example.com", Password: "password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReportsAndSharing(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := &client{t: t, base: ts.URL}
	alice.token = alice.register("alice@example.com", "Alice").AccessToken
	bob := &client{t: t, base: ts.URL}
	bob.token = bob.register("bob@example.com", "Bob").AccessToken

	resp, data := alice.upload(map[string]string{
		"title":      "CBC",
		"reportType": "Blood Test",
		"reportDate": "2024-01-10",
		"vitals":     `[{"vitalType":"Glucose","value":"5.4","unit":"mmol/L"},{"vitalType":"","value":"1","unit":"x"}]`,
	}, "application/pdf", []byte("%PDF-1.4 cbc"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	up := decode[uploadResponse](t, data)
	assert.Equal(t, services.OutcomePartialFailure, up.Outcome)
	require.Len(t, up.Failures, 1)
	assert.Equal(t, 1, up.Failures[0].Index)
	reportID := up.Report.ID
	assert.Equal(t, "2024-01-10", up.Report.ReportDate)

	resp, data = alice.do(http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]reportJSON](t, data)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].VitalCount)

	resp, _ = bob.do(http.MethodGet, "/api/reports/"+reportID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "not shared yet")
	resp, missing := bob.do(http.MethodGet, "/api/reports/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, forbidden := bob.do(http.MethodGet, "/api/reports/"+reportID, nil)
	assert.Equal(t, string(missing), string(forbidden), "missing and forbidden look the same")

	resp, data = alice.do(http.MethodPost, "/api/sharing/share", shareRequest{ReportID: reportID, Email: "BOB@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	grant := decode[shareJSON](t, data)
	assert.Equal(t, "bob@example.com", grant.RecipientEmail)

	resp, _ = alice.do(http.MethodPost, "/api/sharing/share", shareRequest{ReportID: reportID, Email: "bob@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, data = bob.do(http.MethodGet, "/api/reports/"+reportID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[reportViewJSON](t, data)
	assert.Equal(t, services.CapabilitySharedRead, view.Capability)
	assert.Len(t, view.Vitals, 1)

	resp, data = bob.do(http.MethodGet, "/api/reports/"+reportID+"/file", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 cbc", string(data))

	resp, data = bob.do(http.MethodGet, "/api/sharing/received", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recv := decode[[]receivedShareJSON](t, data)
	require.Len(t, recv, 1)
	assert.Equal(t, "Alice", recv[0].OwnerName)

	resp, _ = bob.do(http.MethodDelete, "/api/reports/"+reportID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "shared read cannot delete")
	resp, _ = bob.do(http.MethodPost, "/api/vitals", addVitalRequest{ReportID: reportID,
		VitalInput: services.VitalInput{VitalType: "HR", Value: "60", Unit: "bpm"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "shared read cannot write")

	resp, data = alice.do(http.MethodGet, "/api/sharing/report/"+reportID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sent := decode[[]sentShareJSON](t, data)
	require.Len(t, sent, 1)
	assert.Equal(t, "Bob", sent[0].RecipientName)

	resp, _ = alice.do(http.MethodDelete, "/api/sharing/share/"+grant.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = bob.do(http.MethodGet, "/api/reports/"+reportID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "revoked")

	resp, _ = alice.do(http.MethodDelete, "/api/reports/"+reportID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = alice.do(http.MethodGet, "/api/reports/"+reportID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL}
	c.token = c.register("alice@example.com", "Alice").AccessToken
	fields := map[string]string{"title": "CBC", "reportType": "Blood Test", "reportDate": "2024-01-10"}

	resp, _ := c.upload(fields, "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = c.upload(map[string]string{"reportType": "Blood Test", "reportDate": "2024-01-10"}, "application/pdf", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "title is required")

	resp, _ = c.upload(fields, "application/pdf", bytes.Repeat([]byte("a"), testMaxUpload+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, data := c.do(http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]reportJSON](t, data))
}

func TestVitalsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL}
	c.token = c.register("alice@example.com", "Alice").AccessToken

	for i, day := range []string{"2024-01-10", "2024-02-10"} {
		resp, data := c.upload(map[string]string{
			"title": fmt.Sprintf("R%d", i), "reportType": "Blood Test", "reportDate": day,
			"vitals": fmt.Sprintf(`[{"vitalType":"Glucose","value":"%d","unit":"mmol/L"}]`, 5+i),
		}, "image/png", []byte("png"))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	}

	resp, data := c.do(http.MethodGet, "/api/vitals/trends?vitalType=Glucose", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trend := decode[[]vitalJSON](t, data)
	require.Len(t, trend, 2)
	assert.Equal(t, "5", trend[0].Value)
	assert.Equal(t, "2024-02-10", trend[1].ReportDate)

	resp, data = c.do(http.MethodGet, "/api/vitals/trends?startDate=2024-02-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]vitalJSON](t, data), 1)

	resp, _ = c.do(http.MethodGet, "/api/vitals/trends?startDate=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = c.do(http.MethodGet, "/api/vitals/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sum := decode[[]summaryJSON](t, data)
	require.Len(t, sum, 1)
	assert.Equal(t, 2, sum[0].Count)
	assert.Equal(t, "6", sum[0].LatestValue)
	assert.Equal(t, []string{"6", "5"}, sum[0].RecentValues)

	resp, data = c.do(http.MethodGet, "/api/reports/search?vitalType=Glucose&startDate=2024-02-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[[]reportJSON](t, data)
	require.Len(t, found, 1)
	reportID := found[0].ID

	resp, data = c.do(http.MethodPost, "/api/vitals", addVitalRequest{ReportID: reportID,
		VitalInput: services.VitalInput{VitalType: "HR", Value: "60", Unit: "bpm"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	added := decode[vitalJSON](t, data)

	resp, data = c.do(http.MethodGet, "/api/vitals/report/"+reportID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]vitalJSON](t, data), 2)

	resp, _ = c.do(http.MethodDelete, "/api/vitals/"+added.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = c.do(http.MethodDelete, "/api/vitals/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewFixedWindowLimiter(mr.Addr(), "test", 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	ts := newTestServer(t, limiter)
	c := &client{t: t, base: ts.URL}

	body := loginRequest{Email: "u@example.com", Password: "pass"}
	resp, _ := c.do(http.MethodPost, "/api/auth/login", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/login", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	resp, _ = c.do(http.MethodPost, "/api/auth/register",
		registerRequest{Email: "u@example.com", Password: "pass", FullName: "U"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "quota is per path")
}
