package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferpoks/wabridge/internal/dispatch"
	"github.com/ferpoks/wabridge/internal/events"
	"github.com/ferpoks/wabridge/internal/merchant"
	"github.com/ferpoks/wabridge/internal/salla"
	"github.com/ferpoks/wabridge/internal/store/storetest"
	"github.com/ferpoks/wabridge/pkg/models"
)

// --- fixtures ---

func newMerchant(t *testing.T, storeIDs ...string) (*merchant.Service, *storetest.MemoryStore) {
	t.Helper()
	mem := storetest.NewMemoryStore()
	svc := merchant.NewService(mem)
	for _, id := range storeIDs {
		_, err := svc.Onboard(context.Background(), merchant.OnboardInput{
			StoreID:     id,
			StoreDomain: id + ".salla.sa",
			AccessToken: "acc-" + id,
			ExpiresIn:   time.Hour,
		})
		require.NoError(t, err)
	}
	return svc, mem
}

type mockDispatcher struct {
	text     func(req dispatch.SendRequest) (dispatch.Result, error)
	template func(req dispatch.TemplateSendRequest) (dispatch.Result, error)
}

func (m *mockDispatcher) SendText(_ context.Context, req dispatch.SendRequest) (dispatch.Result, error) {
	return m.text(req)
}

func (m *mockDispatcher) SendTemplate(_ context.Context, req dispatch.TemplateSendRequest) (dispatch.Result, error) {
	return m.template(req)
}

type mockRecorder struct {
	raw []byte
	err error
}

func (m *mockRecorder) Record(_ context.Context, raw []byte) (*models.Event, error) {
	m.raw = raw
	if m.err != nil {
		return nil, m.err
	}
	return &models.Event{ID: 1}, nil
}

type mockInstaller struct {
	auth *salla.Authorization
	err  error
}

func (m *mockInstaller) AuthCodeURL(state string) string {
	return "https://accounts.example/authorize?state=" + state
}

func (m *mockInstaller) Authorize(_ context.Context, _ string) (*salla.Authorization, error) {
	return m.auth, m.err
}

type mockStates struct {
	issued map[string]bool
	err    error
}

func newMockStates() *mockStates { return &mockStates{issued: map[string]bool{}} }

func (m *mockStates) PutOAuthState(_ context.Context, state string, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.issued[state] = true
	return nil
}

func (m *mockStates) TakeOAuthState(_ context.Context, state string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	ok := m.issued[state]
	delete(m.issued, state)
	return ok, nil
}

// --- helpers ---

func do(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	e, ok := decode(t, rec)["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

// --- error mapping ---

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{merchant.ErrTenantNotFound, http.StatusNotFound, "STORE_NOT_FOUND"},
		{fmt.Errorf("wrap: %w", merchant.ErrTemplateNotFound), http.StatusNotFound, "TEMPLATE_NOT_FOUND"},
		{dispatch.ErrCredentialsMissing, http.StatusBadRequest, "WABA_NOT_CONFIGURED"},
		{fmt.Errorf("%w: to is required", merchant.ErrInvalidInput), http.StatusBadRequest, "INVALID_REQUEST"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest("GET", "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errCode(t, rec))
		})
	}
}

func TestWriteError_InternalHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest("GET", "/", nil), errors.New("pq: password=hunter2"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

// --- store ---

func TestStore_ExplicitSid(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewStoreHandler(svc), "GET", "/api/store?sid=42", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	store := decode(t, rec)["store"].(map[string]any)
	assert.Equal(t, "42", store["store_id"])
	assert.NotContains(t, rec.Body.String(), "acc-42")
}

func TestStore_ImplicitSingleTenant(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewStoreHandler(svc), "GET", "/api/store", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStore_AmbiguousWithoutSid(t *testing.T) {
	svc, _ := newMerchant(t, "1", "2")
	rec := do(t, NewStoreHandler(svc), "GET", "/api/store", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "STORE_NOT_FOUND", errCode(t, rec))
}

func TestStore_UnknownSid(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewStoreHandler(svc), "GET", "/api/store?sid=999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- settings ---

func TestGetSettings_Defaults(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewGetSettingsHandler(svc), "GET", "/api/settings?sid=42", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	settings := decode(t, rec)["settings"].(map[string]any)
	assert.Equal(t, 60.0, settings["rate_limit_mps"])
	assert.Len(t, settings["enabled"], len(models.EventKinds))
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	svc, _ := newMerchant(t, "42")

	rec := do(t, NewSaveSettingsHandler(svc), "POST", "/api/settings?sid=42",
		map[string]any{"enabled": map[string]bool{"order_paid": false}, "rate_limit_mps": "30"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])

	rec = do(t, NewGetSettingsHandler(svc), "GET", "/api/settings?sid=42", nil)
	settings := decode(t, rec)["settings"].(map[string]any)
	assert.Equal(t, 30.0, settings["rate_limit_mps"])
	assert.Equal(t, false, settings["enabled"].(map[string]any)["order_paid"])
	assert.Equal(t, true, settings["enabled"].(map[string]any)["order_created"])
}

func TestSaveSettings_InvalidRateLimit(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewSaveSettingsHandler(svc), "POST", "/api/settings?sid=42",
		map[string]any{"rate_limit_mps": "fast"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
}

func TestSaveSettings_MalformedJSON(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewSaveSettingsHandler(svc), "POST", "/api/settings?sid=42", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- templates ---

func TestTemplates_ListSeedsAndSave(t *testing.T) {
	svc, _ := newMerchant(t, "42")

	rec := do(t, NewListTemplatesHandler(svc), "GET", "/api/templates?sid=42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["templates"], 7)

	rec = do(t, NewSaveTemplatesHandler(svc), "POST", "/api/templates?sid=42", map[string]any{
		"templates": []map[string]string{{"tkey": "order_paid", "body": "paid {order_no}"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, NewListTemplatesHandler(svc), "GET", "/api/templates?sid=42", nil)
	var body struct {
		Templates []models.Template `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, tpl := range body.Templates {
		if tpl.Key == models.EventOrderPaid {
			assert.Equal(t, "paid {order_no}", tpl.Body)
		}
	}
}

func TestSaveTemplates_UnknownKey(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewSaveTemplatesHandler(svc), "POST", "/api/templates?sid=42", map[string]any{
		"templates": []map[string]string{{"tkey": "order_lost", "body": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	do(t, NewSaveTemplatesHandler(svc), "POST", "/api/templates?sid=42", map[string]any{
		"templates": []map[string]string{{"tkey": "order_paid", "body": "hi {name} #{order_no}"}},
	})

	rec := do(t, NewPreviewHandler(svc), "POST", "/api/templates/preview?sid=42", map[string]any{
		"tkey": "order_paid",
		"vars": map[string]string{"name": "Sara", "order_no": "7"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi Sara #7", decode(t, rec)["body"])
}

func TestPreview_MissingKey(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewPreviewHandler(svc), "POST", "/api/templates/preview?sid=42", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview_UnknownTemplate(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewPreviewHandler(svc), "POST", "/api/templates/preview?sid=42",
		map[string]any{"tkey": "order_lost"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TEMPLATE_NOT_FOUND", errCode(t, rec))
}

// --- credentials and logs ---

func TestSaveCredentials(t *testing.T) {
	svc, mem := newMerchant(t, "42")
	rec := do(t, NewSaveCredentialsHandler(svc), "POST", "/api/waba?sid=42",
		map[string]string{"waba_token": " tok ", "waba_phone_id": "555"})

	require.Equal(t, http.StatusOK, rec.Code)
	tenant, ok := mem.RawTenant("42")
	require.True(t, ok)
	assert.Equal(t, "tok", tenant.WabaToken)
	assert.Equal(t, "555", tenant.WabaPhoneID)
}

func TestSaveCredentials_UnknownStore(t *testing.T) {
	svc, _ := newMerchant(t)
	rec := do(t, NewSaveCredentialsHandler(svc), "POST", "/api/waba?sid=1",
		map[string]string{"waba_token": "t"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogs(t *testing.T) {
	svc, mem := newMerchant(t, "42")
	for i := 0; i < 3; i++ {
		require.NoError(t, mem.AppendDelivery(context.Background(), &models.Delivery{
			StoreID: "42", ToMSISDN: "966500000000", Template: "manual_test", Status: "200",
		}))
	}

	rec := do(t, NewLogsHandler(svc), "GET", "/api/logs?sid=42&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["logs"], 2)
}

func TestLogs_EmptyIsArray(t *testing.T) {
	svc, _ := newMerchant(t, "42")
	rec := do(t, NewLogsHandler(svc), "GET", "/api/logs?sid=42&limit=junk", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logs":[]}`, rec.Body.String())
}

// --- sends ---

func TestTestSend_PassesProviderResult(t *testing.T) {
	var got dispatch.SendRequest
	d := &mockDispatcher{text: func(req dispatch.SendRequest) (dispatch.Result, error) {
		got = req
		return dispatch.Result{Status: 401, Data: map[string]any{"error": "bad token"}}, nil
	}}

	rec := do(t, NewTestSendHandler(d), "POST", "/api/test-send?sid=42",
		map[string]string{"to_msisdn": "966500000000", "body": "hello"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":401,"data":{"error":"bad token"}}`, rec.Body.String())
	assert.Equal(t, dispatch.SendRequest{StoreID: "42", To: "966500000000", Body: "hello"}, got)
}

func TestTestSend_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no store", merchant.ErrTenantNotFound, http.StatusNotFound, "STORE_NOT_FOUND"},
		{"no creds", dispatch.ErrCredentialsMissing, http.StatusBadRequest, "WABA_NOT_CONFIGURED"},
		{"bad input", fmt.Errorf("%w: body", merchant.ErrInvalidInput), http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{text: func(dispatch.SendRequest) (dispatch.Result, error) {
				return dispatch.Result{}, tt.err
			}}
			rec := do(t, NewTestSendHandler(d), "POST", "/api/test-send",
				map[string]string{"to_msisdn": "1", "body": "x"})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errCode(t, rec))
		})
	}
}

func TestSend_Template(t *testing.T) {
	var got dispatch.TemplateSendRequest
	d := &mockDispatcher{template: func(req dispatch.TemplateSendRequest) (dispatch.Result, error) {
		got = req
		return dispatch.Result{Status: 200, Data: map[string]any{"messages": []any{}}}, nil
	}}

	rec := do(t, NewSendHandler(d), "POST", "/api/send?sid=42", map[string]any{
		"to_msisdn": "966500000000",
		"tkey":      "out_for_delivery",
		"vars":      map[string]string{"tracking_no": "TRK1"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EventOutForDelivery, got.Key)
	assert.Equal(t, "TRK1", got.Vars["tracking_no"])
	assert.Equal(t, "42", got.StoreID)
}

func TestSend_MissingKey(t *testing.T) {
	d := &mockDispatcher{}
	rec := do(t, NewSendHandler(d), "POST", "/api/send?sid=42", map[string]string{"to_msisdn": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- webhook ---

func TestWebhook_Records(t *testing.T) {
	rec := &mockRecorder{}
	w := do(t, NewWebhookHandler(rec), "POST", "/webhook", `{"event":"order.created"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, `{"event":"order.created"}`, string(rec.raw))
}

func TestWebhook_InvalidPayload(t *testing.T) {
	rec := &mockRecorder{err: fmt.Errorf("%w: not an object", events.ErrInvalidPayload)}
	w := do(t, NewWebhookHandler(rec), "POST", "/webhook", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_StoreFailure(t *testing.T) {
	rec := &mockRecorder{err: errors.New("db down")}
	w := do(t, NewWebhookHandler(rec), "POST", "/webhook", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- oauth ---

func TestInstall_RedirectsWithIssuedState(t *testing.T) {
	states := newMockStates()
	rec := do(t, NewInstallHandler(&mockInstaller{}, states), "GET", "/install", nil)

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "https://accounts.example/authorize?state="))
	state := strings.TrimPrefix(loc, "https://accounts.example/authorize?state=")
	assert.True(t, states.issued[state])
}

func TestInstall_StateStoreDown(t *testing.T) {
	states := &mockStates{err: errors.New("redis down")}
	rec := do(t, NewInstallHandler(&mockInstaller{}, states), "GET", "/install", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCallback_Onboards(t *testing.T) {
	svc, mem := newMerchant(t)
	states := newMockStates()
	states.issued["st-1"] = true
	inst := &mockInstaller{auth: &salla.Authorization{
		StoreID: "777", StoreDomain: "shop.salla.sa", AccessToken: "acc", ExpiresIn: time.Hour,
	}}

	rec := do(t, NewCallbackHandler(inst, states, svc), "GET", "/callback?code=c&state=st-1", nil)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard?sid=777", rec.Header().Get("Location"))
	_, ok := mem.RawTenant("777")
	assert.True(t, ok)

	rec = do(t, NewCallbackHandler(inst, states, svc), "GET", "/callback?code=c&state=st-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATE", errCode(t, rec))
}

func TestCallback_MissingParams(t *testing.T) {
	svc, _ := newMerchant(t)
	for _, target := range []string{"/callback", "/callback?code=c", "/callback?state=s"} {
		rec := do(t, NewCallbackHandler(&mockInstaller{}, newMockStates(), svc), "GET", target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCallback_ExchangeFails(t *testing.T) {
	svc, _ := newMerchant(t)
	states := newMockStates()
	states.issued["st-1"] = true
	inst := &mockInstaller{err: fmt.Errorf("%w: invalid_grant", salla.ErrExchange)}

	rec := do(t, NewCallbackHandler(inst, states, svc), "GET", "/callback?code=c&state=st-1", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "OAUTH_FAILED", errCode(t, rec))
}
