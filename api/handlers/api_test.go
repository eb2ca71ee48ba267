package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/api/testhelpers"
	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/databases/memory"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/media"
	"github.com/pawsaarthi/rescue-api/models"
)

var jwtSecret = []byte("handler-test-secret")

const webhookSecret = "whsec_handler_test"

type fakeUploader struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeUploader) Upload(_ context.Context, file media.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, file.Name)
	return "https://res.cloudinary.com/demo/" + file.Name, nil
}

type fakeIntents struct{}

func (fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret", Amount: *params.Amount}, nil
}

type testApp struct {
	*App
	store    *memory.Store
	users    map[string]*models.User
	uploader *fakeUploader
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := memory.New()
	users := testhelpers.SeedUsers(t, store.Users())
	up := &fakeUploader{}
	a := &App{
		Config: config.Config{
			JWTSecret:           string(jwtSecret),
			JWTTTL:              time.Hour,
			DepositAmount:       20,
			MinTopUpAmount:      10,
			EscalationDeadline:  5 * time.Minute,
			StripeCurrency:      "inr",
			StripeWebhookSecret: webhookSecret,
		},
		Store:   store,
		Media:   up,
		Intents: fakeIntents{},
	}
	require.NoError(t, a.Setup())
	return &testApp{App: a, store: store, users: users, uploader: up}
}

func (ta *testApp) token(t *testing.T, id string) string {
	t.Helper()
	tok, _, err := api.IssueToken(jwtSecret, ta.users[id], time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (ta *testApp) fund(t *testing.T, id string, amount int64) {
	t.Helper()
	_, err := ta.Ledger.Credit(context.Background(), ledger.Movement{
		Actor: id, Amount: amount, Key: ledger.TopUpKey("seed-" + id),
	})
	require.NoError(t, err)
}

func (ta *testApp) do(t *testing.T, method, path, as string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+ta.token(t, as))
	}
	rr := httptest.NewRecorder()
	ta.Router.ServeHTTP(rr, req)
	return rr
}

func (ta *testApp) report(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "injured dog near the metro gate"))
	require.NoError(t, mw.WriteField("lat", "28.6139"))
	require.NoError(t, mw.WriteField("lng", "77.2090"))
	require.NoError(t, mw.WriteField("address", "Connaught Place"))
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="media"; filename="dog.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rescue", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ta.token(t, testhelpers.Citizen))
	rr := httptest.NewRecorder()
	ta.Router.ServeHTTP(rr, req)
	return rr
}

func decodeRescue(t *testing.T, rr *httptest.ResponseRecorder) *models.RescueCase {
	t.Helper()
	var resp rescueResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	require.NotNil(t, resp.Rescue)
	return resp.Rescue
}

func TestHealthCheckHandler(t *testing.T) {
	ta := newTestApp(t)
	rr := ta.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alive": true}`, rr.Body.String())
}

func TestRoutesRequireAuth(t *testing.T) {
	ta := newTestApp(t)
	rr := ta.do(t, http.MethodGet, "/api/v1/rescue/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoutesEnforceRoles(t *testing.T) {
	ta := newTestApp(t)
	rr := ta.do(t, http.MethodGet, "/api/v1/ngo/nearby", testhelpers.Citizen, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ta.do(t, http.MethodGet, "/api/v1/admin/pending-approvals", testhelpers.Org, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateRescueInsufficientFunds(t *testing.T) {
	ta := newTestApp(t)
	ta.fund(t, testhelpers.Citizen, 15)

	rr := ta.report(t)
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Empty(t, ta.uploader.names)

	cases, err := ta.store.Rescues().Find(context.Background(), databases.CaseQuery{})
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestCreateRescueValidation(t *testing.T) {
	ta := newTestApp(t)
	ta.fund(t, testhelpers.Citizen, 50)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "no location"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rescue", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ta.token(t, testhelpers.Citizen))
	rr := httptest.NewRecorder()
	ta.Router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRescueLifecycleOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	ta.fund(t, testhelpers.Citizen, 25)

	rr := ta.report(t)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decodeRescue(t, rr)
	assert.Equal(t, models.StatusReported, c.Status)
	assert.Equal(t, []string{"https://res.cloudinary.com/demo/dog.jpg"}, c.Images)

	var wallet models.WalletResponse
	rr = ta.do(t, http.MethodGet, "/api/v1/user/wallet", testhelpers.Citizen, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wallet))
	assert.Equal(t, int64(5), wallet.WalletBalance)

	var nearby models.CaseListResponse
	rr = ta.do(t, http.MethodGet, "/api/v1/ngo/nearby", testhelpers.Org, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &nearby))
	require.Equal(t, 1, nearby.Count)
	require.NotNil(t, nearby.Cases[0].DistanceKm)
	assert.Equal(t, 0.0, *nearby.Cases[0].DistanceKm)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/accept-ngo", testhelpers.PendingOrg, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/accept-ngo", testhelpers.Org, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, models.StatusOrgAccepted, decodeRescue(t, rr).Status)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/accept-ngo", testhelpers.Org, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ta.do(t, http.MethodGet, "/api/v1/rescue/"+c.ID, testhelpers.OtherCitizen, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = ta.do(t, http.MethodGet, "/api/v1/rescue/missing", testhelpers.Admin, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEscalatedRescueOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	ta.fund(t, testhelpers.Citizen, 25)
	rr := ta.report(t)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decodeRescue(t, rr)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/reject-ngo", testhelpers.Org, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := ta.Engine.Escalate(context.Background(), c.ID, time.Now().Add(6*time.Minute))
	require.NoError(t, err)

	var escalated models.CaseListResponse
	rr = ta.do(t, http.MethodGet, "/api/v1/hospital/escalated", testhelpers.Facility, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &escalated))
	assert.Equal(t, 1, escalated.Count)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/assign-ambulance", testhelpers.Facility, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/assign-ambulance", testhelpers.Facility,
		map[string]string{"ambulanceId": testhelpers.Carrier})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, models.StatusCarrierAssigned, decodeRescue(t, rr).Status)

	var task taskResponse
	rr = ta.do(t, http.MethodGet, "/api/v1/ambulance/assigned", testhelpers.Carrier, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &task))
	require.NotNil(t, task.Task)
	assert.Equal(t, c.ID, task.Task.ID)

	rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/status", testhelpers.Carrier,
		map[string]string{"status": string(models.StatusPickedUp)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	for _, s := range []models.CaseStatus{models.StatusEnRoute, models.StatusPickedUp, models.StatusDelivered} {
		rr = ta.do(t, http.MethodPut, "/api/v1/rescue/"+c.ID+"/status", testhelpers.Carrier,
			map[string]string{"status": string(s)})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	done := decodeRescue(t, rr)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.True(t, done.DepositReturned)

	bal, err := ta.Ledger.Balance(context.Background(), testhelpers.Citizen)
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)

	rr = ta.do(t, http.MethodGet, "/api/v1/ambulance/assigned", testhelpers.Carrier, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &task))
	assert.Nil(t, task.Task)

	var history rescueListResponse
	rr = ta.do(t, http.MethodGet, "/api/v1/ambulance/history", testhelpers.Carrier, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)
}

func TestEscalatedRequiresFacilityLocation(t *testing.T) {
	ta := newTestApp(t)
	_, err := ta.store.Users().UpdateProfile(context.Background(), testhelpers.Facility, models.ProfileUpdate{
		HomeLocation: &models.Location{},
	})
	require.NoError(t, err)

	rr := ta.do(t, http.MethodGet, "/api/v1/hospital/escalated", testhelpers.Facility, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
