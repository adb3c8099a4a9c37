package handlers

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/cmd/contentgate/middleware"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/chain"
	"github.com/walrusgate/contentgate/common/logger"
)

const (
	owner  = "0xowner"
	buyer  = "0xbuyer"
	digest = "8ZbVbZ3xzfDVRPtPyFCXVKpsGLMeNDsujTp9yD4YHq3c"
)

type fakeOracle struct {
	GetTransactionFunc func(ctx context.Context, digest string) (*chain.TransactionView, error)
}

func (f *fakeOracle) GetTransaction(ctx context.Context, digest string) (*chain.TransactionView, error) {
	return f.GetTransactionFunc(ctx, digest)
}

type testAPI struct {
	e        *echo.Echo
	oracle   *fakeOracle
	identity *service.IdentityService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.Discard()

	uploads := repository.NewMemoryUploadRepository()
	purchases := repository.NewMemoryPurchaseRepository()
	oracle := &fakeOracle{GetTransactionFunc: func(ctx context.Context, digest string) (*chain.TransactionView, error) {
		return nil, chain.ErrTxNotFound
	}}

	identity, err := service.NewIdentityService(repository.NewMemoryUserRepository(), repository.NewMemoryAPIKeyRepository(), "secret", 0, log)
	require.NoError(t, err)

	uploadSvc := service.NewUploadService(uploads, purchases, service.NewAccessGate(purchases), log)
	unlockSvc := service.NewUnlockService(uploads, purchases, oracle, nil, service.UnlockConfig{
		Network:  "sui:testnet",
		Decimals: 9,
		Retry:    service.RetryPolicy{MaxAttempts: 2},
	}, log)

	e := echo.New()
	e.Use(middleware.ResolveIdentity(identity, "auth_token", log))

	uh := NewUploadHandler(uploadSvc, unlockSvc, log)
	e.POST("/api/v1/uploads/unlock", uh.Unlock)
	e.GET("/api/v1/uploads/share/:slug", uh.Share)
	e.GET("/api/v1/uploads/purchases/:address", uh.Purchases)
	e.GET("/api/v1/uploads/blob/:blobId", uh.Blob)
	e.GET("/api/v1/uploads/:address", uh.ListByOwner)
	e.POST("/api/v1/uploads", uh.Register)
	e.PUT("/api/v1/uploads/:blobId", uh.Update)

	userH := NewUserHandler(identity, log)
	e.POST("/api/v1/users/login", userH.Login)
	e.POST("/api/v1/users/profile", userH.LookupProfile)
	e.GET("/api/v1/users/me", userH.Profile)
	e.PUT("/api/v1/users/me", userH.UpdateProfile)

	keyH := NewAPIKeyHandler(identity, log)
	e.POST("/api/v1/apikeys", keyH.Create)
	e.GET("/api/v1/apikeys", keyH.List)
	e.DELETE("/api/v1/apikeys/:id", keyH.Delete)

	return &testAPI{e: e, oracle: oracle, identity: identity}
}

func (a *testAPI) do(t *testing.T, method, path, wallet, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if wallet != "" {
		req.Header.Set(middleware.HeaderWalletAddress, wallet)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// registerPaid registers a paid upload and returns its id
func (a *testAPI) registerPaid(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/uploads", owner, `{
		"blobId": "blob-1",
		"owner": "0xowner",
		"filename": "song.mp3",
		"mimeType": "audio/mpeg",
		"size": 1024,
		"visibility": "paid",
		"price": 0.01
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["_id"].(string)
}

func unlockBody(id, proof string) string {
	if proof == "" {
		return `{"uploadId":"` + id + `"}`
	}
	return `{"uploadId":"` + id + `","paymentProof":"` + proof + `"}`
}

func TestUnlockInvoice(t *testing.T) {
	api := newTestAPI(t)
	id := api.registerPaid(t)

	rec := api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, ""))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	assert.Equal(t, "10000000", rec.Header().Get(HeaderPrice))
	assert.Equal(t, owner, rec.Header().Get(HeaderPaymentRecipient))
	assert.Equal(t, "sui:testnet", rec.Header().Get(HeaderPaymentNetwork))

	body := decode(t, rec)
	assert.Equal(t, "Payment Required", body["message"])
	invoice := body["invoice"].(map[string]interface{})
	assert.Equal(t, 0.01, invoice["amount"])
	assert.Equal(t, "SUI", invoice["currency"])
	assert.Equal(t, owner, invoice["recipient"])
	assert.NotContains(t, rec.Body.String(), "blob-1")
}

func TestUnlockFlow(t *testing.T) {
	api := newTestAPI(t)
	id := api.registerPaid(t)

	api.oracle.GetTransactionFunc = func(ctx context.Context, d string) (*chain.TransactionView, error) {
		return &chain.TransactionView{
			Digest: d,
			Status: chain.StatusSuccess,
			Sender: buyer,
			BalanceChanges: []chain.BalanceChange{
				{Owner: owner, CoinType: "0x2::sui::SUI", Amount: big.NewInt(10_000_000)},
			},
		}, nil
	}

	rec := api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, digest))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "blob-1", decode(t, rec)["blobId"])

	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, "other-proof"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Already purchased", decode(t, rec)["message"])

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/"+owner, buyer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"blobId":"blob-1"`)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/purchases/"+buyer, buyer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), digest)
}

func TestUnlockErrors(t *testing.T) {
	api := newTestAPI(t)
	id := api.registerPaid(t)

	rec := api.do(t, http.MethodPost, "/api/v1/uploads/unlock", "", unlockBody(id, digest))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody("nope", digest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody("6f1c8a52-4f8e-4d8c-9e1d-0c2b7f3e9a10", digest))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, digest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid Payment Proof or Transaction not found", decode(t, rec)["message"])

	api.oracle.GetTransactionFunc = func(ctx context.Context, d string) (*chain.TransactionView, error) {
		return &chain.TransactionView{Digest: d, Status: chain.StatusSuccess, Sender: "0xsomeoneelse"}, nil
	}
	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, digest))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "0xsomeoneelse", decode(t, rec)["sender"])

	api.oracle.GetTransactionFunc = func(ctx context.Context, d string) (*chain.TransactionView, error) {
		return &chain.TransactionView{
			Digest: d, Status: chain.StatusSuccess, Sender: buyer,
			BalanceChanges: []chain.BalanceChange{{Owner: owner, Amount: big.NewInt(5)}},
		}, nil
	}
	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, digest))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "5", body["received"])
	assert.Equal(t, "10000000", body["expected"])
	assert.NotContains(t, rec.Body.String(), "blob-1")

	api.oracle.GetTransactionFunc = func(ctx context.Context, d string) (*chain.TransactionView, error) {
		return nil, chain.ErrConnectionFailed
	}
	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, digest))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRegisterAndUpdate(t *testing.T) {
	api := newTestAPI(t)
	api.registerPaid(t)

	// Registering again as the owner is idempotent
	rec := api.do(t, http.MethodPost, "/api/v1/uploads", owner,
		`{"blobId":"blob-1","owner":"0xowner","filename":"song.mp3","mimeType":"audio/mpeg","size":1024}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads", "0xother",
		`{"blobId":"blob-1","owner":"0xother","filename":"x","mimeType":"text/plain","size":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads", "0xother",
		`{"blobId":"blob-2","owner":"0xowner","filename":"x","mimeType":"text/plain","size":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads", owner, `{"owner":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/uploads/blob-1", owner, `{"visibility":"public"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "public", decode(t, rec)["visibility"])

	rec = api.do(t, http.MethodPut, "/api/v1/uploads/blob-1", buyer, `{"visibility":"private"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/uploads/missing", owner, `{"visibility":"private"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/uploads/blob-1", owner, `{"owner":"0xother"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShareAndBlob(t *testing.T) {
	api := newTestAPI(t)
	api.registerPaid(t)

	rec := api.do(t, http.MethodGet, "/api/v1/uploads/blob/blob-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	slug := decode(t, rec)["slug"].(string)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/share/"+slug, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PAYMENT_REQUIRED", decode(t, rec)["blobId"])

	rec = api.do(t, http.MethodPut, "/api/v1/uploads/blob-1", owner, `{"visibility":"private"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/share/"+slug, buyer, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/share/unknown", buyer, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/blob/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchasesRequiresSelf(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/uploads/purchases/"+buyer, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/purchases/"+buyer, "0xother", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/uploads/purchases/"+buyer, buyer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLoginAndAPIKeys(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users/login", "", `{"address":"0xa1b2c3d4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode(t, rec)["token"].(string)

	withToken := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		api.e.ServeHTTP(rec, req)
		return rec
	}

	rec = withToken(http.MethodGet, "/api/v1/users/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User 0xa1b2", decode(t, rec)["username"])

	rec = withToken(http.MethodPost, "/api/v1/apikeys", `{"name":"ci"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	rawKey := created["apiKey"].(string)

	// The key authenticates on its own
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set(middleware.HeaderAPIKey, rawKey)
	keyRec := httptest.NewRecorder()
	api.e.ServeHTTP(keyRec, req)
	assert.Equal(t, http.StatusOK, keyRec.Code)

	rec = withToken(http.MethodGet, "/api/v1/apikeys", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), rawKey)
	assert.Contains(t, rec.Body.String(), `"name":"ci"`)

	rec = withToken(http.MethodDelete, "/api/v1/apikeys/"+created["_id"].(string), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = withToken(http.MethodDelete, "/api/v1/apikeys/"+created["_id"].(string), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileUpdateAndLookup(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users/login", "", `{"address":"0xa1b2c3d4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPut, "/api/v1/users/me", "0xa1b2c3d4",
		`{"username":"alice","email":"alice@example.com","bio":"makes music"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])

	rec = api.do(t, http.MethodPut, "/api/v1/users/me", "0xa1b2c3d4", `{"bio":"`+strings.Repeat("x", 161)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/users/me", "0xa1b2c3d4", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/users/me", "", `{"bio":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Anyone can look a profile up by address
	rec = api.do(t, http.MethodPost, "/api/v1/users/profile", "", `{"address":"0xa1b2c3d4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "makes music", body["bio"])

	rec = api.do(t, http.MethodPost, "/api/v1/users/profile", "0xa1b2c3d4", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode(t, rec)["username"])

	rec = api.do(t, http.MethodPost, "/api/v1/users/profile", "", `{"address":"0xnobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/users/profile", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnlockPrivateUpload(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/uploads", owner, `{
		"blobId": "blob-private",
		"owner": "0xowner",
		"filename": "notes.txt",
		"mimeType": "text/plain",
		"size": 10,
		"visibility": "private",
		"price": 1
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["_id"].(string)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", buyer, unlockBody(id, ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), owner)

	rec = api.do(t, http.MethodPost, "/api/v1/uploads/unlock", owner, unlockBody(id, ""))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, respondError(c, logger.Discard(), assert.AnError))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	cases := map[service.ErrorKind]int{
		service.KindUnauthenticated:          http.StatusUnauthorized,
		service.KindForbidden:                http.StatusForbidden,
		service.KindSenderMismatch:           http.StatusForbidden,
		service.KindNotFound:                 http.StatusNotFound,
		service.KindInvalidReference:         http.StatusBadRequest,
		service.KindProofNotFound:            http.StatusBadRequest,
		service.KindPaymentTransactionFailed: http.StatusBadRequest,
		service.KindConflict:                 http.StatusConflict,
		service.KindNoPaymentDetected:        http.StatusPaymentRequired,
		service.KindInsufficientPayment:      http.StatusPaymentRequired,
		service.KindUpstreamUnavailable:      http.StatusBadGateway,
		service.KindInternal:                 http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}
