package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "learning-platform/http"
	"learning-platform/http/handlers"
	"learning-platform/metrics"
	"learning-platform/models"
	"learning-platform/services"
	"learning-platform/services/servicetest"
	"learning-platform/utils"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type server struct {
	env     *servicetest.Env
	metrics *metrics.Metrics
	ping    error
	router  http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{env: servicetest.NewEnv(), metrics: metrics.New()}
	h := &handlers.Handler{
		Verifier:      s.env.Verifier,
		Payments:      s.env.Payments,
		Subscriptions: s.env.Subscriptions,
		Access:        s.env.Access,
		Auth:          s.env.Auth,
		Validator:     utils.NewValidator(),
		Metrics:       s.metrics,
		Ping:          func(context.Context) error { return s.ping },
	}
	s.router = apphttp.NewRouter(h, apphttp.RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		Auth:           s.env.Auth,
		Metrics:        s.metrics,
	})
	return s
}

func (s *server) token(t *testing.T, userID int64) string {
	t.Helper()
	claims := services.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.env.Clock.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(servicetest.JWTSecret))
	require.NoError(t, err)
	return signed
}

func (s *server) do(t *testing.T, method, path, token string, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s *server) ipn(t *testing.T, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	sig, err := s.env.Verifier.Sign([]byte(body))
	require.NoError(t, err)
	return s.do(t, http.MethodPost, "/ipn/", "", body, map[string]string{services.SignatureHeader: sig})
}

func TestIPN_SignatureChecks(t *testing.T) {
	s := newServer(t)
	body := `{"payment_id":"p-1","payment_status":"waiting","order_id":"user_alice_subscribe1"}`

	rec, env := s.do(t, http.MethodPost, "/ipn/", "", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Signature missing", env.Error)

	rec, env = s.do(t, http.MethodPost, "/ipn/", "", body, map[string]string{services.SignatureHeader: strings.Repeat("ab", 64)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid signature", env.Error)

	assert.Equal(t, 0, s.env.Store.PaymentCount())
}

func TestIPN_RejectsGet(t *testing.T) {
	s := newServer(t)
	rec, env := s.do(t, http.MethodGet, "/ipn/", "", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", env.Error)
}

func TestIPN_FinishedInvoiceActivatesSubscription(t *testing.T) {
	s := newServer(t)
	alice := s.env.Store.AddStudent("alice")

	rec, _ := s.do(t, http.MethodPost, "/save-invoice/", "",
		`{"user_id":`+itoa(alice.User.ID)+`,"invoice_id":5077125051,"subscription_type":"monthly","duration_months":3,"price_amount":"9.99","price_currency":"USD"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := s.ipn(t, `{"payment_id":5077125051,"payment_status":"finished","pay_amount":0.0003,"pay_currency":"btc","order_id":"user_alice_subscribe3","price_amount":9.99,"price_currency":"usd"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "IPN received and processed", env.Message)
	assert.Contains(t, string(env.Data), `"outcome":"applied"`)

	student := s.env.Store.Student(alice.StudentID)
	assert.True(t, student.Paid)
	require.NotNil(t, student.SubscriptionEnd)
	assert.Equal(t, servicetest.Epoch.Add(3*services.MonthLength), *student.SubscriptionEnd)

	// Replaying the same notification does not credit again.
	rec, env = s.ipn(t, `{"payment_id":5077125051,"payment_status":"finished","order_id":"user_alice_subscribe3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"outcome":"replayed"`)
	assert.Equal(t, servicetest.Epoch.Add(3*services.MonthLength), *s.env.Store.Student(alice.StudentID).SubscriptionEnd)
}

func TestIPN_ErrorStatuses(t *testing.T) {
	s := newServer(t)
	s.env.Store.AddStudent("alice")

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"unknown user", `{"payment_id":"p-9","payment_status":"finished","order_id":"user_ghost_subscribe1"}`, http.StatusNotFound, "Payment not found"},
		{"unparseable order", `{"payment_id":"p-9","payment_status":"waiting","order_id":"invoice-77"}`, http.StatusNotFound, "Payment not found"},
		{"malformed order on finished", `{"payment_id":"p-9","payment_status":"finished","order_id":"user_alice_subscribe"}`, http.StatusBadRequest, ""},
		{"unhandled status", `{"payment_id":"p-9","payment_status":"chargeback","order_id":"user_alice_subscribe1"}`, http.StatusBadRequest, ""},
		{"missing payment id", `{"payment_status":"waiting","order_id":"user_alice_subscribe1"}`, http.StatusBadRequest, ""},
		{"not json", `payment_id=1`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodPost, "/ipn/", "", tt.body, map[string]string{services.SignatureHeader: sign(t, s, tt.body)})
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, "error", env.Status)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, env.Error)
			}
		})
	}
	assert.Equal(t, 0, s.env.Store.PaymentCount())
}

func sign(t *testing.T, s *server, body string) string {
	t.Helper()
	if _, err := services.Canonicalize([]byte(body)); err != nil {
		// Unsignable bodies never pass verification; any signature will do.
		return strings.Repeat("00", 64)
	}
	sig, err := s.env.Verifier.Sign([]byte(body))
	require.NoError(t, err)
	return sig
}

func TestSubscriptionEndpoints(t *testing.T) {
	s := newServer(t)
	alice := s.env.Store.AddStudent("alice")
	token := s.token(t, alice.User.ID)

	rec, env := s.do(t, http.MethodPost, "/subscribe/", token, `{"duration_months":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Subscription updated.", env.Message)

	var state models.StudentResponse
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.Paid)

	rec, env = s.do(t, http.MethodPost, "/extend_subscription/", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Subscription extended.", env.Message)
	assert.Equal(t, servicetest.Epoch.Add(3*services.MonthLength), *s.env.Store.Student(alice.StudentID).SubscriptionEnd)

	rec, env = s.do(t, http.MethodGet, "/subscription/", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.Paid)

	rec, env = s.do(t, http.MethodPost, "/unsubscribe/", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Subscription cancelled.", env.Message)
	assert.False(t, s.env.Store.Student(alice.StudentID).Paid)

	rec, env = s.do(t, http.MethodPost, "/extend_subscription/", token, `{"duration_months":"4"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No active subscription to extend.", env.Message)
}

func TestSubscriptionEndpoints_Errors(t *testing.T) {
	s := newServer(t)
	alice := s.env.Store.AddStudent("alice")
	bob := s.env.Store.AddInstructor("bob")

	rec, env := s.do(t, http.MethodPost, "/subscribe/", "", `{"duration_months":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication credentials were not provided.", env.Error)

	rec, _ = s.do(t, http.MethodPost, "/subscribe/", "not-a-jwt", `{"duration_months":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/subscribe/", s.token(t, bob.User.ID), `{"duration_months":1}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User is not a student.", env.Error)

	token := s.token(t, alice.User.ID)
	rec, _ = s.do(t, http.MethodPost, "/subscribe/", token, `{"duration_months":"three"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/subscribe/", token, `{"duration_months":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, s.env.Store.Student(alice.StudentID).Paid)
}

func TestSaveInvoice(t *testing.T) {
	s := newServer(t)
	alice := s.env.Store.AddStudent("alice")
	bob := s.env.Store.AddInstructor("bob")
	body := func(userID int64, invoice string) string {
		return `{"user_id":` + itoa(userID) + `,"invoice_id":"` + invoice + `","duration_months":1}`
	}

	rec, env := s.do(t, http.MethodPost, "/save-invoice/", "", body(alice.User.ID, "inv-1"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Invoice saved", env.Message)
	record, ok := s.env.Store.Payment("inv-1")
	require.True(t, ok)
	assert.Equal(t, "user_alice_subscribe1", record.OrderID)
	assert.Equal(t, models.PaymentStatusWaiting, record.Status)
	assert.Equal(t, "usd", record.PriceCurrency)

	rec, env = s.do(t, http.MethodPost, "/save-invoice/", "", body(alice.User.ID, "inv-1"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Invoice already saved", env.Error)

	rec, env = s.do(t, http.MethodPost, "/save-invoice/", "", body(9999, "inv-2"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", env.Error)

	rec, env = s.do(t, http.MethodPost, "/save-invoice/", "", body(bob.User.ID, "inv-3"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Student not found", env.Error)

	rec, env = s.do(t, http.MethodPost, "/save-invoice/", "", `{"user_id":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), `"invoice_id":"This field is required."`)
}

func TestEnrollAndLessons(t *testing.T) {
	s := newServer(t)
	alice := s.env.Store.AddStudent("alice")
	token := s.token(t, alice.User.ID)
	freeCourse, freeLesson := s.env.Store.AddCourse("Intro", models.CategoryFree)
	paidCourse, paidLesson := s.env.Store.AddCourse("Advanced", models.CategoryPaid)

	rec, env := s.do(t, http.MethodPost, "/enroll/", token, `{"course_id":`+itoa(paidCourse)+`}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Payment is required to enroll in this course.", env.Error)

	rec, env = s.do(t, http.MethodPost, "/enroll/", token, `{"course_id":424242}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Course not found.", env.Error)

	rec, _ = s.do(t, http.MethodPost, "/enroll/", token, `{"course_id":`+itoa(freeCourse)+`}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/lessons/", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lessons []models.Lesson
	require.NoError(t, json.Unmarshal(env.Data, &lessons))
	require.Len(t, lessons, 1)
	assert.Equal(t, freeLesson, lessons[0].ID)

	rec, _ = s.do(t, http.MethodGet, "/lessons/"+itoa(freeLesson)+"/", token, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/lessons/"+itoa(paidLesson)+"/", token, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You must be enrolled in this course to access the lesson.", env.Error)

	rec, _ = s.do(t, http.MethodGet, "/lessons/abc/", token, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(t, http.MethodPost, "/register/", "",
		`{"email":"carol@example.com","username":"carol","password":"long-enough","password2":"long-enough","user_type":"1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"user_type":"student"`)
	assert.NotContains(t, rec.Body.String(), "long-enough")

	rec, env = s.do(t, http.MethodPost, "/register/", "",
		`{"email":"dave@example.com","username":"dave","password":"long-enough","password2":"different!","user_type":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "Password fields didn't match.")

	rec, env = s.do(t, http.MethodPost, "/register/", "",
		`{"email":"carol@example.com","username":"carol2","password":"long-enough","password2":"long-enough","user_type":"2"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "A user with that email already exists.", env.Error)
}

func TestPaymentHistoryAndExport(t *testing.T) {
	s := newServer(t)
	alice := s.env.Store.AddStudent("alice")
	token := s.token(t, alice.User.ID)

	rec, _ := s.do(t, http.MethodPost, "/save-invoice/", "", `{"user_id":`+itoa(alice.User.ID)+`,"invoice_id":"inv-7","duration_months":2}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/payments/", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.PaymentRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "inv-7", records[0].PaymentID)

	rec, _ = s.do(t, http.MethodGet, "/payments/export/", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payments.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rows, err := services.ReadPaymentHistoryWorkbook(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1], "inv-7")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Message)

	s.ping = errors.New("connection refused")
	rec, _ = s.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Contains(t, out.Body.String(), `learning_http_requests_total{code="503",method="GET",path="/health"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/subscribe/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
