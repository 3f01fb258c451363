package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/service"
	"github.com/trafficwise/platform/internal/session"
)

// --- RespondJSON Tests ---

func TestRespondJSON(t *testing.T) {
	t.Run("200 with body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("204 with nil body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusNoContent, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

// --- RespondError Tests ---

func TestRespondError(t *testing.T) {
	t.Run("AppError maps to correct status", func(t *testing.T) {
		tests := []struct {
			err          *domain.AppError
			wantStatus   int
			wantCode     string
			wantRedirect domain.Route
		}{
			{domain.ErrNotFound("activity", "a1"), 404, "NOT_FOUND", ""},
			{domain.ErrValidation("bad input"), 400, "VALIDATION_ERROR", ""},
			{domain.ErrUnauthenticated("sign in"), 401, "UNAUTHENTICATED", domain.RouteSignIn},
			{domain.ErrUnauthorized("admins only"), 403, "UNAUTHORIZED", domain.RouteHome},
			{domain.ErrAlreadyAuthenticated(), 409, "ALREADY_AUTHENTICATED", domain.RouteHome},
			{domain.ErrProfileNotFound("u1"), 401, "PROFILE_NOT_FOUND", domain.RouteSignIn},
			{domain.ErrInvalidTransition("a1", domain.StatusApproved, domain.StatusRejected), 409, "INVALID_TRANSITION", ""},
			{domain.ErrBackend("clip too short"), 422, "BACKEND_ERROR", ""},
			{domain.ErrAccountLocked("locked"), 429, "ACCOUNT_LOCKED", ""},
			{domain.ErrInternal("oops", nil), 500, "INTERNAL_ERROR", ""},
		}

		for _, tt := range tests {
			t.Run(tt.wantCode, func(t *testing.T) {
				w := httptest.NewRecorder()
				RespondError(w, tt.err)
				assert.Equal(t, tt.wantStatus, w.Code)

				var body ErrorBody
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, tt.wantCode, body.Code)
				assert.Equal(t, tt.wantRedirect, body.Redirect)
			})
		}
	})

	t.Run("wrapped AppError is detected", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, errors.Join(errors.New("context"), domain.ErrNotFound("profile", "u1")))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("generic error returns 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "INTERNAL_ERROR", body["code"])
		assert.Equal(t, "internal server error", body["message"])
		assert.NotContains(t, body, "redirect")
	})
}

// --- DecodeJSON Tests ---

func TestDecodeJSON(t *testing.T) {
	t.Run("valid JSON body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"test","value":42}`))
		var dst struct {
			Name  string `json:"name"`
			Value int    `json:"value"`
		}
		require.NoError(t, DecodeJSON(r, &dst))
		assert.Equal(t, "test", dst.Name)
		assert.Equal(t, 42, dst.Value)
	})

	t.Run("invalid JSON returns error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{invalid`))
		var dst map[string]interface{}
		require.Error(t, DecodeJSON(r, &dst))
	})

	t.Run("body exceeding 1MiB returns error", func(t *testing.T) {
		big := `{"x":"` + strings.Repeat("x", 1<<20) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(big))
		var dst map[string]interface{}
		require.Error(t, DecodeJSON(r, &dst))
	})
}

// --- ClientIP Tests ---

func TestClientIP(t *testing.T) {
	t.Run("X-Forwarded-For multiple IPs takes first", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", " 1.2.3.4 , 5.6.7.8")
		assert.Equal(t, "1.2.3.4", ClientIP(r))
	})

	t.Run("no X-Forwarded-For uses RemoteAddr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:54321"
		assert.Equal(t, "10.0.0.1", ClientIP(r))
	})

	t.Run("RemoteAddr without port", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1"
		assert.Equal(t, "10.0.0.1", ClientIP(r))
	})
}

// --- Middleware Tests ---

func TestRequestID(t *testing.T) {
	t.Run("generates ID when none provided", func(t *testing.T) {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, GetRequestID(r.Context()))
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("uses provided X-Request-ID", func(t *testing.T) {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "my-custom-id", GetRequestID(r.Context()))
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "my-custom-id")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, "my-custom-id", w.Header().Get("X-Request-ID"))
	})

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestJSONContentType(t *testing.T) {
	h := JSONContentType(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestCORSWithOrigins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("sets CORS headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORSWithOrigins("*")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	})

	t.Run("OPTIONS returns 204", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORSWithOrigins("https://app.example.com")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(noopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusNotFound, rw.status)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/admin/activities/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/activities/a1", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/activities/a1", nil)
	rctx := chi.NewRouteContext()
	rctx.RoutePatterns = []string{"/admin/activities/{id}"}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	assert.Equal(t, "/admin/activities/{id}", routePattern(req))
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}

// --- Gate Tests ---

type gateEnv struct {
	router http.Handler
	jwtMgr *auth.JWTManager
}

func newGateEnv(t *testing.T) *gateEnv {
	t.Helper()
	jwtMgr := auth.NewJWTManager("test-secret", "trafficwise", time.Hour)
	profiles := map[string]*domain.Profile{
		"u1":    {UID: "u1", Role: domain.RoleUser},
		"root1": {UID: "root1", Role: domain.RoleAdmin},
	}
	lookup := session.ProfileLookupFunc(func(_ context.Context, uid string) (*domain.Profile, error) {
		if uid == "broken" {
			return nil, errors.New("connection refused")
		}
		return profiles[uid], nil
	})
	gates := NewGates(lookup, noopLogger())

	ok := func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{"role": string(RoleFromContext(r.Context()))})
	}
	r := chi.NewRouter()
	r.Use(auth.Authenticate(jwtMgr, auth.NewMemoryDenylist(), noopLogger()))
	r.With(gates.PublicOnly).Get("/public", ok)
	r.With(gates.SessionOnly).Get("/session", ok)
	r.With(gates.Authenticated).Get("/member", ok)
	r.With(gates.Admin).Get("/admin", ok)
	return &gateEnv{router: r, jwtMgr: jwtMgr}
}

func (e *gateEnv) do(t *testing.T, path, uid string) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if uid != "" {
		s, err := e.jwtMgr.GenerateToken(domain.Identity{UID: uid})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var body ErrorBody
	if w.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestGates(t *testing.T) {
	env := newGateEnv(t)
	tests := []struct {
		name         string
		path         string
		uid          string
		wantStatus   int
		wantCode     string
		wantRedirect domain.Route
	}{
		{"signed out on public", "/public", "", 200, "", ""},
		{"signed out on member", "/member", "", 401, domain.CodeUnauthenticated, domain.RouteSignIn},
		{"signed out on admin", "/admin", "", 401, domain.CodeUnauthenticated, domain.RouteSignIn},
		{"user on public", "/public", "u1", 409, domain.CodeAlreadyAuthenticated, domain.RouteHome},
		{"user on member", "/member", "u1", 200, "", ""},
		{"user on admin", "/admin", "u1", 403, domain.CodeUnauthorized, domain.RouteHome},
		{"admin on admin", "/admin", "root1", 200, "", ""},
		{"admin on member", "/member", "root1", 200, "", ""},
		{"no profile on member", "/member", "ghost", 401, domain.CodeProfileNotFound, domain.RouteSignIn},
		{"no profile on admin", "/admin", "ghost", 401, domain.CodeProfileNotFound, domain.RouteSignIn},
		{"lookup failure", "/member", "broken", 401, domain.CodeUnauthenticated, domain.RouteSignIn},
		{"signed out on session", "/session", "", 401, domain.CodeUnauthenticated, domain.RouteSignIn},
		{"user on session", "/session", "u1", 200, "", ""},
		{"no profile on session", "/session", "ghost", 200, "", ""},
		{"lookup failure on session", "/session", "broken", 200, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, tt.path, tt.uid)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantRedirect, body.Redirect)
		})
	}
}

func TestGates_ProfileNotFoundMessage(t *testing.T) {
	env := newGateEnv(t)
	_, body := env.do(t, "/admin", "ghost")
	assert.Equal(t, "User profile not found.", body.Message)
}

func TestGates_RoleReachesHandler(t *testing.T) {
	env := newGateEnv(t)
	w, _ := env.do(t, "/admin", "root1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":"admin"}`, w.Body.String())
}

func TestGates_InvalidTokenIsSignedOut(t *testing.T) {
	env := newGateEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Identity Handler Tests ---

type fakeIdentity struct {
	signUpIn  service.SignUpInput
	signInIP  string
	signedOut *auth.Claims
	err       error
}

func (f *fakeIdentity) SignUp(_ context.Context, in service.SignUpInput) (*service.AuthResult, error) {
	f.signUpIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &service.AuthResult{Landing: domain.RouteHome}, nil
}

func (f *fakeIdentity) SignIn(_ context.Context, _ service.SignInInput, ip string) (*service.AuthResult, error) {
	f.signInIP = ip
	if f.err != nil {
		return nil, f.err
	}
	return &service.AuthResult{Landing: domain.RouteAdminDashboard}, nil
}

func (f *fakeIdentity) SignOut(_ context.Context, claims *auth.Claims) error {
	f.signedOut = claims
	return f.err
}

func (f *fakeIdentity) CurrentIdentity(claims *auth.Claims) (domain.Identity, error) {
	if claims == nil {
		return domain.Identity{}, domain.ErrUnauthenticated("not signed in")
	}
	return claims.Identity(), nil
}

func (f *fakeIdentity) Profile(_ context.Context, uid string) (*domain.Profile, error) {
	if uid == "" {
		return nil, domain.ErrProfileNotFound(uid)
	}
	return &domain.Profile{UID: uid, Role: domain.RoleUser}, nil
}

func withSubject(r *http.Request, uid string) *http.Request {
	claims := &auth.Claims{}
	claims.Subject = uid
	claims.ID = "tok-" + uid
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func TestIdentityHandler(t *testing.T) {
	t.Run("sign up returns 201", func(t *testing.T) {
		fake := &fakeIdentity{}
		h := NewIdentityHandler(fake)
		w := httptest.NewRecorder()
		h.SignUp(w, httptest.NewRequest(http.MethodPost, "/auth/signup",
			strings.NewReader(`{"displayName":"Una","email":"una@example.com","phone":"1","password":"secret1","confirmPassword":"secret1"}`)))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "una@example.com", fake.signUpIn.Email)
		assert.Equal(t, "secret1", fake.signUpIn.ConfirmPassword)
	})

	t.Run("sign up bad body", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewIdentityHandler(&fakeIdentity{}).SignUp(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sign in passes client ip and landing", func(t *testing.T) {
		fake := &fakeIdentity{}
		req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
		req.RemoteAddr = "192.0.2.7:4000"
		w := httptest.NewRecorder()
		NewIdentityHandler(fake).SignIn(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "192.0.2.7", fake.signInIP)
		assert.Contains(t, w.Body.String(), `"landing":"admin-dashboard"`)
	})

	t.Run("sign in error is mapped", func(t *testing.T) {
		fake := &fakeIdentity{err: domain.ErrWrongPassword()}
		w := httptest.NewRecorder()
		NewIdentityHandler(fake).SignIn(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), domain.CodeWrongPassword)
	})

	t.Run("sign out revokes caller claims", func(t *testing.T) {
		fake := &fakeIdentity{}
		w := httptest.NewRecorder()
		NewIdentityHandler(fake).SignOut(w, withSubject(httptest.NewRequest(http.MethodPost, "/", nil), "u1"))
		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, fake.signedOut)
		assert.Equal(t, "tok-u1", fake.signedOut.ID)
	})

	t.Run("session and me", func(t *testing.T) {
		h := NewIdentityHandler(&fakeIdentity{})

		w := httptest.NewRecorder()
		h.Session(w, withSubject(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"uid":"u1"`)

		w = httptest.NewRecorder()
		h.Me(w, withSubject(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"role":"user"`)
	})
}

// --- Activity Handler Tests ---

type fakeIntake struct {
	uid   string
	input service.SubmitInput
	parts map[string][]byte
	err   error
}

func (f *fakeIntake) Submit(_ context.Context, uid string, input service.SubmitInput) (*domain.Activity, error) {
	f.uid = uid
	f.input = input
	f.parts = make(map[string][]byte)
	for _, up := range input.Uploads {
		b, _ := io.ReadAll(up.Body)
		f.parts[up.Field] = b
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Activity{ID: "a1", UserID: uid, Status: domain.StatusPending}, nil
}

type fakeResults struct {
	userID string
	limit  int
}

func (f *fakeResults) ListResults(_ context.Context, userID string, limit int) ([]domain.Result, error) {
	f.userID, f.limit = userID, limit
	return []domain.Result{}, nil
}

func multipartBundle(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	for _, dir := range domain.Directions {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+string(dir)+`"; filename="`+string(dir)+`.mp4"`)
		h.Set("Content-Type", "video/mp4")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("clip-" + string(dir)))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestActivityHandler_Submit(t *testing.T) {
	fake := &fakeIntake{}
	h := NewActivityHandler(fake, &fakeResults{}, 1<<20)

	body, ct := multipartBundle(t)
	req := httptest.NewRequest(http.MethodPost, "/activities", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Idempotency-Key", "k-123")
	w := httptest.NewRecorder()
	h.Submit(w, withSubject(req, "u1"))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", fake.uid)
	assert.Equal(t, "k-123", fake.input.IdempotencyKey)
	require.Len(t, fake.input.Uploads, 4)
	for _, up := range fake.input.Uploads {
		assert.Equal(t, "video/mp4", up.DeclaredType)
		assert.Equal(t, up.Field+".mp4", up.Filename)
	}
	assert.Equal(t, []byte("clip-west"), fake.parts["west"])
}

func TestActivityHandler_SubmitRejections(t *testing.T) {
	t.Run("not multipart", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewActivityHandler(&fakeIntake{}, &fakeResults{}, 1<<20).
			Submit(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		body, ct := multipartBundle(t)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		NewActivityHandler(&fakeIntake{}, &fakeResults{}, 16).Submit(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), domain.CodeValidation)
	})

	t.Run("intake error is mapped", func(t *testing.T) {
		fake := &fakeIntake{err: domain.ErrServer("")}
		body, ct := multipartBundle(t)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		NewActivityHandler(fake, &fakeResults{}, 1<<20).Submit(w, withSubject(req, "u1"))
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), "Server error. Please try again later.")
	})
}

func TestActivityHandler_MyResults(t *testing.T) {
	results := &fakeResults{}
	w := httptest.NewRecorder()
	NewActivityHandler(&fakeIntake{}, results, 0).
		MyResults(w, withSubject(httptest.NewRequest(http.MethodGet, "/results/me?limit=5", nil), "u1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", results.userID)
	assert.Equal(t, 5, results.limit)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, 0, QueryLimit(httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, 0, QueryLimit(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)))
	assert.Equal(t, 0, QueryLimit(httptest.NewRequest(http.MethodGet, "/?limit=-3", nil)))
	assert.Equal(t, 25, QueryLimit(httptest.NewRequest(http.MethodGet, "/?limit=25", nil)))
}

// --- Links / Health Tests ---

func TestLinksHandler(t *testing.T) {
	tests := []struct {
		query string
		want  LinkDecision
	}{
		{"?mode=verifyEmail", LinkDecision{Outcome: "redirect", Target: domain.RouteAccount}},
		{"?mode=resetPassword", LinkDecision{Outcome: "redirect", Target: domain.RouteResetPassword}},
		{"?mode=recoverEmail", LinkDecision{Outcome: "stay", Target: domain.RouteProcessing, Notice: "Processing your request..."}},
		{"?url=" + "https%3A%2F%2Fapp.example.com%2Faction%3Fmode%3DresetPassword%26oobCode%3Dx", LinkDecision{Outcome: "redirect", Target: domain.RouteResetPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			LinksHandler(noopLogger())(w, httptest.NewRequest(http.MethodGet, "/links/dispatch"+tt.query, nil))

			require.Equal(t, http.StatusOK, w.Code)
			var got LinkDecision
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(pingFunc(func(context.Context) error { return nil }))(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	HealthHandler(pingFunc(func(context.Context) error { return errors.New("down") }))(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// helper

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
