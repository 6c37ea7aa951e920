package learner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/middleware"
	"github.com/byteos/intelligence/internal/models"
)

func postProfile(t *testing.T, h http.Handler, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/learner/profile", bytes.NewReader(buf))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerUpdateProfile(t *testing.T) {
	h := NewHandler(newTestService(NewMemoryStore()), logger.Nop())

	rec := postProfile(t, http.HandlerFunc(h.UpdateProfile), models.ProfileUpdateRequest{
		UserID:        learnerA,
		SessionEvents: []models.RawEvent{rawView(t0), {EventType: "nope"}},
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp models.ProfileUpdateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.StreakDays != 1 || resp.Metadata.EventsSkipped != 1 {
		t.Errorf("response = %+v, want streak 1 and one skipped", resp)
	}
	if _, ok := resp.ModalityScoresUpdated["video"]; !ok {
		t.Errorf("modality_scores_updated = %v, want video", resp.ModalityScoresUpdated)
	}
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h := http.HandlerFunc(NewHandler(newTestService(NewMemoryStore()), logger.Nop()).UpdateProfile)

	req := httptest.NewRequest(http.MethodPost, "/api/learner/profile", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed json status = %d, want 400", rec.Code)
	}

	rec = postProfile(t, h, models.ProfileUpdateRequest{UserID: "abc"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad user_id status = %d, want 400", rec.Code)
	}
}

func TestHandlerTokenMustMatchUser(t *testing.T) {
	h := NewHandler(newTestService(NewMemoryStore()), logger.Nop())
	protected := middleware.NewAuth("s3cret", "").Middleware(http.HandlerFunc(h.UpdateProfile))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "11111111-1111-4111-8111-111111111111",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}

	rec := postProfile(t, protected, models.ProfileUpdateRequest{UserID: learnerA}, token)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandlerStoreUnavailable(t *testing.T) {
	store := &conflictStore{MemoryStore: NewMemoryStore(), putErr: context.DeadlineExceeded}
	h := http.HandlerFunc(NewHandler(newTestService(store), logger.Nop()).UpdateProfile)

	rec := postProfile(t, h, models.ProfileUpdateRequest{UserID: learnerA, SessionEvents: []models.RawEvent{rawView(t0)}}, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("missing Retry-After header")
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Operation != "update profile" || resp.Attempts != 1 {
		t.Errorf("error body = %+v, want operation update profile after 1 attempt", resp)
	}
}

func TestHandlerConflictExhausted(t *testing.T) {
	store := &conflictStore{MemoryStore: NewMemoryStore(), conflicts: 10}
	h := http.HandlerFunc(NewHandler(newTestService(store), logger.Nop()).UpdateProfile)

	rec := postProfile(t, h, models.ProfileUpdateRequest{UserID: learnerA, SessionEvents: []models.RawEvent{rawView(t0)}}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Operation != "update profile" || resp.Attempts != 3 {
		t.Errorf("error body = %+v, want operation update profile after 3 attempts", resp)
	}
}
