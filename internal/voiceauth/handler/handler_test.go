package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	agentdomain "merchant-voice-auth/internal/agent/domain"
	agentrepo "merchant-voice-auth/internal/agent/repository"
	"merchant-voice-auth/internal/audit"
	auditrepo "merchant-voice-auth/internal/audit/repository"
	"merchant-voice-auth/internal/capture"
	devicerepo "merchant-voice-auth/internal/device/repository"
	"merchant-voice-auth/internal/escalation"
	merchantdomain "merchant-voice-auth/internal/merchant/domain"
	"merchant-voice-auth/internal/persona"
	"merchant-voice-auth/internal/realtime"
	"merchant-voice-auth/internal/registry"
	"merchant-voice-auth/internal/security"
	"merchant-voice-auth/internal/validation/domain"
	validationrepo "merchant-voice-auth/internal/validation/repository"
	"merchant-voice-auth/internal/voiceauth/service"
)

type fakeAuth struct {
	mu        sync.Mutex
	lastStart service.StartInput
	startRes  *service.StartResult
	answerRes *service.AnswerResult
	err       error
}

func (f *fakeAuth) Start(ctx context.Context, in service.StartInput) (*service.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStart = in
	return f.startRes, f.err
}

func (f *fakeAuth) Answer(ctx context.Context, in service.AnswerInput) (*service.AnswerResult, error) {
	return f.answerRes, f.err
}

// bus delivers published updates to subscribers synchronously.
type bus struct {
	mu   sync.Mutex
	subs map[string][]func(realtime.Update)
}

func (b *bus) Subscribe(ctx context.Context, id string, onChange func(realtime.Update)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string][]func(realtime.Update))
	}
	b.subs[id] = append(b.subs[id], onChange)
	return func() {}, nil
}

func (b *bus) Publish(ctx context.Context, u realtime.Update) error {
	b.mu.Lock()
	subs := append([]func(realtime.Update){}, b.subs[u.RequestID]...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
	return nil
}

type fixture struct {
	auth        *fakeAuth
	coordinator *escalation.Coordinator
	registry    *registry.Registry
	tokens      *security.TokenProvider
	server      *httptest.Server
}

func newFixture(t *testing.T, devCodes bool) *fixture {
	t.Helper()
	decisions := auditrepo.NewMemoryRepository()
	reg := registry.New(devicerepo.NewMemoryRepository(), decisions, audit.NewLogger(decisions, nil), nil)
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	b := &bus{}
	f := &fixture{
		auth: &fakeAuth{},
		coordinator: escalation.NewCoordinator(escalation.Options{
			Requests:   validationrepo.NewMemoryRepository(),
			Registry:   reg,
			Subscriber: b,
			Publisher:  b,
		}),
		registry: reg,
		tokens:   tokens,
	}
	agents := agentrepo.NewMemoryRepository(
		&agentdomain.Agent{ID: "a-1", Name: "Mariam", Active: true},
		&agentdomain.Agent{ID: "a-2", Name: "Serge", Active: true},
		&agentdomain.Agent{ID: "a-off", Name: "Ancien", Active: false},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.server = httptest.NewServer(NewRouter(logger, Dependencies{
		Auth:           f.auth,
		Validations:    f.coordinator,
		AgentTokens:    tokens,
		Agents:         agents,
		Devices:        reg,
		AllowedOrigins: []string{"https://app.example.com"},
		DevCodes:       devCodes,
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) agentToken(t *testing.T, agentID string) string {
	t.Helper()
	token, _, err := f.tokens.IssueAgent(agentID)
	if err != nil {
		t.Fatalf("IssueAgent: %v", err)
	}
	return token
}

// postAs sends body with the given bearer token; an empty token sends none.
func (f *fixture) postAs(t *testing.T, token, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func (f *fixture) newRequest(t *testing.T) *domain.Request {
	t.Helper()
	m := &merchantdomain.Merchant{ID: "m-1", DisplayName: "Awa", Phone: "+2250701000001"}
	req, err := f.coordinator.RequestValidation(context.Background(), m, m.Phone, "NEW_DEVICE", domain.TypeDevice, "")
	if err != nil {
		t.Fatalf("RequestValidation: %v", err)
	}
	return req
}

func TestStart(t *testing.T) {
	f := newFixture(t, false)
	f.auth.startRes = &service.StartResult{
		MerchantFound: true, NormalizedPhone: "+2250701000001", NextStep: persona.StepDirect,
		Message: "Bonjour Awa", TrustScore: 95, MerchantID: "m-1", SessionToken: "tok",
	}
	audio := base64.StdEncoding.EncodeToString([]byte("pcm"))
	resp, body := f.post(t, "/v1/voice-auth/start",
		`{"lang":"fr","device_fingerprint":"fp-1","phone_spoken":"","phone_audio_b64":"`+audio+`","context":{"lat":5.3,"hour":14}}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["next_step"] != "DIRECT" || body["session_token"] != "tok" || body["trust_score"] != float64(95) {
		t.Errorf("body = %v", body)
	}
	if codes, ok := body["reason_codes"].([]any); !ok || len(codes) != 0 {
		t.Errorf("reason_codes = %v, want empty list", body["reason_codes"])
	}
	if _, ok := body["validation_id"]; ok {
		t.Error("validation_id should be omitted")
	}
	in := f.auth.lastStart
	if string(in.Audio) != "pcm" || in.Fingerprint != "fp-1" || in.Context.Hour == nil || *in.Context.Hour != 14 || in.Context.Lng != nil {
		t.Errorf("service input = %+v", in)
	}
}

func TestStartAnswer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
		code   string
		step   string
	}{
		{"bad json", "/v1/voice-auth/start", `{`, nil, http.StatusBadRequest, "INVALID_REQUEST", "RETRY"},
		{"bad audio", "/v1/voice-auth/start", `{"phone_audio_b64":"!!"}`, nil, http.StatusBadRequest, "INVALID_REQUEST", "RETRY"},
		{"language", "/v1/voice-auth/start", `{}`, capture.ErrUnsupportedLanguage, http.StatusBadRequest, "UNSUPPORTED_LANGUAGE", "RETRY"},
		{"short audio", "/v1/voice-auth/start", `{}`, capture.ErrAudioTooShort, http.StatusBadRequest, "AUDIO_TOO_SHORT", "RETRY"},
		{"unknown merchant", "/v1/voice-auth/answer", `{}`, service.ErrMerchantNotFound, http.StatusNotFound, "MERCHANT_NOT_FOUND", "REGISTER"},
		{"store", "/v1/voice-auth/start", `{}`, escalation.ErrStoreWriteFailed, http.StatusInternalServerError, "STORE_WRITE_FAILED", "RETRY"},
		{"internal", "/v1/voice-auth/answer", `{}`, errors.New("pq: connection reset"), http.StatusInternalServerError, "internal error", "RETRY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.auth.err = tt.err
			resp, body := f.post(t, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body["error"] != tt.code {
				t.Errorf("error = %v, want %q", body["error"], tt.code)
			}
			if body["next_step"] != tt.step {
				t.Errorf("next_step = %v, want %q", body["next_step"], tt.step)
			}
			if msg, _ := body["message_tts"].(string); msg == "" {
				t.Error("message_tts is empty")
			}
		})
	}
}

func TestStart_FailureIsVoiced(t *testing.T) {
	f := newFixture(t, false)
	f.auth.err = capture.ErrEmptyAudio
	resp, body := f.post(t, "/v1/voice-auth/start", `{"lang":"en","device_fingerprint":"fp-1"}`)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "EMPTY_AUDIO" {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["next_step"] != "RETRY" || body["message_tts"] != "I didn't quite catch that. Could you say it again, please?" {
		t.Errorf("body = %v", body)
	}
}

func TestAnswer(t *testing.T) {
	f := newFixture(t, false)
	f.auth.answerRes = &service.AnswerResult{NextStep: persona.StepEscalate, TrustScore: 55, Message: "agent", ValidationID: "v-1"}
	resp, body := f.post(t, "/v1/voice-auth/answer", `{"merchant_id":"m-1","challenge_key":"market_name","answer_spoken":"x"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["next_step"] != "ESCALATE" || body["validation_id"] != "v-1" || body["message_tts"] != "agent" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["session_token"]; ok {
		t.Error("session_token should be omitted")
	}
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, false)
	for _, origin := range []string{"https://app.example.com", "https://evil.example.com", ""} {
		req, _ := http.NewRequest(http.MethodOptions, f.server.URL+"/v1/voice-auth/start", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("OPTIONS: %v", err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent || len(b) != 0 {
			t.Errorf("origin %q: status = %d, body = %q", origin, resp.StatusCode, b)
		}
		want := ""
		if origin == "https://app.example.com" {
			want = origin
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("origin %q: Access-Control-Allow-Origin = %q, want %q", origin, got, want)
		}
	}
}

func TestDecideAndGet(t *testing.T) {
	f := newFixture(t, false)
	req := f.newRequest(t)

	resp, body := f.get(t, "/v1/validations/"+req.ID)
	if resp.StatusCode != http.StatusOK || body["result"] != "pending" || body["type"] != "device" {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if secs, _ := body["remaining_seconds"].(float64); secs < 1790 || secs > 1800 {
		t.Errorf("remaining_seconds = %v", body["remaining_seconds"])
	}
	if _, ok := body["code"]; ok {
		t.Error("the code must not be exposed")
	}

	resp, body = f.postAs(t, f.agentToken(t, "a-1"), "/v1/validations/decide", `{"code":"`+req.Code+`","agent_id":"a-1","approved":true}`)
	if resp.StatusCode != http.StatusOK || body["validated"] != true {
		t.Fatalf("decide: status = %d, body = %v", resp.StatusCode, body)
	}
	_, body = f.postAs(t, f.agentToken(t, "a-2"), "/v1/validations/decide", `{"code":"`+req.Code+`","approved":false}`)
	if body["validated"] != false {
		t.Errorf("second decision: body = %v", body)
	}

	_, body = f.get(t, "/v1/validations/"+req.ID)
	if body["result"] != "approved" || body["validator_id"] != "a-1" || body["remaining_seconds"] != float64(0) {
		t.Errorf("after decide: body = %v", body)
	}

	resp, body = f.postAs(t, f.agentToken(t, "a-1"), "/v1/validations/decide", `{"agent_id":"a-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing code: status = %d, body = %v", resp.StatusCode, body)
	}
	resp, body = f.get(t, "/v1/validations/nope")
	if resp.StatusCode != http.StatusNotFound || body["error"] != "VALIDATION_NOT_FOUND_OR_EXPIRED" {
		t.Errorf("unknown id: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestDecide_AgentAuth(t *testing.T) {
	f := newFixture(t, false)
	req := f.newRequest(t)
	body := `{"code":"` + req.Code + `","agent_id":"a-1","approved":true}`

	session, _, err := f.tokens.IssueSession("m-1", "fp-1", "", "direct")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	other, _ := security.NewTestTokenProvider()
	foreign, _, _ := other.IssueAgent("a-1")

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"no token", "", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"merchant session", session, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"foreign key", foreign, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"inactive agent", f.agentToken(t, "a-off"), http.StatusForbidden, "AGENT_NOT_ACTIVE"},
		{"unknown agent", f.agentToken(t, "a-9"), http.StatusForbidden, "AGENT_NOT_ACTIVE"},
		{"someone else's id", f.agentToken(t, "a-2"), http.StatusForbidden, "AGENT_MISMATCH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.postAs(t, tt.token, "/v1/validations/decide", body)
			if resp.StatusCode != tt.status || out["error"] != tt.code {
				t.Errorf("status = %d, body = %v, want %d %s", resp.StatusCode, out, tt.status, tt.code)
			}
		})
	}

	_, out := f.get(t, "/v1/validations/"+req.ID)
	if out["result"] != "pending" {
		t.Errorf("request decided by an unauthenticated call: %v", out)
	}
}

func TestDecide_Throttled(t *testing.T) {
	f := newFixture(t, false)
	token := f.agentToken(t, "a-1")

	for i := 0; i < decideBurst; i++ {
		resp, body := f.postAs(t, token, "/v1/validations/decide", `{"code":"000000","approved":true}`)
		if resp.StatusCode != http.StatusOK || body["validated"] != false {
			t.Fatalf("guess %d: status = %d, body = %v", i, resp.StatusCode, body)
		}
	}
	resp, body := f.postAs(t, token, "/v1/validations/decide", `{"code":"000001","approved":true}`)
	if resp.StatusCode != http.StatusTooManyRequests || body["error"] != "TOO_MANY_ATTEMPTS" {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}

	resp, _ = f.postAs(t, f.agentToken(t, "a-2"), "/v1/validations/decide", `{"code":"000002","approved":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("other agent: status = %d, want 200", resp.StatusCode)
	}
}

func TestRevokeDevice(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	if _, err := f.registry.UpsertDevice(ctx, "m-1", "fp-1"); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}

	resp, _ := f.postAs(t, "", "/v1/devices/revoke", `{"merchant_id":"m-1","device_fingerprint":"fp-1"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	resp, body := f.postAs(t, f.agentToken(t, "a-1"), "/v1/devices/revoke", `{"merchant_id":"m-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fingerprint: status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = f.postAs(t, f.agentToken(t, "a-1"), "/v1/devices/revoke", `{"merchant_id":"m-1","device_fingerprint":"fp-1"}`)
	if resp.StatusCode != http.StatusOK || body["revoked"] != true {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	devices, err := f.registry.ListDevices(ctx, "m-1")
	if err != nil || len(devices) != 1 {
		t.Fatalf("ListDevices = %v, %v", devices, err)
	}
	if !devices[0].Revoked {
		t.Error("device still trusted after revoke")
	}
}

func TestDevCode(t *testing.T) {
	f := newFixture(t, false)
	req := f.newRequest(t)
	resp, err := http.Get(f.server.URL + "/dev/validations/" + req.ID + "/code")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("disabled: status = %d, want 404", resp.StatusCode)
	}

	f = newFixture(t, true)
	req = f.newRequest(t)
	resp, body := f.get(t, "/dev/validations/"+req.ID+"/code")
	if resp.StatusCode != http.StatusOK || body["code"] != req.Code {
		t.Errorf("enabled: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestWatchValidation(t *testing.T) {
	f := newFixture(t, false)
	req := f.newRequest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/validations/" + req.ID + "/watch"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	var frame watchFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if frame.ID != req.ID || frame.Result != "pending" || frame.RemainingSeconds <= 0 {
		t.Errorf("first frame = %+v", frame)
	}

	if ok, err := f.coordinator.ValidateRequest(ctx, req.Code, "a-1", true, ""); !ok || err != nil {
		t.Fatalf("ValidateRequest = %v, %v", ok, err)
	}
	for frame.Result == "pending" {
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if frame.Result != "approved" || frame.RemainingSeconds != 0 {
		t.Errorf("final frame = %+v", frame)
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", websocket.CloseStatus(err))
	}
}

func TestWatchValidation_UnknownID(t *testing.T) {
	f := newFixture(t, false)
	resp, body := f.get(t, "/v1/validations/nope/watch")
	if resp.StatusCode != http.StatusNotFound || body["error"] != "VALIDATION_NOT_FOUND_OR_EXPIRED" {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestHealthRoute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewRouter(logger, Dependencies{
		Auth: &fakeAuth{},
		Health: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"ok"`)) {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
