package handler

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"merchant-voice-auth/internal/escalation"
	"merchant-voice-auth/internal/validation/domain"
)

// watchWriteTimeout bounds one websocket frame write.
const watchWriteTimeout = 5 * time.Second

// Validations is the agent side of escalation.
type Validations interface {
	ValidateRequest(ctx context.Context, code, agentID string, approved bool, notes string) (bool, error)
	Get(ctx context.Context, id string) (*domain.Request, error)
	OpenSession(ctx context.Context, req *domain.Request, onChange func(escalation.State), onReject func(domain.Result)) (*escalation.Session, error)
}

type decideRequest struct {
	Code     string `json:"code"`
	AgentID  string `json:"agent_id"`
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// DeviceRevoker withdraws trust from a merchant's device.
type DeviceRevoker interface {
	RevokeDevice(ctx context.Context, merchantID, fingerprint string) error
}

type revokeRequest struct {
	MerchantID        string `json:"merchant_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

type decideResponse struct {
	Validated bool `json:"validated"`
}

type validationResponse struct {
	ID               string     `json:"id"`
	MerchantID       string     `json:"merchant_id"`
	Type             string     `json:"type"`
	Result           string     `json:"result"`
	Reason           string     `json:"reason,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RemainingSeconds int        `json:"remaining_seconds"`
	ValidatorID      string     `json:"validator_id,omitempty"`
	ValidatedAt      *time.Time `json:"validated_at,omitempty"`
}

type watchFrame struct {
	ID               string `json:"id"`
	Result           string `json:"result"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func (h *handlers) decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	agentID, _ := agentIDFrom(r.Context())
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if id := strings.TrimSpace(req.AgentID); id != "" && id != agentID {
		writeError(w, http.StatusForbidden, "AGENT_MISMATCH")
		return
	}
	if !h.throttle.allow(agentID) {
		h.logger.Warn("decide throttled", "agent_id", agentID)
		writeError(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS")
		return
	}
	ok, err := h.validations.ValidateRequest(r.Context(), req.Code, agentID, req.Approved, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, decideResponse{Validated: ok})
}

func (h *handlers) revokeDevice(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	merchantID, fingerprint := strings.TrimSpace(req.MerchantID), strings.TrimSpace(req.DeviceFingerprint)
	if merchantID == "" || fingerprint == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if err := h.devices.RevokeDevice(r.Context(), merchantID, fingerprint); err != nil {
		h.fail(w, r, err)
		return
	}
	agentID, _ := agentIDFrom(r.Context())
	h.logger.Info("device revoked", "merchant_id", merchantID, "agent_id", agentID)
	respondJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (h *handlers) getValidation(w http.ResponseWriter, r *http.Request) {
	req, err := h.validations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	remaining := req.Remaining(time.Now())
	if req.Result.IsTerminal() {
		remaining = 0
	}
	respondJSON(w, http.StatusOK, validationResponse{
		ID:               req.ID,
		MerchantID:       req.MerchantID,
		Type:             string(req.Type),
		Result:           string(req.Result),
		Reason:           req.Reason,
		ExpiresAt:        req.ExpiresAt,
		RemainingSeconds: seconds(remaining),
		ValidatorID:      req.ValidatorID,
		ValidatedAt:      req.ValidatedAt,
	})
}

// watchValidation streams the request's result and countdown until it ends or the client leaves.
func (h *handlers) watchValidation(w http.ResponseWriter, r *http.Request) {
	req, err := h.validations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(h.origins)})
	if err != nil {
		return
	}
	ctx := conn.CloseRead(r.Context())

	states := make(chan escalation.State, 16)
	sess, err := h.validations.OpenSession(ctx, req, func(s escalation.State) {
		select {
		case states <- s:
		default:
		}
	}, nil)
	if err != nil {
		h.logger.Warn("watch: subscribe failed", "validation_id", req.ID, "error", err)
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sess.Close()

	if err := h.writeFrame(ctx, conn, sess.State()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case s := <-states:
			if err := h.writeFrame(ctx, conn, s); err != nil {
				return
			}
			if s.Result.IsTerminal() {
				_ = conn.Close(websocket.StatusNormalClosure, string(s.Result))
				return
			}
		case <-sess.Done():
			final := sess.State()
			if err := h.writeFrame(ctx, conn, final); err != nil {
				return
			}
			_ = conn.Close(websocket.StatusNormalClosure, string(final.Result))
			return
		}
	}
}

func (h *handlers) writeFrame(ctx context.Context, conn *websocket.Conn, s escalation.State) error {
	writeCtx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()
	err := wsjson.Write(writeCtx, conn, watchFrame{ID: s.RequestID, Result: string(s.Result), RemainingSeconds: seconds(s.Remaining)})
	if err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
	}
	return err
}

func (h *handlers) devCode(w http.ResponseWriter, r *http.Request) {
	req, err := h.validations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"code": req.Code})
}

// originPatterns turns CORS origins into websocket host patterns. Empty leaves same-origin only.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
