package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fortuna/internal/coupon"
	"fortuna/pkg/domain"
	domainerrors "fortuna/pkg/domain-errors"
)

// visitorCookieMaxAge keeps the session cookie across browser restarts. The
// token itself never expires; the cookie just has to live long enough for a
// returning visitor to still carry it.
const visitorCookieMaxAge = int(365 * 24 * time.Hour / time.Second)

type couponPayload struct {
	ID        string     `json:"id"`
	Discount  int        `json:"discount"`
	Code      string     `json:"code"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Status    string     `json:"status"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ClientID  string     `json:"client_id,omitempty"`
}

func toCouponPayload(c coupon.Coupon) couponPayload {
	return couponPayload{
		ID:        c.ID.String(),
		Discount:  c.DiscountPercent,
		Code:      c.Code,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
		Status:    string(c.Status),
		UsedAt:    c.UsedAt,
	}
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, s.log, domainerrors.New(domainerrors.CodeInvalidInput, "malformed request body"))
		return
	}

	ident, err := s.identities.Identify(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	raw, err := s.tokens.Issue(ident.ID)
	if err != nil {
		writeError(w, r, s.log, domainerrors.Wrap(err, domainerrors.CodeInternal, "issue session token"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    raw,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r.Context())

	coupons, err := s.coupons.ListActiveForOwner(r.Context(), ident.ID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	payload := make([]couponPayload, 0, len(coupons))
	for _, c := range coupons {
		payload = append(payload, toCouponPayload(c))
	}

	// null when the visitor may spin right now.
	var nextSpinAt *time.Time
	if next := s.wheel.NextSpinAt(ident); next != nil && next.After(s.now()) {
		nextSpinAt = next
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           ident.ID.String(),
		"client_id":    ident.ExternalID,
		"coupons":      payload,
		"next_spin_at": nextSpinAt,
	})
}

func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r.Context())

	result, err := s.wheel.Spin(r.Context(), ident)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"discount":     result.DiscountPercent,
		"code":         result.Code,
		"issued_at":    result.IssuedAt,
		"expires_at":   result.ExpiresAt,
		"next_spin_at": result.NextSpinAt,
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, s.log, domainerrors.New(domainerrors.CodeInvalidInput, "malformed request body"))
		return
	}

	session, err := s.admins.Login(r.Context(), req.Password, r.UserAgent())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     adminCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	owned, err := s.coupons.ListAll(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	payload := make([]couponPayload, 0, len(owned))
	for _, oc := range owned {
		p := toCouponPayload(oc.Coupon)
		p.ClientID = oc.OwnerExternalID
		payload = append(payload, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": payload})
}

func (s *Server) handleUseCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCouponID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, domainerrors.New(domainerrors.CodeInvalidInput, "malformed coupon id"))
		return
	}

	if err := s.coupons.MarkUsed(r.Context(), id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleVerifyCoupon(w http.ResponseWriter, r *http.Request) {
	result, err := s.coupons.Verify(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	body := map[string]any{"status": result.Status}
	if result.Coupon != nil {
		body["coupon"] = toCouponPayload(*result.Coupon)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
