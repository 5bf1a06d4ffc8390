package handlers

import (
	"net/http"
	"strings"
)

// ForgotPassword mails a reset link to the account with the given email.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.resets.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reset link sent to your email"})
}

// ResetPassword redeems a reset link.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword       string `json:"new_password"`
		LegacyNewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	password := req.NewPassword
	if password == "" {
		password = req.LegacyNewPassword
	}

	if err := h.resets.ConsumePasswordReset(r.Context(), strings.TrimSpace(r.PathValue("id")), password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}
