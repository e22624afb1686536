package api

import (
	"net/http"
	"strings"

	"pdfgate/cmd/internal/device"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var status device.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, ok := device.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
			return
		}
		status = st
	}

	ctx := r.Context()
	recs, err := h.devices.List(ctx, status)
	if err != nil {
		writeDomainError(w, h.log, "device.list.fail", err)
		return
	}

	users := newUserCache(h.users)
	out := make([]deviceResponse, 0, len(recs))
	for _, rec := range recs {
		u, err := users.get(ctx, rec.UserID)
		if err != nil {
			writeDomainError(w, h.log, "device.list.fail", err)
			return
		}
		out = append(out, toDeviceResponse(rec, u))
	}
	writeJSON(w, http.StatusOK, devicesResponse{Devices: out})
}

func (h *Handler) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	var req deviceActionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	now := h.now()
	action := strings.ToLower(strings.TrimSpace(req.Action))

	var (
		rec device.Record
		err error
	)
	switch action {
	case "approve":
		rec, err = h.devices.Approve(ctx, id, now)
	case "reject":
		rec, err = h.devices.Reject(ctx, id, now)
	case "revoke":
		rec, err = h.devices.Revoke(ctx, id, now)
	default:
		writeError(w, http.StatusBadRequest, "invalid_action", "action must be approve, reject or revoke")
		return
	}
	h.metrics.deviceAction(action, err)
	if err != nil {
		writeDomainError(w, h.log, "device."+action+".fail", err)
		return
	}

	claims, _ := claimsFromContext(ctx)
	h.audit(r, "device."+action, claims.UserID, claims.SessionID, map[string]any{
		"device":  rec.ID,
		"user_id": rec.UserID,
	})

	u, err := newUserCache(h.users).get(ctx, rec.UserID)
	if err != nil {
		writeDomainError(w, h.log, "device."+action+".fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(rec, u))
}
