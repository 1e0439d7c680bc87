package server

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/webextended/ga4-tracking/internal/hooks"
	"github.com/webextended/ga4-tracking/internal/httputil"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Ecommerce     bool   `json:"ecommerce"`
	OrdersCount   int    `json:"orders_count"`
	DBSizeBytes   int64  `json:"db_size_bytes,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.store.CountOrders(ctx)
	if err != nil {
		s.log.Error("health check failed", "error", err)
		httputil.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Ecommerce: s.caps.Ecommerce})
		return
	}

	// Database size, when the store exposes its connection
	var dbSize int64
	if dbs, ok := s.store.(interface{ DB() *sql.DB }); ok {
		row := dbs.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&dbSize); err != nil {
			dbSize = 0
		}
	}

	httputil.OK(w, HealthResponse{
		Status:        "ok",
		Ecommerce:     s.caps.Ecommerce,
		OrdersCount:   count,
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// handleAjax dispatches an async action to the handler the tracker
// registered for this request.
func (s *Server) handleAjax(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tracking.WriteResponse(w, nil, &tracking.ActionError{Status: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	ctx := r.Context()
	reg := hooks.NewRegistry(s.log)
	req := tracking.Request{Caps: s.caps, SessionID: sessionID(ctx)}
	if err := s.tracker.Register(ctx, req, reg, reg, reg); err != nil {
		s.log.Error("failed to register tracking", "error", err)
		tracking.WriteResponse(w, nil, err)
		return
	}

	action := r.Form.Get("action")
	data, err := reg.Dispatch(ctx, action, r.Form)
	if errors.Is(err, hooks.ErrUnknownAction) {
		err = &tracking.ActionError{Status: http.StatusBadRequest, Message: "Unknown action"}
	}

	var ae *tracking.ActionError
	if err != nil && !errors.As(err, &ae) {
		s.log.Error("async action failed", "action", action, "error", err)
	}
	tracking.WriteResponse(w, data, err)
}
