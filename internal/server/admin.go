package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/webextended/ga4-tracking/internal/config"
)

// settingsNonceAction scopes the nonce embedded in the settings form.
const settingsNonceAction = "ga4_settings"

type option struct {
	Value    string
	Label    string
	Selected bool
}

type settingsData struct {
	Config     config.TrackingConfig
	Placements []option
	Priorities []option
	Ecommerce  bool
	Nonce      string
	Saved      bool
	Error      string
}

func (s *Server) settingsView(cfg config.TrackingConfig) (settingsData, error) {
	nonce, err := s.nonces.Create(settingsNonceAction)
	if err != nil {
		return settingsData{}, err
	}

	data := settingsData{Config: cfg, Ecommerce: s.caps.Ecommerce, Nonce: nonce}
	for _, p := range []config.Placement{config.PlacementHeader, config.PlacementFooter, config.PlacementAfterBody} {
		data.Placements = append(data.Placements, option{Value: string(p), Label: p.Label(), Selected: p == cfg.Placement})
	}
	priorities := config.Priorities
	if !containsInt(priorities, cfg.Priority) {
		priorities = append(append([]int(nil), priorities...), cfg.Priority)
	}
	for _, p := range priorities {
		data.Priorities = append(data.Priorities, option{Value: strconv.Itoa(p), Label: config.PriorityLabel(p), Selected: p == cfg.Priority})
	}
	return data, nil
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{Name: tokenCookieName, Value: "", Path: "/admin", MaxAge: -1})
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	cfg, err := s.store.LoadTrackingConfig(r.Context())
	if err != nil {
		s.log.Error("failed to load settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	data, err := s.settingsView(cfg)
	if err != nil {
		s.log.Error("failed to create settings nonce", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	data.Saved = r.URL.Query().Get("updated") == "1"

	s.renderAdmin(w, "GA4 Ecommerce Tracking", "settings", data)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	if err := s.nonces.Verify(r.PostForm.Get("_wpnonce"), settingsNonceAction); err != nil {
		s.log.Warn("settings nonce verification failed", "error", err)
		http.Error(w, "Security check failed", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	current, err := s.store.LoadTrackingConfig(ctx)
	if err != nil {
		s.log.Error("failed to load settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	cfg, err := settingsFromForm(r, current, s.caps.Ecommerce)
	if err == nil {
		err = s.store.SaveTrackingConfig(ctx, cfg)
	}
	if err != nil {
		data, verr := s.settingsView(cfg)
		if verr != nil {
			http.Error(w, "Failed to load settings", http.StatusInternalServerError)
			return
		}
		data.Error = err.Error()
		w.WriteHeader(http.StatusBadRequest)
		s.renderAdmin(w, "GA4 Ecommerce Tracking", "settings", data)
		return
	}

	s.log.Info("tracking settings saved", "placement", cfg.Placement, "priority", cfg.Priority, "snippet", cfg.HasSnippet())
	http.Redirect(w, r, "/admin/settings?updated=1", http.StatusSeeOther)
}

// settingsFromForm applies the posted form to current. Event toggles are
// only part of the form while ecommerce is active; otherwise they are kept.
func settingsFromForm(r *http.Request, current config.TrackingConfig, ecommerce bool) (config.TrackingConfig, error) {
	cfg := current
	cfg.Snippet = strings.TrimSpace(r.PostForm.Get("ga4_code"))

	placement, err := config.ParsePlacement(r.PostForm.Get("code_placement"))
	if err != nil {
		return cfg, err
	}
	cfg.Placement = placement

	priority, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("code_priority")))
	if err != nil || priority <= 0 {
		priority = 1
	}
	cfg.Priority = priority

	if ecommerce {
		cfg.ViewItem = r.PostForm.Get("view_item_enabled") != ""
		cfg.AddToCart = r.PostForm.Get("add_to_cart_enabled") != ""
		cfg.BeginCheckout = r.PostForm.Get("begin_checkout_enabled") != ""
		cfg.Purchase = r.PostForm.Get("purchase_enabled") != ""
	}
	return cfg, nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
