package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/currency"
	"github.com/webextended/ga4-tracking/internal/hooks"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

//go:embed templates/*.html assets/style.css
var webFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money":     currency.Format,
	"lineTotal": lineTotal,
}).ParseFS(webFS, "templates/*.html"))

type layoutData struct {
	Title       string
	Head        template.HTML
	BodyOpen    template.HTML
	Content     template.HTML
	OrderOutput template.HTML
	Footer      template.HTML
	Admin       bool
}

// renderPage renders a storefront page, running the tracking hooks
// registered for page into its injection points.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, page tracking.Page, title, content string, data any) {
	ctx := r.Context()

	body, err := executeContent(content, data)
	if err != nil {
		s.log.Error("failed to render page", "template", content, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	reg := hooks.NewRegistry(s.log)
	req := tracking.Request{Page: page, Caps: s.caps, SessionID: sessionID(ctx)}
	if err := s.tracker.Register(ctx, req, reg, reg, reg); err != nil {
		// The page is still served, without tracking output.
		s.log.Error("failed to register tracking", "error", err)
	}

	layout := layoutData{Title: title, Content: template.HTML(body)}
	for point, dst := range map[tracking.InjectionPoint]*template.HTML{
		tracking.PointHead:     &layout.Head,
		tracking.PointBodyOpen: &layout.BodyOpen,
		tracking.PointFooter:   &layout.Footer,
	} {
		out, err := reg.RenderString(ctx, point)
		if err != nil {
			s.log.Error("failed to render hooks", "point", point, "error", err)
			continue
		}
		*dst = template.HTML(out)
	}

	if page.IsOrderReceived {
		var buf bytes.Buffer
		if err := reg.CompleteOrder(ctx, &buf, page.OrderID); err != nil {
			s.log.Error("failed to render order hooks", "order_id", page.OrderID, "error", err)
		}
		layout.OrderOutput = template.HTML(buf.String())
	}

	s.writeLayout(w, layout)
}

// renderAdmin renders an admin page. Storefront hooks do not run there.
func (s *Server) renderAdmin(w http.ResponseWriter, title, content string, data any) {
	body, err := executeContent(content, data)
	if err != nil {
		s.log.Error("failed to render page", "template", content, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	s.writeLayout(w, layoutData{Title: title, Content: template.HTML(body), Admin: true})
}

func (s *Server) writeLayout(w http.ResponseWriter, data layoutData) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.Error("failed to render layout", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func lineTotal(line commerce.CartLine) float64 {
	if line.Product == nil {
		return 0
	}
	return line.Product.Price * float64(line.Quantity)
}

func executeContent(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *Server) handleCSS(w http.ResponseWriter, r *http.Request) {
	css, err := webFS.ReadFile("assets/style.css")
	if err != nil {
		http.Error(w, "Failed to load styles", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(css)
}
