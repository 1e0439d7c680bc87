package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
)

// html/template JSON-encodes the event in the script context, so payload
// values cannot terminate the script element.
var pushTmpl = template.Must(template.New("push").Parse(`<script>
window.dataLayer = window.dataLayer || [];
window.dataLayer.push({{.}});
</script>
`))

// WriteInline writes a dataLayer push for ev.
func WriteInline(w io.Writer, ev Event) error {
	if err := pushTmpl.Execute(w, ev); err != nil {
		return fmt.Errorf("failed to render %s push: %w", ev.Name, err)
	}
	return nil
}

// WriteSnippet writes the configured base tracking snippet verbatim. The
// snippet is administrator supplied markup.
func WriteSnippet(w io.Writer, snippet string) error {
	if snippet == "" {
		return nil
	}
	_, err := io.WriteString(w, snippet+"\n")
	return err
}

// ActionError is an async request failure with a message safe to return to
// the browser.
type ActionError struct {
	Status  int
	Message string
}

func (e *ActionError) Error() string {
	return e.Message
}

func actionErr(status int, msg string) *ActionError {
	return &ActionError{Status: status, Message: msg}
}

// Response is the envelope returned by the async endpoint.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// WriteResponse writes the on-demand result of an async action. Errors that
// are not ActionErrors are reported with a generic message.
func WriteResponse(w http.ResponseWriter, data any, err error) error {
	status := http.StatusOK
	resp := Response{Success: true, Data: data}

	if err != nil {
		resp = Response{Success: false, Data: "Internal error"}
		status = http.StatusInternalServerError
		var ae *ActionError
		if errors.As(err, &ae) {
			resp.Data = ae.Message
			status = ae.Status
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}
