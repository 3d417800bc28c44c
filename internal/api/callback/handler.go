// Package callback serves the OAuth redirect target and the result page.
package callback

import (
	"context"
	"html/template"
	"net/http"
	"net/url"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/app/auth"
)

// Path is where the handler is mounted by default.
const Path = "/callback"

// Completer completes an authorization attempt from the redirect query.
type Completer interface {
	HandleCallback(ctx context.Context, query url.Values) error
}

// Messages returns the configured text for a result class, or "".
type Messages interface {
	GetMessage(code string) string
}

// Handler handles the authorization redirect.
type Handler struct {
	flow     Completer
	messages Messages
	onResult func(err error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithResultHook sets a function called with the outcome of every callback,
// after the page has been written.
func WithResultHook(fn func(err error)) Option {
	return func(h *Handler) {
		h.onResult = fn
	}
}

// New creates a new callback handler. messages may be nil.
func New(flow Completer, messages Messages, opts ...Option) *Handler {
	h := &Handler{flow: flow, messages: messages}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var page = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>FeelTune - {{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #1DB954 0%, #191414 100%);
            color: white;
        }
        .container {
            text-align: center;
            padding: 40px;
            max-width: 480px;
            background: rgba(0, 0, 0, 0.5);
            border-radius: 16px;
        }
        h1 { margin-bottom: 20px; }
        p { opacity: 0.8; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

type pageData struct {
	Title   string
	Message string
}

// ServeHTTP completes the authorization and renders the result page.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.flow.HandleCallback(r.Context(), r.URL.Query())

	status := http.StatusOK
	data := pageData{Title: "Authorization Complete", Message: h.message("success", "")}
	if err != nil {
		class := auth.Classify(err)
		zlog.Warn().Err(err).Msgf("callback: authorization failed (%s)", class)

		status = http.StatusInternalServerError
		if class == auth.FailureDenied || class == auth.FailureParameters {
			status = http.StatusBadRequest
		}
		data = pageData{Title: "Authorization Failed", Message: h.message(class, auth.UserMessage(err))}
	} else {
		zlog.Info().Msg("callback: authorization complete")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		zlog.Error().Err(err).Msg("callback: failed to render result page")
	}

	if h.onResult != nil {
		h.onResult(err)
	}
}

func (h *Handler) message(code, fallback string) string {
	if h.messages != nil {
		if msg := h.messages.GetMessage(code); msg != "" {
			return msg
		}
	}
	if fallback == "" {
		return "You can close this window."
	}
	return fallback
}
