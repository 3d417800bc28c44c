package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/feeltune/internal/app/auth"
)

type fakeFlow struct {
	err   error
	query url.Values
}

func (f *fakeFlow) HandleCallback(_ context.Context, query url.Values) error {
	f.query = query
	return f.err
}

type staticMessages map[string]string

func (m staticMessages) GetMessage(code string) string { return m[code] }

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		messages   Messages
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			messages:   staticMessages{"success": "All set"},
			wantStatus: http.StatusOK,
			wantBody:   "All set",
		},
		{
			name:       "success without configured message",
			wantStatus: http.StatusOK,
			wantBody:   "You can close this window.",
		},
		{
			name:       "denied",
			err:        errors.Wrap(auth.ErrAuthorizationDenied, "access_denied"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "was denied",
		},
		{
			name:       "state mismatch",
			err:        auth.ErrStateMismatch,
			wantStatus: http.StatusBadRequest,
			wantBody:   "did not match",
		},
		{
			name:       "configured parameters message",
			err:        auth.ErrMissingParameters,
			messages:   staticMessages{"parameters": "Try again <now>"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Try again &lt;now&gt;",
		},
		{
			name:       "unexpected",
			err:        errors.Mark(errors.New("502"), auth.ErrExchangeFailed),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "unexpected error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakeFlow{err: tt.err}
			var got []error
			h := New(flow, tt.messages, WithResultHook(func(err error) { got = append(got, err) }))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path+"?code=c&state=s", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Equal(t, "c", flow.query.Get("code"))
			require.Len(t, got, 1)
			assert.Equal(t, tt.err, got[0])
		})
	}
}

func TestHandler_RejectsNonGet(t *testing.T) {
	flow := &fakeFlow{}
	h := New(flow, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, Path, nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Nil(t, flow.query)
}
