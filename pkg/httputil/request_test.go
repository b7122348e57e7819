package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONOrError(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantName string
	}{
		{name: "valid body", body: `{"platform": "claude"}`, wantOK: true, wantName: "claude"},
		{name: "malformed body", body: `{platform}`, wantOK: false},
		{name: "empty body", body: ``, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/bindings", bytes.NewBufferString(tt.body))

			var dest map[string]string
			ok := ParseJSONOrError(w, req, &dest)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantName, dest["platform"])
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int64
		wantErr bool
	}{
		{name: "valid id", value: "7", want: 7},
		{name: "max int64", value: "9223372036854775807", want: 9223372036854775807},
		{name: "non-numeric", value: "abc", wantErr: true},
		{name: "missing", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/groups/"+tt.value, nil)
			req = mux.SetURLVars(req, map[string]string{"groupID": tt.value})

			got, err := ParsePathInt64(req, "groupID")

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathInt64OrErrorWritesBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/groups/abc", nil)
	req = mux.SetURLVars(req, map[string]string{"groupID": "abc"})

	val, ok := ParsePathInt64OrError(w, req, "groupID")

	assert.False(t, ok)
	assert.Zero(t, val)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "groupID")
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/accounts/claude", nil)
	req = mux.SetURLVars(req, map[string]string{"platform": "claude"})

	val, err := ParsePathString(req, "platform")

	require.NoError(t, err)
	assert.Equal(t, "claude", val)
}

func TestParsePathStringOrErrorMissing(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)

	_, ok := ParsePathStringOrError(w, req, "platform")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt64(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/quota?enterprise_id=3", nil)

	val, err := ParseQueryInt64(req, "enterprise_id", 0)

	require.NoError(t, err)
	assert.Equal(t, int64(3), val)
}

func TestParseQueryInt64Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/quota", nil)

	val, err := ParseQueryInt64(req, "enterprise_id", 42)

	require.NoError(t, err)
	assert.Equal(t, int64(42), val)
}

func TestParseQueryInt64Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/quota?enterprise_id=three", nil)

	_, err := ParseQueryInt64(req, "enterprise_id", 0)

	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/permissions?scope_level=group", nil)

	assert.Equal(t, "group", ParseQueryString(req, "scope_level", "global"))
	assert.Equal(t, "global", ParseQueryString(req, "missing", "global"))
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()

	ok := RequireNonEmpty(w, "", "platform")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "platform is required")

	w = httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(w, "claude", "platform"))
}
