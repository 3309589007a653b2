package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSearchAddress(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantCount int
	}{
		{
			name:   "merges primary and alternate results",
			status: http.StatusOK,
			body: `{
				"searchResults": [
					{"id": "a1", "title": "Storgata 1", "subTitle": "Oslo"}
				],
				"alternateSearchResults": [
					{"id": "a2", "title": "Storgata 1B", "subTitle": "Oslo"}
				]
			}`,
			wantCount: 2,
		},
		{
			name:    "empty result set",
			status:  http.StatusOK,
			body:    `{"searchResults": [], "alternateSearchResults": []}`,
			wantErr: ErrAddressNotFound,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `oops`,
			wantErr: ErrAPI,
		},
		{
			name:    "malformed JSON",
			status:  http.StatusOK,
			body:    `{"searchResults": [`,
			wantErr: ErrAPI,
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    ``,
			wantErr: ErrAddressNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, testLogger())
			results, err := client.SearchAddress(context.Background(), "Storgata 1")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, results, tt.wantCount)
			assert.Equal(t, "a1", results[0].ID)
			assert.Equal(t, "Oslo", results[0].Municipality)
		})
	}
}

func TestSearchAddressEscapesQuery(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"searchResults": [{"id": "a1", "title": "t", "subTitle": "m"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.SearchAddress(context.Background(), "Storgata 1, Oslo")
	require.NoError(t, err)
	assert.Equal(t, "/address/Storgata%201%2C%20Oslo", gotPath)
}

func TestGetSchedule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/address/addr-1/details", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"disposals": [
				{"date": "2025-06-15T00:00:00Z", "fraction": "Restavfall", "description": "Restavfall", "symbolId": 1},
				{"date": "2025-06-01T00:00:00Z", "fraction": "Restavfall", "description": "Restavfall", "symbolId": 1},
				{"date": "2025-06-03T00:00:00Z", "fraction": "Papir", "description": "Papir og papp", "symbolId": 2},
				{"date": "not-a-date", "fraction": "Matavfall", "description": "broken", "symbolId": 3}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	snap, err := client.GetSchedule(context.Background(), "addr-1")
	require.NoError(t, err)

	assert.Equal(t, "addr-1", snap.AddressID)
	assert.False(t, snap.FetchedAt.IsZero())

	// The broken Matavfall entry is skipped, not fatal.
	require.Len(t, snap.Fractions, 2)

	rest := snap.Fractions["Restavfall"]
	require.Len(t, rest.Dates, 2)
	assert.Equal(t, "2025-06-01", rest.Dates[0].String())
	assert.Equal(t, "2025-06-15", rest.Dates[1].String())
}

func TestGetScheduleEmptyIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"disposals": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	snap, err := client.GetSchedule(context.Background(), "addr-1")
	require.NoError(t, err)
	assert.Empty(t, snap.Fractions)
}

func TestConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, testLogger())

	_, err := client.SearchAddress(context.Background(), "Storgata 1")
	assert.ErrorIs(t, err, ErrConnection)

	_, err = client.GetSchedule(context.Background(), "addr-1")
	assert.ErrorIs(t, err, ErrConnection)
}
