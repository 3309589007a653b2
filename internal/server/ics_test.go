package server

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mskaar/renovasjon/internal/models"
)

func TestWriteICSFeed(t *testing.T) {
	events := []models.Event{
		{Date: models.NewDate(2025, time.June, 1), Fraction: "Restavfall", Summary: "Restavfall"},
		{Date: models.NewDate(2025, time.June, 4), Fraction: "Papir", Summary: "Papir, papp; kartong"},
	}
	stamp := time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC)

	var buf strings.Builder
	writeICSFeed(&buf, "Storgata 1", events, stamp)
	feed := buf.String()

	// Every content line ends in CRLF.
	require.True(t, strings.HasSuffix(feed, "END:VCALENDAR\r\n"))
	for _, line := range strings.Split(strings.TrimSuffix(feed, "\r\n"), "\r\n") {
		assert.False(t, strings.ContainsAny(line, "\r\n"), "bare line break in %q", line)
	}

	assert.Contains(t, feed, "BEGIN:VCALENDAR\r\n")
	assert.Contains(t, feed, "X-WR-CALNAME:Avfallskalender Storgata 1\r\n")
	assert.Contains(t, feed, "DTSTAMP:20250530T120000Z\r\n")
	assert.Contains(t, feed, "DTSTART;VALUE=DATE:20250601\r\n")
	assert.Contains(t, feed, "DTEND;VALUE=DATE:20250602\r\n")

	// Commas and semicolons in summaries are escaped per RFC 5545.
	assert.Contains(t, feed, `SUMMARY:Papir\, papp\; kartong`+"\r\n")
	assert.Contains(t, feed, `DESCRIPTION:Henting av Papir\, papp\; kartong`+"\r\n")
	assert.NotContains(t, feed, "SUMMARY:Papir, papp; kartong")

	assert.Equal(t, 2, strings.Count(feed, "BEGIN:VEVENT\r\n"))
	assert.Equal(t, 2, strings.Count(feed, "END:VEVENT\r\n"))
}

func TestEscapeICSText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Restavfall", "Restavfall"},
		{"Papir, papp", `Papir\, papp`},
		{"a;b", `a\;b`},
		{`back\slash`, `back\\slash`},
		{"two\nlines", `two\nlines`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeICSText(tt.in), tt.in)
	}
}
