package interop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupScenario(t *testing.T) {
	s, err := LookupScenario(" Media ")
	require.NoError(t, err)
	assert.Equal(t, "media", s.Name)
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.Equal(t, []Capability{CapHeadlessMedia}, s.Requires)

	_, err = LookupScenario("renegotiation")
	require.ErrorIs(t, err, ErrUnknownScenario)
	assert.Contains(t, err.Error(), "datachannel")
}

func TestScenarioNames(t *testing.T) {
	assert.Equal(t, []string{"datachannel", "media", "multi-client", "server-offer"}, ScenarioNames())
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		browser  string
		scenario string
		skip     bool
	}{
		{"chrome", "media", false},
		{"safari", "media", true},
		{"firefox", "media", false},
		{"firefox", "server-offer", true},
		{"safari", "server-offer", false},
		{"safari", "datachannel", false},
		{"firefox", "multi-client", false},
	}
	for _, tt := range tests {
		t.Run(tt.browser+"/"+tt.scenario, func(t *testing.T) {
			spec, err := ResolveBrowser(tt.browser)
			require.NoError(t, err)
			s, err := LookupScenario(tt.scenario)
			require.NoError(t, err)

			reason, skip := SkipReason(spec, s)
			assert.Equal(t, tt.skip, skip)
			if skip {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestRunTarget_PageURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{
			name: "scenario query",
			base: "http://localhost:8080",
			path: "/?scenario=media",
			want: "http://localhost:8080/?browser=firefox&scenario=media",
		},
		{
			name: "trailing slash",
			base: "http://localhost:8080/",
			path: "/?scenario=media",
			want: "http://localhost:8080/?browser=firefox&scenario=media",
		},
		{
			name: "empty path",
			base: "http://127.0.0.1:9000",
			want: "http://127.0.0.1:9000/?browser=firefox",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := RunTarget{BaseURL: tt.base, Scenario: Scenario{Name: "media", Path: tt.path}}
			got, err := target.PageURL("firefox")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunTarget_String(t *testing.T) {
	assert.Equal(t, "http://localhost:8080 (media)",
		RunTarget{BaseURL: "http://localhost:8080", Scenario: Scenario{Name: "media"}}.String())
	assert.Equal(t, "http://localhost:8080", RunTarget{BaseURL: "http://localhost:8080"}.String())
}
