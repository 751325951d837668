package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicNeedsRendering(t *testing.T) {
	t.Parallel()

	longArticle := "<html><body><p>" + strings.Repeat("plain prose content ", 200) + "</p></body></html>"

	cases := []struct {
		name string
		body string
		want bool
	}{
		{"empty body", "", true},
		{"react root marker", `<html><body><div id="root"></div></body></html>`, true},
		{"next marker", `<html><body><div id="__next"></div></body></html>`, true},
		{"short script heavy", `<html><body><script>` + strings.Repeat("x", 600) + `</script><p>hi</p></body></html>`, true},
		{"long static article", longArticle, false},
		{"short plain page", `<html><body><p>hello world</p></body></html>`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := NewHeuristic(0)
			require.Equal(t, tc.want, h.NeedsRendering([]byte(tc.body)))
		})
	}
}

func TestScriptDensity(t *testing.T) {
	t.Parallel()

	require.False(t, scriptDensityHigh([]byte("<html><body><p>no scripts at all</p></body></html>")))
	require.True(t, scriptDensityHigh([]byte("<script>"+strings.Repeat("a", 100)+"</script><p>x</p>")))
	// Unclosed script counts through the end of the document.
	require.True(t, scriptDensityHigh([]byte("<p>intro</p><script>var x = 1;")))
}
