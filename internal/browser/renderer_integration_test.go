//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessmaster/internal/browser"
)

func TestRenderHTML_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><div id="app"></div>
<script>document.getElementById("app").innerHTML = "<p>The knight moves in an L shape.</p>";</script>
</body></html>`)
	}))
	defer ts.Close()

	r := browser.New(browser.Config{Headless: true, NavigationTimeout: 10 * time.Second})
	defer func() { _ = r.Shutdown() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	html, err := r.RenderHTML(ctx, ts.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "The knight moves in an L shape.")
	assert.True(t, r.IsConnected())
	assert.Equal(t, 1, r.Rendered())
}
