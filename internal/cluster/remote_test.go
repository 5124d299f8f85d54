package cluster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/demo"
	"github.com/giantswarm/version-matrix/internal/session"
)

func serveDemo(t *testing.T, release string) *httptest.Server {
	t.Helper()
	inst, err := demo.Adapter(release).Launch(context.Background(), session.LaunchOptions{NoPrompts: true})
	require.NoError(t, err)
	srv := httptest.NewServer(Handler(inst))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteAgainstDemoRelease(t *testing.T) {
	srv := serveDemo(t, "2.0.0")
	ctx := context.Background()

	closed := 0
	r, err := Dial(ctx, srv.URL+"/", srv.Client(), func() error {
		closed++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", r.Version())

	caps := r.Capabilities()
	assert.Equal(t, []string{"analyze", "normalize", "open_file", "print_report"}, caps.ActionNames())

	data, err := filepath.Abs(filepath.Join("..", "demo", "testdata", "open-field.csv"))
	require.NoError(t, err)
	n, err := caps.Actions["open_file"](ctx, session.Args{"path": data})
	require.NoError(t, err)
	assert.Equal(t, 41.0, n, "numbers arrive as JSON numbers")

	name, err := caps.State(ctx, "file.name")
	require.NoError(t, err)
	assert.Equal(t, "open-field.csv", name)

	profile, err := caps.State(ctx, "profiles.x")
	require.NoError(t, err)
	p, err := compare.ToProfile(profile)
	require.NoError(t, err)
	assert.Len(t, p.Values, 41)

	_, err = caps.State(ctx, "bogus")
	assert.ErrorContains(t, err, `unknown state "bogus"`)

	_, err = caps.Actions["open_file"](ctx, session.Args{"path": "missing.csv"})
	assert.Error(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, closed)
}

func TestHandlerErrors(t *testing.T) {
	inst := &session.App{
		VersionString: "1.0",
		Actions: map[string]session.ActionFunc{
			"crash": func(context.Context, session.Args) (any, error) { panic("segfault") },
			"fail":  func(context.Context, session.Args) (any, error) { return nil, errors.New("rejected") },
		},
	}
	srv := httptest.NewServer(Handler(inst))
	defer srv.Close()

	r, err := Dial(context.Background(), srv.URL, srv.Client(), nil)
	require.NoError(t, err)
	caps := r.Capabilities()

	_, err = caps.Actions["crash"](context.Background(), nil)
	assert.ErrorContains(t, err, "panic: segfault")

	_, err = caps.Actions["fail"](context.Background(), session.Args{"x": 1})
	assert.EqualError(t, err, "rejected")

	_, err = caps.State(context.Background(), "x")
	assert.ErrorContains(t, err, "no state")

	resp, err := srv.Client().Post(srv.URL+"/actions/unknown", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := Dial(context.Background(), srv.URL, nil, nil)
	assert.ErrorContains(t, err, "failed to read version")
}
