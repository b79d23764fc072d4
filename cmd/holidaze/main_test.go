package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holidaze/internal/app/gateway/gatewaytest"
	"holidaze/internal/app/user"
	"holidaze/internal/app/venue"
	"holidaze/internal/pkg/errs"
)

func writeConfig(t *testing.T, api *gatewaytest.Server) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "holidaze.yaml")
	content := fmt.Sprintf(`environment: test
api:
  base_url: %s
  resource_prefix: /holidaze
  key: %s
store:
  driver: file
  path: %s
`, api.URL, gatewaytest.APIKey, filepath.Join(dir, "store.json"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsShareTheStore(t *testing.T) {
	api := gatewaytest.NewServer(t)
	api.AddUser(user.Profile{Name: "alice", Email: "alice@stud.noroff.no", Bio: `Hi [FAVORITES]["v1"][/FAVORITES]`}, "correct-horse")
	id := api.AddVenue(venue.Venue{Name: "Seaside Cabin", MaxGuests: 2, Price: 120})
	config := writeConfig(t, api)

	out, err := execute(t, "", "--config", config, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in\n", out)

	_, err = execute(t, "wrong\n", "--config", config, "login", "--email", "alice@stud.noroff.no")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password.", message(err))

	out, err = execute(t, "correct-horse\n", "--config", config, "login", "--email", "alice@stud.noroff.no")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as alice (customer)\n", out)

	out, err = execute(t, "", "--config", config, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "alice <alice@stud.noroff.no> (customer)\n", out)

	_, err = execute(t, "", "--config", config, "fav", "add", id)
	require.NoError(t, err)

	out, err = execute(t, "", "--config", config, "fav", "list")
	require.NoError(t, err)
	assert.Equal(t, "v1\n"+id+"\n", out)

	out, err = execute(t, "", "--config", config, "venues", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Seaside Cabin")
	assert.Contains(t, out, "*", "favorites are starred")

	out, err = execute(t, "", "--config", config, "book", id, "--from", "2026-11-01", "--to", "2026-11-04", "--guests", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "3 nights")

	_, err = execute(t, "", "--config", config, "venues", "create", "--name", "Barn", "--description", "Quiet", "--price", "40")
	require.Error(t, err)
	assert.Equal(t, errs.ErrNotVenueManager, errs.CodeOf(err))

	_, err = execute(t, "", "--config", config, "logout")
	require.NoError(t, err)

	out, err = execute(t, "", "--config", config, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in\n", out)
}

func TestPasswordFrom(t *testing.T) {
	t.Setenv("HOLIDAZE_PASSWORD", "")

	pw, err := passwordFrom(strings.NewReader("ignored\n"), "flag-value")
	require.NoError(t, err)
	assert.Equal(t, "flag-value", pw)

	pw, err = passwordFrom(strings.NewReader("from-stdin\r\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", pw)

	_, err = passwordFrom(strings.NewReader(""), "")
	assert.Error(t, err)

	t.Setenv("HOLIDAZE_PASSWORD", "from-env")
	pw, err = passwordFrom(strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "unknown flag: --nope", message(fmt.Errorf("unknown flag: --nope")))
	assert.Equal(t, "Venue not found.", message(errs.NewError(errs.ErrVenueNotFound)))
}
