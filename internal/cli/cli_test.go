package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
)

func testConnector(t *testing.T) (Connector, *repository.Registry) {
	t.Helper()
	reg := repotest.NewRegistry(t)
	cfg := &config.Config{
		Presence: config.PresenceConfig{StaleAfter: 10 * time.Minute},
		Sweep:    config.SweepConfig{Interval: time.Minute},
	}
	return func(context.Context) (*Session, error) {
		return &Session{Config: cfg, DB: reg.GetDB(), Registry: reg, Log: zap.NewNop(), Close: func() {}}, nil
	}, reg
}

func run(t *testing.T, connect Connector, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommandWith(&RootOptions{Connect: connect})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "livemeshctl", cmd.Use)
	for _, name := range []string{"migrate", "sweep", "rooms", "profiles"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestInvalidFormat(t *testing.T) {
	connect, _ := testConnector(t)
	_, err := run(t, connect, "--format", "xml", "migrate")
	assert.ErrorContains(t, err, "invalid format")
}

func TestMigrate(t *testing.T) {
	connect, _ := testConnector(t)
	out, err := run(t, connect, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Migrated")
}

func TestRoomsCreateAndList(t *testing.T) {
	connect, reg := testConnector(t)

	out, err := run(t, connect, "rooms", "create", "--event", "e1", "--name", "AI lounge", "--capacity", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "AI lounge")

	_, err = run(t, connect, "rooms", "create", "--event", "e1", "--name", "Open floor")
	require.NoError(t, err)

	_, err = run(t, connect, "rooms", "create", "--event", "e1", "--name", "Broken", "--capacity", "0")
	assert.Error(t, err)

	_, err = run(t, connect, "rooms", "create", "--name", "No event")
	assert.Error(t, err)

	out, err = run(t, connect, "--format", "json", "rooms", "list", "--event", "e1")
	require.NoError(t, err)
	var resp struct {
		Status string        `json:"status"`
		Data   []models.Room `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "AI lounge", resp.Data[0].Name)
	require.NotNil(t, resp.Data[0].Capacity)
	assert.Equal(t, 12, *resp.Data[0].Capacity)
	assert.Nil(t, resp.Data[1].Capacity)

	out, err = run(t, connect, "rooms", "list", "--event", "e1")
	require.NoError(t, err)
	assert.Contains(t, out, "unlimited")

	rooms, err := reg.Rooms.ListByEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

func TestProfilesImport(t *testing.T) {
	connect, reg := testConnector(t)
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  - userId: u1
    displayName: Ada
    industry: Fintech
    goals: [hiring, fundraising]
    interests: [payments]
    latitude: 52.52
    longitude: 13.405
  - userId: u2
    displayName: Grace
    industry: Healthcare
`), 0o600))

	out, err := run(t, connect, "profiles", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 profiles")

	p, err := reg.Profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Fintech", p.Industry)
	assert.Equal(t, []string{"hiring", "fundraising"}, []string(p.Goals))
	assert.True(t, p.HasCoordinates())

	// Re-importing updates in place.
	_, err = run(t, connect, "profiles", "import", path)
	require.NoError(t, err)
	all, err := reg.Profiles.GetMany(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProfilesImportRejectsBadFile(t *testing.T) {
	connect, _ := testConnector(t)
	dir := t.TempDir()

	missingID := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missingID, []byte("profiles:\n  - displayName: Nobody\n"), 0o600))
	_, err := run(t, connect, "profiles", "import", missingID)
	assert.ErrorContains(t, err, "has no userId")

	halfCoords := filepath.Join(dir, "coords.yaml")
	require.NoError(t, os.WriteFile(halfCoords, []byte("profiles:\n  - userId: u1\n    latitude: 1.5\n"), 0o600))
	_, err = run(t, connect, "profiles", "import", halfCoords)
	assert.ErrorContains(t, err, "latitude and longitude")

	_, err = run(t, connect, "profiles", "import", filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	connect, reg := testConnector(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, reg.Connections.Create(ctx, &models.ConnectionRequest{
		EventID: "e1", FromUserID: "a", ToUserID: "b", Status: models.ConnectionPending,
		CreatedAt: past.Add(-time.Hour), ExpiresAt: past,
	}))
	_, err := reg.Presence.Upsert(ctx, "quiet", "e1", models.PresenceAvailable, nil, past)
	require.NoError(t, err)

	out, err := run(t, connect, "--format", "json", "sweep")
	require.NoError(t, err)

	var resp struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data["connections"])
	assert.Equal(t, 1, resp.Data["presence"])
	assert.Equal(t, 0, resp.Data["suggestions"])
}
