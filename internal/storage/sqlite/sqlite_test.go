package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "voice-agent.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettingsRoundTrip(t *testing.T) {
	store, err := NewSettingsStorage(openTestDB(t), logger.NewNop())
	require.NoError(t, err)

	_, found, err := store.AgentConfig()
	require.NoError(t, err)
	assert.False(t, found)

	updated, err := store.UpdatedAt()
	require.NoError(t, err)
	assert.True(t, updated.IsZero())

	want := call.AgentConfig{AgentID: "agent_1", BackendBaseURL: "https://backend.example"}
	require.NoError(t, store.SaveAgentConfig(want))

	got, found, err := store.AgentConfig()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	updated, err = store.UpdatedAt()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), updated, time.Minute)

	// Overwrite, including clearing a value
	want = call.AgentConfig{AgentID: "agent_2"}
	require.NoError(t, store.SaveAgentConfig(want))
	got, _, err = store.AgentConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadOrSeed(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSettingsStorage(db, logger.NewNop())
	require.NoError(t, err)

	defaults := call.AgentConfig{AgentID: "from_config", BackendBaseURL: "https://config.example"}
	got, err := store.LoadOrSeed(defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	saved := call.AgentConfig{AgentID: "from_admin", BackendBaseURL: "https://admin.example"}
	require.NoError(t, store.SaveAgentConfig(saved))

	// Stored settings win over config defaults from now on
	reopened, err := NewSettingsStorage(db, logger.NewNop())
	require.NoError(t, err)
	got, err = reopened.LoadOrSeed(defaults)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}
