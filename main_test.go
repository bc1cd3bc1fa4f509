package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake-go/internal/config"
)

func TestVAPIDKeysCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"vapid-keys"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	lines := strings.Split(out.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "VAPID_PUBLIC_KEY="))
	assert.Greater(t, len(lines[0]), len("VAPID_PUBLIC_KEY="))
	assert.True(t, strings.HasPrefix(lines[1], "VAPID_PRIVATE_KEY="))
}

func TestCommandsRequireDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, name := range []string{"serve", "check-reminders", "migrate"} {
		t.Run(name, func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetArgs([]string{name})
			err := cmd.ExecuteContext(context.Background())
			assert.ErrorIs(t, err, config.ErrDatabaseURLMissing)
		})
	}
}

func TestCreateUserArgs(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"create-user", "only-name"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
