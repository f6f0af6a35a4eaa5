package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("artifacts", "", "")
	return cmd
}

func TestLoadConfigAppliesEnvWithoutFile(t *testing.T) {
	t.Setenv("FLBENCH_API_SERVER", "https://override.example:6443")

	cfg, err := loadConfig(configCommand())
	require.NoError(t, err)
	assert.Equal(t, "https://override.example:6443", cfg.Cluster.APIServer)
}

func TestLoadConfigArtifactsFlagWins(t *testing.T) {
	t.Setenv("FLBENCH_ARTIFACTS", "/env/artifacts")

	cmd := configCommand()
	require.NoError(t, cmd.Flags().Set("artifacts", "/flag/artifacts"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/flag/artifacts", cfg.Artifacts)
}
