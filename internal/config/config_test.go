package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoadSave(t *testing.T) {
	t.Run("round-trip config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		cfg := &Config{
			DefaultUserName: "alice",
			LogLevel:        "info",
			Servers: map[string]*ServerConfig{
				"freenode": {
					Host:            "irc.freenode.net",
					Port:            6697,
					Security:        SecurityTLS,
					DefaultChannels: []string{"#go-nuts", "#test"},
				},
			},
		}

		err := cfg.Save(path)
		require.NoError(t, err)

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg.DefaultUserName, loaded.DefaultUserName)
		assert.Equal(t, cfg.Servers["freenode"].Host, loaded.Servers["freenode"].Host)
		assert.Equal(t, cfg.Servers["freenode"].Port, loaded.Servers["freenode"].Port)
		assert.Equal(t, cfg.Servers["freenode"].DefaultChannels, loaded.Servers["freenode"].DefaultChannels)
	})

	t.Run("saved file has 0600 permissions", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		cfg := &Config{DefaultUserName: "bob", Servers: map[string]*ServerConfig{}}
		err := cfg.Save(path)
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("load nonexistent returns error", func(t *testing.T) {
		_, err := Load("/tmp/nonexistent-hircd-test/config.toml")
		assert.Error(t, err)
	})

	t.Run("load rejects insecure permissions", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		os.WriteFile(path, []byte("default_user_name = \"x\"\n"), 0644)

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure permissions")
	})

	t.Run("identify command preserved", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		cfg := &Config{
			DefaultUserName: "bob",
			Servers: map[string]*ServerConfig{
				"oftc": {Host: "irc.oftc.net", Port: 6667, IdentifyCommand: "PRIVMSG NickServ :IDENTIFY %s"},
			},
		}
		err := cfg.Save(path)
		require.NoError(t, err)

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "PRIVMSG NickServ :IDENTIFY %s", loaded.Servers["oftc"].IdentifyCommand)
	})
}

func TestResolvePassword(t *testing.T) {
	t.Run("resolves $VAR reference", func(t *testing.T) {
		t.Setenv("MY_SECRET", "s3cret")
		assert.Equal(t, "s3cret", ResolvePassword("$MY_SECRET"))
	})

	t.Run("literal password unchanged", func(t *testing.T) {
		assert.Equal(t, "plain-value", ResolvePassword("plain-value"))
	})

	t.Run("unset var resolves to empty string", func(t *testing.T) {
		assert.Equal(t, "", ResolvePassword("$UNSET_VAR_HIRCD_TEST"))
	})

	t.Run("empty password returns empty", func(t *testing.T) {
		assert.Equal(t, "", ResolvePassword(""))
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "guest", cfg.DefaultUserName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotNil(t, cfg.Servers)
}
