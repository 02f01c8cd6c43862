package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/tutorvoice/bootstrap"
	"github.com/room4-2/tutorvoice/config"
	"github.com/room4-2/tutorvoice/gemini"
)

func TestOverridesApply(t *testing.T) {
	cfg := &config.Config{Model: "m", Voice: "Zephyr", TutorSubject: "math", Port: 8080}
	o := overrides{voice: "Puck", subject: "history", port: 9000}
	o.apply(cfg)

	assert.Equal(t, "m", cfg.Model)
	assert.Equal(t, "Puck", cfg.Voice)
	assert.Equal(t, "history", cfg.TutorSubject)
	assert.Equal(t, 9000, cfg.Port)
}

func TestLoadConfig_TransportFlag(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("TRANSPORT", "")
	t.Setenv("BOOTSTRAP_URL", "http://localhost:9000/token")

	cfg, err := loadConfig(&overrides{})
	require.NoError(t, err)
	assert.Equal(t, config.TransportWebSocket, cfg.Transport)

	_, err = loadConfig(&overrides{transport: config.TransportSDK})
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)

	_, err = loadConfig(&overrides{transport: "smoke-signals"})
	assert.ErrorIs(t, err, config.ErrInvalidTransport)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "replay")

	replay, _, err := root.Find([]string{"replay"})
	require.NoError(t, err)
	assert.NotNil(t, replay.Flags().Lookup("file"))
	assert.NotNil(t, root.PersistentFlags().Lookup("voice"))
}

func TestBootstrapProvider(t *testing.T) {
	cfg := &config.Config{LiveAPIURL: "wss://live.test/ws", GeminiAPIKey: "k"}
	assert.Equal(t, bootstrap.Direct{Base: "wss://live.test/ws", APIKey: "k"}, bootstrapProvider(cfg))

	cfg.BootstrapURL = "http://localhost:9000/token"
	assert.Equal(t, bootstrap.Endpoint{Address: "http://localhost:9000/token"}, bootstrapProvider(cfg))
}

func TestChannelFactory(t *testing.T) {
	cfg := &config.Config{Transport: config.TransportWebSocket}
	assert.IsType(t, &gemini.WSChannel{}, channelFactory(cfg)())

	cfg.Transport = config.TransportSDK
	assert.IsType(t, &gemini.SDKChannel{}, channelFactory(cfg)())
}
