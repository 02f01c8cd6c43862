package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/room4-2/tutorvoice/config"
)

// ExecuteContext runs the CLI. Cancelling ctx stops the running session.
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// overrides are command-line values that win over the environment.
type overrides struct {
	model     string
	voice     string
	subject   string
	language  string
	transport string
	port      int
}

func (o *overrides) apply(cfg *config.Config) {
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.voice != "" {
		cfg.Voice = o.voice
	}
	if o.subject != "" {
		cfg.TutorSubject = o.subject
	}
	if o.language != "" {
		cfg.TutorLanguage = o.language
	}
	if o.transport != "" {
		cfg.Transport = o.transport
	}
	if o.port > 0 {
		cfg.Port = o.port
	}
}

func newRootCmd() *cobra.Command {
	var o overrides

	rootCmd := &cobra.Command{
		Use:          "tutorvoice",
		Short:        "Voice tutor on the Gemini Live API",
		Long:         "tutorvoice streams your microphone to a Gemini Live model acting as a tutor, plays the spoken answer and serves a local status page.",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.model, "model", "", "live model name (overrides MODEL)")
	flags.StringVar(&o.voice, "voice", "", "prebuilt voice (overrides VOICE)")
	flags.StringVar(&o.subject, "subject", "", "tutoring subject (overrides TUTOR_SUBJECT)")
	flags.StringVar(&o.language, "language", "", "tutoring language (overrides TUTOR_LANGUAGE)")
	flags.StringVar(&o.transport, "transport", "", "websocket or sdk (overrides TRANSPORT)")
	flags.IntVar(&o.port, "port", 0, "status server port (overrides PORT)")

	rootCmd.AddCommand(
		newRunCmd(&o),
		newReplayCmd(&o),
	)
	return rootCmd
}

func loadConfig(o *overrides) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	switch cfg.Transport {
	case config.TransportWebSocket:
	case config.TransportSDK:
		if cfg.GeminiAPIKey == "" {
			return nil, config.ErrMissingAPIKey
		}
	default:
		return nil, config.ErrInvalidTransport
	}
	return cfg, nil
}
