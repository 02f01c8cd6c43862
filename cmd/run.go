package cmd

import (
	"github.com/spf13/cobra"

	"github.com/room4-2/tutorvoice/audio"
	"github.com/room4-2/tutorvoice/device"
	"github.com/room4-2/tutorvoice/session"
)

func newRunCmd(o *overrides) *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Talk to the tutor through the default microphone and speaker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(o)
			if err != nil {
				return err
			}
			newCapture := func() (session.Capture, error) {
				return device.NewMicrophone(audio.CaptureSampleRate, cfg.CaptureFrameSize), nil
			}
			return serve(cmd.Context(), cfg, newCapture, !manual)
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "wait for a start control from the status page")
	return cmd
}
