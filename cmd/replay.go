package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/room4-2/tutorvoice/audio"
	"github.com/room4-2/tutorvoice/session"
)

func newReplayCmd(o *overrides) *cobra.Command {
	var (
		file  string
		speed float64
	)

	cmd := &cobra.Command{
		Use:   "replay --file question.wav",
		Short: "Send a recorded question instead of the microphone",
		Long:  "replay streams a 16kHz mono PCM16 file (raw or WAV) as if it were spoken, then keeps the session open so the answer plays through the speaker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if speed <= 0 {
				return fmt.Errorf("speed must be positive")
			}
			cfg, err := loadConfig(o)
			if err != nil {
				return err
			}
			newCapture := func() (session.Capture, error) {
				fc, err := audio.NewFileCapture(file, audio.CaptureSampleRate, cfg.CaptureFrameSize)
				if err != nil {
					return nil, err
				}
				period := time.Duration(cfg.CaptureFrameSize) * time.Second / audio.CaptureSampleRate
				fc.SetFramePeriod(time.Duration(float64(period) / speed))
				return fc, nil
			}
			return serve(cmd.Context(), cfg, newCapture, true)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "PCM16 or WAV file to stream")
	cmd.Flags().Float64Var(&speed, "speed", 1, "playback speed of the file relative to real time")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
