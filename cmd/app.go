package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/room4-2/tutorvoice/audio"
	"github.com/room4-2/tutorvoice/bootstrap"
	"github.com/room4-2/tutorvoice/config"
	"github.com/room4-2/tutorvoice/device"
	"github.com/room4-2/tutorvoice/gemini"
	"github.com/room4-2/tutorvoice/messages"
	"github.com/room4-2/tutorvoice/meter"
	"github.com/room4-2/tutorvoice/server"
	"github.com/room4-2/tutorvoice/session"
	"github.com/room4-2/tutorvoice/store"
)

const shutdownTimeout = 10 * time.Second

func openStore(cfg *config.Config) store.Store {
	rs, err := store.NewRedisStore(cfg.RedisURL, cfg.RedisPassword, cfg.SessionTimeout)
	if err != nil {
		log.Printf("⚠️ Redis unavailable at %s, turns will not be kept: %v", cfg.RedisURL, err)
		return store.Nop{}
	}
	log.Printf("✅ Connected to Redis at %s", cfg.RedisURL)
	return rs
}

func bootstrapProvider(cfg *config.Config) bootstrap.Provider {
	if cfg.BootstrapURL != "" {
		return bootstrap.Endpoint{Address: cfg.BootstrapURL}
	}
	return bootstrap.Direct{Base: cfg.LiveAPIURL, APIKey: cfg.GeminiAPIKey}
}

func channelFactory(cfg *config.Config) func() gemini.Channel {
	if cfg.Transport == config.TransportSDK {
		return func() gemini.Channel { return gemini.NewSDKChannel(cfg.GeminiAPIKey) }
	}
	return func() gemini.Channel { return gemini.NewWSChannel() }
}

// serve runs a session client behind the status server until ctx is done.
// With autoStart the first session starts immediately, otherwise it waits
// for a start control from the status page.
func serve(ctx context.Context, cfg *config.Config, newCapture func() (session.Capture, error), autoStart bool) error {
	speaker, err := device.OpenSpeaker(cfg.PlaybackSampleRate)
	if err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	defer speaker.Close()

	hub := server.NewHub()
	client := session.NewClient(session.ClientConfig{
		Options: session.Options{
			Setup: messages.SetupOptions{
				Model:         cfg.Model,
				Voice:         cfg.Voice,
				Instruction:   session.TutorInstruction(cfg.TutorSubject, cfg.TutorLanguage, cfg.SystemInstruction),
				Transcription: cfg.Transcription,
			},
			Bootstrap:            bootstrapProvider(cfg),
			Output:               speaker,
			Store:                openStore(cfg),
			Meter:                meter.New(meter.DefaultSize, cfg.MeterCeiling, cfg.MeterInterval),
			CaptureRate:          audio.CaptureSampleRate,
			PlaybackRate:         cfg.PlaybackSampleRate,
			TranscriptClearDelay: cfg.TranscriptClearDelay,
			MaxTurnAudio:         cfg.MaxBufferSize,
			OnUpdate:             hub.PublishSnapshot,
			OnLevel:              hub.PublishLevel,
		},
		NewCapture:  newCapture,
		NewChannel:  channelFactory(cfg),
		IdleTimeout: cfg.SessionTimeout,
	})

	srv := server.New(cfg, client, hub)
	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	if autoStart {
		go func() {
			if _, err := client.Start(ctx); err != nil {
				log.Printf("❌ Session failed to start: %v", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("\nReceived shutdown signal...")
	case err = <-serverErr:
	}

	if serr := client.Shutdown(); serr != nil {
		log.Printf("Session shutdown error: %v", serr)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Printf("Server shutdown error: %v", serr)
	}
	return err
}
