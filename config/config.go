package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/room4-2/tutorvoice/bootstrap"
)

const (
	TransportWebSocket = "websocket"
	TransportSDK       = "sdk"
)

var (
	ErrInvalidTransport = errors.New("invalid TRANSPORT: must be 'websocket' or 'sdk'")
	ErrMissingAPIKey    = errors.New("GEMINI_API_KEY environment variable is required")
)

// Config holds all client configuration
type Config struct {
	GeminiAPIKey      string
	Transport         string // "websocket" or "sdk"
	LiveAPIURL        string
	BootstrapURL      string
	Model             string
	Voice             string
	TutorLanguage     string
	TutorSubject      string
	SystemInstruction string
	Transcription     bool

	CaptureFrameSize     int
	PlaybackSampleRate   int
	TranscriptClearDelay time.Duration
	MeterInterval        time.Duration
	MeterCeiling         float64

	Port           int
	AllowedOrigins []string
	RedisURL       string
	RedisPassword  string
	SessionTimeout time.Duration
	MaxBufferSize  int // Maximum assistant audio bytes recorded per turn
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Transport:            TransportWebSocket,
		LiveAPIURL:           bootstrap.DefaultLiveURL,
		Model:                "models/gemini-2.5-flash-native-audio-preview-12-2025",
		Voice:                "Zephyr", // Available voices: Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr
		TutorLanguage:        "English",
		TutorSubject:         "general studies",
		Transcription:        true,
		CaptureFrameSize:     2048,
		PlaybackSampleRate:   24000,
		TranscriptClearDelay: 1500 * time.Millisecond,
		MeterInterval:        16 * time.Millisecond,
		MeterCeiling:         0.02,
		Port:                 8080,
		AllowedOrigins:       []string{"*"},
		RedisURL:             "localhost:6379",
		RedisPassword:        "",
		SessionTimeout:       30 * time.Minute,
		MaxBufferSize:        5 * 1024 * 1024, // 5MB default
	}

	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	// Optional: TRANSPORT ("websocket" or "sdk")
	if transport := os.Getenv("TRANSPORT"); transport != "" {
		switch transport {
		case TransportWebSocket, TransportSDK:
			config.Transport = transport
		default:
			return nil, ErrInvalidTransport
		}
	}

	if v := os.Getenv("LIVE_API_URL"); v != "" {
		config.LiveAPIURL = v
	}
	if v := os.Getenv("BOOTSTRAP_URL"); v != "" {
		config.BootstrapURL = v
	}

	// Required: GEMINI_API_KEY, unless a bootstrap endpoint hands out URLs
	if config.GeminiAPIKey == "" && (config.Transport == TransportSDK || config.BootstrapURL == "") {
		return nil, ErrMissingAPIKey
	}

	if v := os.Getenv("MODEL"); v != "" {
		config.Model = v
	}
	if v := os.Getenv("VOICE"); v != "" {
		config.Voice = v
	}
	if v := os.Getenv("TUTOR_LANGUAGE"); v != "" {
		config.TutorLanguage = v
	}
	if v := os.Getenv("TUTOR_SUBJECT"); v != "" {
		config.TutorSubject = v
	}
	if v := os.Getenv("SYSTEM_INSTRUCTION"); v != "" {
		config.SystemInstruction = v
	}

	// Optional: INPUT_TRANSCRIPTION (true/false)
	if v := os.Getenv("INPUT_TRANSCRIPTION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid INPUT_TRANSCRIPTION: %w", err)
		}
		config.Transcription = b
	}

	var err error
	if config.CaptureFrameSize, err = positiveInt("CAPTURE_FRAME_SIZE", config.CaptureFrameSize); err != nil {
		return nil, err
	}
	if config.PlaybackSampleRate, err = positiveInt("PLAYBACK_SAMPLE_RATE", config.PlaybackSampleRate); err != nil {
		return nil, err
	}

	// Optional: TRANSCRIPT_CLEAR_DELAY (in milliseconds)
	if ms, err := positiveInt("TRANSCRIPT_CLEAR_DELAY", 0); err != nil {
		return nil, err
	} else if ms > 0 {
		config.TranscriptClearDelay = time.Duration(ms) * time.Millisecond
	}

	// Optional: METER_INTERVAL (in milliseconds)
	if ms, err := positiveInt("METER_INTERVAL", 0); err != nil {
		return nil, err
	} else if ms > 0 {
		config.MeterInterval = time.Duration(ms) * time.Millisecond
	}

	// Optional: METER_CEILING
	if v := os.Getenv("METER_CEILING"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid METER_CEILING: %w", err)
		}
		if f <= 0 {
			return nil, fmt.Errorf("invalid METER_CEILING: must be positive")
		}
		config.MeterCeiling = f
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: MAX_BUFFER_SIZE (in bytes)
	if bufferSize := os.Getenv("MAX_BUFFER_SIZE"); bufferSize != "" {
		b, err := strconv.Atoi(bufferSize)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_BUFFER_SIZE: %w", err)
		}
		config.MaxBufferSize = b
	}

	return config, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}
