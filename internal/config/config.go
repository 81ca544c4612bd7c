package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the client reads from the
// environment.
type Config struct {
	Backend BackendConfig
	Auth    AuthConfig
	Audio   AudioConfig
	VAD     VADConfig
}

// Load parses the full configuration from environment variables.
func Load() (*Config, error) {
	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	audio, err := loadAudioConfig()
	if err != nil {
		return nil, err
	}

	vad, err := loadVADConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Backend: backend, Auth: auth, Audio: audio, VAD: vad}, nil
}

// BackendConfig locates the companion API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Configured reports whether the API location is known.
func (c BackendConfig) Configured() bool {
	return c.BaseURL != ""
}

func loadBackendConfig() (BackendConfig, error) {
	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("COMPANION_HTTP_TIMEOUT"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return BackendConfig{}, fmt.Errorf("COMPANION_HTTP_TIMEOUT must be at least 1 second, got %d", *override)
		}
		timeoutSeconds = *override
	}

	return BackendConfig{
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("COMPANION_API_URL")), "/"),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// AuthConfig describes the Auth0 tenant the client logs in against.
type AuthConfig struct {
	Domain          string
	ClientID        string
	Audience        string
	CallbackPort    int
	CredentialsFile string
}

// Configured reports whether the login flow can run.
func (c AuthConfig) Configured() bool {
	return c.Domain != "" && c.ClientID != ""
}

func loadAuthConfig() (AuthConfig, error) {
	port := 8765
	if override, err := parseOptionalIntEnv("AUTH0_CALLBACK_PORT"); err != nil {
		return AuthConfig{}, err
	} else if override != nil {
		if *override < 1 || *override > 65535 {
			return AuthConfig{}, fmt.Errorf("invalid AUTH0_CALLBACK_PORT value %d", *override)
		}
		port = *override
	}

	credentialsFile := strings.TrimSpace(os.Getenv("COMPANION_CREDENTIALS_FILE"))
	if credentialsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return AuthConfig{}, fmt.Errorf("resolve home directory for credentials file: %w", err)
		}
		credentialsFile = filepath.Join(home, ".config", "companion", "credentials.json")
	}

	return AuthConfig{
		Domain:          strings.TrimSpace(os.Getenv("AUTH0_DOMAIN")),
		ClientID:        strings.TrimSpace(os.Getenv("AUTH0_CLIENT_ID")),
		Audience:        strings.TrimSpace(os.Getenv("AUTH0_AUDIENCE")),
		CallbackPort:    port,
		CredentialsFile: credentialsFile,
	}, nil
}

// AudioConfig describes the capture format. The backend expects mono
// 16-bit PCM, so only rate, frame size, and device are adjustable.
type AudioConfig struct {
	SampleRate int
	FrameMs    int
	Device     string
}

// FrameBytes is the size of one capture frame in bytes (mono s16le).
func (c AudioConfig) FrameBytes() int {
	return c.SampleRate * c.FrameMs / 1000 * 2
}

func loadAudioConfig() (AudioConfig, error) {
	sampleRate := 16000
	if override, err := parseOptionalIntEnv("COMPANION_SAMPLE_RATE"); err != nil {
		return AudioConfig{}, err
	} else if override != nil {
		if *override < 8000 {
			return AudioConfig{}, fmt.Errorf("COMPANION_SAMPLE_RATE too low: %d", *override)
		}
		sampleRate = *override
	}

	frameMs := 20
	if override, err := parseOptionalIntEnv("COMPANION_FRAME_MS"); err != nil {
		return AudioConfig{}, err
	} else if override != nil {
		if *override < 10 || *override > 100 {
			return AudioConfig{}, fmt.Errorf("COMPANION_FRAME_MS out of range: %d", *override)
		}
		frameMs = *override
	}

	return AudioConfig{
		SampleRate: sampleRate,
		FrameMs:    frameMs,
		Device:     strings.TrimSpace(os.Getenv("COMPANION_AUDIO_DEVICE")),
	}, nil
}

// VADConfig tunes the speech segmenter.
type VADConfig struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	SpeechFrames     int
	SilenceFrames    int
	PrerollFrames    int
	MinUtteranceSize int
}

func loadVADConfig() (VADConfig, error) {
	speechThreshold, err := parseOptionalFloatEnv("COMPANION_VAD_SPEECH_THRESHOLD")
	if err != nil {
		return VADConfig{}, err
	}
	silenceThreshold, err := parseOptionalFloatEnv("COMPANION_VAD_SILENCE_THRESHOLD")
	if err != nil {
		return VADConfig{}, err
	}
	speechFrames, err := parseOptionalIntEnv("COMPANION_VAD_SPEECH_FRAMES")
	if err != nil {
		return VADConfig{}, err
	}
	silenceFrames, err := parseOptionalIntEnv("COMPANION_VAD_SILENCE_FRAMES")
	if err != nil {
		return VADConfig{}, err
	}
	prerollFrames, err := parseOptionalIntEnv("COMPANION_VAD_PREROLL_FRAMES")
	if err != nil {
		return VADConfig{}, err
	}
	minSize, err := parseOptionalIntEnv("COMPANION_MIN_UTTERANCE_BYTES")
	if err != nil {
		return VADConfig{}, err
	}

	cfg := VADConfig{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     3,
		SilenceFrames:    30,
		PrerollFrames:    5,
		MinUtteranceSize: 4096,
	}
	if speechThreshold != nil {
		cfg.SpeechThreshold = *speechThreshold
	}
	if silenceThreshold != nil {
		cfg.SilenceThreshold = *silenceThreshold
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return VADConfig{}, fmt.Errorf("silence threshold %v must not exceed speech threshold %v", cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	if speechFrames != nil {
		if *speechFrames < 1 {
			return VADConfig{}, fmt.Errorf("COMPANION_VAD_SPEECH_FRAMES must be at least 1, got %d", *speechFrames)
		}
		cfg.SpeechFrames = *speechFrames
	}
	if silenceFrames != nil {
		if *silenceFrames < 1 {
			return VADConfig{}, fmt.Errorf("COMPANION_VAD_SILENCE_FRAMES must be at least 1, got %d", *silenceFrames)
		}
		cfg.SilenceFrames = *silenceFrames
	}
	if prerollFrames != nil {
		if *prerollFrames < 0 {
			return VADConfig{}, fmt.Errorf("COMPANION_VAD_PREROLL_FRAMES must not be negative, got %d", *prerollFrames)
		}
		cfg.PrerollFrames = *prerollFrames
	}
	if minSize != nil {
		if *minSize < 0 {
			return VADConfig{}, fmt.Errorf("COMPANION_MIN_UTTERANCE_BYTES must not be negative, got %d", *minSize)
		}
		cfg.MinUtteranceSize = *minSize
	}

	return cfg, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
