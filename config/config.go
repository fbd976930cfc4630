package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the interviewer process configuration.
type Config struct {
	AppEnv   string // APP_ENV
	HTTPAddr string // HTTP_ADDR
	LogLevel string // LOG_LEVEL

	// Backend REST API
	APIBaseURL string // API_BASE_URL
	APIToken   string // API_TOKEN, sent as x-access-token

	// Streaming services
	VoiceWSURL string // WS_VOICE_URL
	TTSWSURL   string // WS_TTS_URL

	TTSSpeaker    string // TTS_SPEAKER
	TTSSampleRate int    // TTS_SAMPLE_RATE

	ReconnectInterval    time.Duration // RECONNECT_INTERVAL
	ReconnectMaxAttempts int           // RECONNECT_MAX_ATTEMPTS

	DefaultOptimalTime int // DEFAULT_OPTIMAL_TIME, seconds

	// Capture
	FFmpegBin         string // FFMPEG_BIN
	FFplayBin         string // FFPLAY_BIN
	FFmpegInputFormat string // FFMPEG_INPUT_FORMAT (v4l2, avfoundation, dshow)
	CameraDevice      string // CAMERA_DEVICE
	MicInputFormat    string // MIC_INPUT_FORMAT (alsa, pulse, avfoundation)
	MicDevice         string // MIC_DEVICE

	// Optional stores
	RedisURL    string // REDIS_ADDR | REDIS_URI | REDIS_URL
	MongoURI    string // MONGO_URI
	MongoDB     string // MONGO_DB
	PostgresURI string // POSTGRES_URI

	VideoBucket string // VIDEO_BUCKET, GCS archive of recorded answers
	STTFallback string // STT_FALLBACK ("google" or empty)
	STTLanguage string // STT_LANGUAGE

	ControlJWTSecret string // CONTROL_JWT_SECRET
}

// Load reads the configuration from the environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", "127.0.0.1:8085"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		APIBaseURL:           strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:5000"), "/"),
		APIToken:             getEnv("API_TOKEN", ""),
		VoiceWSURL:           getEnv("WS_VOICE_URL", "ws://localhost:8001/ws/voice"),
		TTSWSURL:             getEnv("WS_TTS_URL", "ws://localhost:8003/ws/speak"),
		TTSSpeaker:           getEnv("TTS_SPEAKER", "xenia"),
		TTSSampleRate:        getInt("TTS_SAMPLE_RATE", 48000),
		ReconnectInterval:    getDuration("RECONNECT_INTERVAL", 5*time.Second),
		ReconnectMaxAttempts: getInt("RECONNECT_MAX_ATTEMPTS", 5),
		DefaultOptimalTime:   getInt("DEFAULT_OPTIMAL_TIME", 90),
		FFmpegBin:            getEnv("FFMPEG_BIN", "ffmpeg"),
		FFplayBin:            getEnv("FFPLAY_BIN", "ffplay"),
		FFmpegInputFormat:    getEnv("FFMPEG_INPUT_FORMAT", "v4l2"),
		CameraDevice:         getEnv("CAMERA_DEVICE", "/dev/video0"),
		MicInputFormat:       getEnv("MIC_INPUT_FORMAT", "pulse"),
		MicDevice:            getEnv("MIC_DEVICE", "default"),
		RedisURL:             firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL", ""),
		MongoURI:             getEnv("MONGO_URI", ""),
		MongoDB:              getEnv("MONGO_DB", "aihr"),
		PostgresURI:          getEnv("POSTGRES_URI", ""),
		VideoBucket:          getEnv("VIDEO_BUCKET", ""),
		STTFallback:          strings.ToLower(getEnv("STT_FALLBACK", "")),
		STTLanguage:          getEnv("STT_LANGUAGE", "ru-RU"),
		ControlJWTSecret:     getEnv("CONTROL_JWT_SECRET", ""),
	}
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: API_BASE_URL is required")
	}
	if c.VoiceWSURL == "" {
		return errors.New("config: WS_VOICE_URL is required")
	}
	if c.TTSWSURL == "" {
		return errors.New("config: WS_TTS_URL is required")
	}
	if c.ReconnectMaxAttempts < 0 {
		return errors.New("config: RECONNECT_MAX_ATTEMPTS must be >= 0")
	}
	if c.DefaultOptimalTime <= 0 {
		return errors.New("config: DEFAULT_OPTIMAL_TIME must be > 0")
	}
	if c.AppEnv == "production" && c.ControlJWTSecret == "" {
		return errors.New("config: in production CONTROL_JWT_SECRET is required")
	}
	if c.STTFallback != "" && c.STTFallback != "google" {
		return errors.New("config: STT_FALLBACK must be empty or \"google\"")
	}
	return nil
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

// getDuration accepts Go durations ("5s") or plain milliseconds ("5000").
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
