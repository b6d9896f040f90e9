package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Mongo     MongoConfig
	Storage   ObjectStorageConfig
	Transcode TranscodeConfig
	Auth      AuthConfig
	Server    ServerConfig
}

// MongoConfig holds document-store configuration
type MongoConfig struct {
	URI      string
	Database string
}

// ObjectStorageConfig holds S3 configuration for transcode outputs
type ObjectStorageConfig struct {
	Region    string
	Bucket    string
	Endpoint  string // Custom endpoint for local testing
	KeyPrefix string // Namespace segment prefixed to every uploaded key
}

// TranscodeConfig holds video transcode worker configuration
type TranscodeConfig struct {
	UploadDir     string // Root for per-job source and output folders
	FFmpegPath    string
	EncodeTimeout time.Duration // Per-job ceiling on the codec step
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	JWTSecret string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load loads configuration from a .env file (if present) and the
// environment, with defaults.
func Load() (*Config, error) {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "social_content"),
		},
		Storage: ObjectStorageConfig{
			Region:    getEnv("AWS_REGION", "us-west-2"),
			Bucket:    getEnv("S3_BUCKET", "social-content-media"),
			Endpoint:  getEnv("S3_ENDPOINT", ""), // For local S3-compatible stores
			KeyPrefix: getEnv("S3_KEY_PREFIX", "videos-hls"),
		},
		Transcode: TranscodeConfig{
			UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
			FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
			EncodeTimeout: getEnvDuration("ENCODE_TIMEOUT", 30*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
