package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var gitSHA string
var buildDate string

const DefaultMaxUploadBytes int64 = 500 * 1024 * 1024

// LoadDotEnv reads a .env file in the working directory, if there is one.
// Variables already present in the environment win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func GetPort() string {
	value, exists := os.LookupEnv("PORT")
	if exists && value != "" {
		return value
	}
	return "5000"
}

func GetDataDir() string {
	value, exists := os.LookupEnv("MP4CONV_DATA_DIR")
	if exists {
		return value
	}
	return "data"
}

// defaults to GetDataDir() / uploads
func GetUploadDir() string {
	value, exists := os.LookupEnv("MP4CONV_UPLOAD_DIR")
	if exists {
		return value
	}
	return filepath.Join(GetDataDir(), "uploads")
}

// defaults to GetDataDir() / converted
func GetConvertedDir() string {
	value, exists := os.LookupEnv("MP4CONV_CONVERTED_DIR")
	if exists {
		return value
	}
	return filepath.Join(GetDataDir(), "converted")
}

func GetMaxUploadBytes() int64 {
	if value, exists := os.LookupEnv("MP4CONV_MAX_UPLOAD_BYTES"); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxUploadBytes
}

func GetFfmpeg() string {
	value, exists := os.LookupEnv("MP4CONV_FFMPEG")
	if exists && value != "" {
		return value
	}
	return "ffmpeg"
}

func GetFfprobe() string {
	value, exists := os.LookupEnv("MP4CONV_FFPROBE")
	if exists && value != "" {
		return value
	}
	return "ffprobe"
}

// GetMaxConcurrent is the number of conversions allowed to run at once.
// 0 disables the limit.
func GetMaxConcurrent() int {
	if value, exists := os.LookupEnv("MP4CONV_MAX_CONCURRENT"); exists {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// GetConversionTimeout bounds a single ffmpeg run. 0 disables the timeout.
func GetConversionTimeout() time.Duration {
	if value, exists := os.LookupEnv("MP4CONV_CONVERSION_TIMEOUT"); exists {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return 30 * time.Minute
}

// GetStaleAfter is the age after which a leftover temp file is swept. Files
// of requests still running in this process are never swept, so this does
// not need to exceed the conversion timeout.
func GetStaleAfter() time.Duration {
	if value, exists := os.LookupEnv("MP4CONV_STALE_AFTER"); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return 6 * time.Hour
}

// one of "sqlite", "postgres", "mongodb"
func GetRecordStore() string {
	value, exists := os.LookupEnv("MP4CONV_RECORD_STORE")
	if exists && value != "" {
		return strings.ToLower(value)
	}
	return "sqlite"
}

// for sqlite this is a file path, for postgres a connection string
func GetDatabaseDSN() string {
	value, exists := os.LookupEnv("MP4CONV_DATABASE_DSN")
	if exists && value != "" {
		return value
	}
	return filepath.Join(GetDataDir(), "conversions.db")
}

func GetMongoURI() string {
	value, exists := os.LookupEnv("MP4CONV_MONGODB_URI")
	if exists && value != "" {
		return value
	}
	return "mongodb://localhost:27017"
}

func GetMongoDatabase() string {
	value, exists := os.LookupEnv("MP4CONV_MONGODB_DATABASE")
	if exists && value != "" {
		return value
	}
	return "mp4converter"
}

// comma-separated list, "*" allows every origin
func GetCORSOrigins() []string {
	value, exists := os.LookupEnv("MP4CONV_CORS_ORIGINS")
	if !exists || strings.TrimSpace(value) == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func GetLogLevel() string {
	value, exists := os.LookupEnv("MP4CONV_LOG_LEVEL")
	if exists && value != "" {
		return value
	}
	return "debug"
}

// "text" or "json"
func GetLogFormat() string {
	value, exists := os.LookupEnv("MP4CONV_LOG_FORMAT")
	if exists && value != "" {
		return strings.ToLower(value)
	}
	return "text"
}

func GetGitSHA() string {
	if gitSHA == "" {
		return "<not provided>"
	} else {
		return gitSHA
	}
}

func GetBuildDate() string {
	if buildDate == "" {
		return "<not provided>"
	} else {
		return buildDate
	}
}
