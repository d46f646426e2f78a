package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/editor"
)

type LogCfg struct {
	Level   string
	Console bool
	SampleN int
}

type RedisCfg struct {
	Enabled       bool
	Addr          string
	ChannelPrefix string
	StateTTL      time.Duration
	OpTimeout     time.Duration
}

type KafkaCfg struct {
	Enabled       bool
	Brokers       string
	SubmitTopic   string
	ResponseTopic string
	GroupID       string
	QueueSize     int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr        string
	Log         LogCfg
	Editor      editor.Config
	MaxSessions int
	Redis       RedisCfg
	Kafka       KafkaCfg
	H3Res       int
	H3ResMin    int
	H3ResMax    int
	H3MaxCells  int
	Metrics     MetricsCfg
	Version     string
	Shutdown    time.Duration
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	minRes := getint("H3_RES_MIN", 0)
	maxRes := getint("H3_RES_MAX", 12)

	if minRes < 0 {
		minRes = 0
	}
	if maxRes > 15 {
		maxRes = 15
	}
	if minRes > maxRes {
		minRes, maxRes = res, res
	}
	if res < minRes {
		res = minRes
	}
	if res > maxRes {
		res = maxRes
	}

	maxSessions := getint("MAX_SESSIONS", 1024)
	if maxSessions <= 0 {
		maxSessions = 1024
	}

	return Config{
		Addr: getenv("ADDR", ":8090"),
		Log: LogCfg{
			Level:   getenv("LOG_LEVEL", "info"),
			Console: getbool("LOG_CONSOLE", false),
			SampleN: getint("LOG_SAMPLE_N", 0),
		},
		Editor: editor.Config{
			SeedInput: getenvAllowEmpty("SEED_INPUT", "San Francisco"),
			Shapes: editor.ShapeDefaults{
				RadiusM:       getfloat("DEFAULT_RADIUS_M", 5000),
				HalfExtentDeg: getfloat("DEFAULT_HALF_EXTENT_DEG", 0.1),
				Fallback: model.GeoPoint{
					Latitude:  getfloat("FALLBACK_LAT", 37.77),
					Longitude: getfloat("FALLBACK_LNG", -122.41),
				},
			},
			Tolerance: getfloat("OVERLAY_TOLERANCE", 1e-9),
		},
		MaxSessions: maxSessions,
		Redis: RedisCfg{
			Enabled:       getbool("REDIS_ENABLED", false),
			Addr:          getenv("REDIS_ADDR", "localhost:6379"),
			ChannelPrefix: getenv("OVERLAY_CHANNEL_PREFIX", "geofilter:overlay"),
			StateTTL:      getduration("OVERLAY_STATE_TTL", time.Hour),
			OpTimeout:     getduration("REDIS_OP_TIMEOUT", 250*time.Millisecond),
		},
		Kafka: KafkaCfg{
			Enabled:       getbool("KAFKA_ENABLED", false),
			Brokers:       getenv("KAFKA_BROKERS", "localhost:9092"),
			SubmitTopic:   getenv("KAFKA_SUBMIT_TOPIC", "geofilter-submissions"),
			ResponseTopic: getenv("KAFKA_RESPONSE_TOPIC", "geofilter-responses"),
			GroupID:       getenv("KAFKA_GROUP_ID", "geofilter-editor"),
			QueueSize:     getint("KAFKA_QUEUE_SIZE", 256),
		},
		H3Res:      res,
		H3ResMin:   minRes,
		H3ResMax:   maxRes,
		H3MaxCells: getint("H3_MAX_CELLS", 4096),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
		Version:  getenv("BUILD_VERSION", "dev"),
		Shutdown: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// set-but-empty is a valid value (e.g. an editor with no seed text)
func getenvAllowEmpty(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
