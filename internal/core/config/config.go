package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Profile store kinds.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
	StoreNone  = "none"
)

type ProfileCfg struct {
	Store        string
	File         string
	Dir          string
	PersistDelay time.Duration
	RedisKey     string
}

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	ServiceTitle     string
	ProviderName     string
	ProviderSite     string
	StorageEPSG      int
	ResponseEPSG     int
	Profiles         ProfileCfg
	RedisAddr        string
	FeaturesFile     string
	ObservationsFile string
	H3Res            int
	CoverageCache    int
	ShutdownTimeout  time.Duration
}

func FromEnv() Config {
	storage := getint("STORAGE_EPSG", 4326)
	return Config{
		Addr:         getenv("ADDR", ":8090"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogConsole:   getbool("LOG_CONSOLE", false),
		LogSampleN:   getint("LOG_SAMPLE_N", 0),
		ServiceTitle: getenv("SERVICE_TITLE", "SOS"),
		ProviderName: getenv("PROVIDER_NAME", ""),
		ProviderSite: getenv("PROVIDER_SITE", ""),
		StorageEPSG:  storage,
		ResponseEPSG: getint("RESPONSE_EPSG", storage),
		Profiles: ProfileCfg{
			Store:        strings.ToLower(getenv("PROFILE_STORE", StoreFile)),
			File:         getenv("PROFILE_FILE", "profiles.json"),
			Dir:          getenv("PROFILE_DIR", ""),
			PersistDelay: getduration("PROFILE_PERSIST_DELAY", 2*time.Second),
			RedisKey:     getenv("PROFILE_REDIS_KEY", "sos:profiles"),
		},
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		FeaturesFile:     getenv("FEATURES_FILE", ""),
		ObservationsFile: getenv("OBSERVATIONS_FILE", ""),
		H3Res:            getint("H3_RES", 7),
		CoverageCache:    getint("COVERAGE_CACHE_SIZE", 1024),
		ShutdownTimeout:  getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Profiles.Store {
	case StoreFile, StoreRedis, StoreNone:
	default:
		return fmt.Errorf("PROFILE_STORE must be one of %s, %s, %s; got %q", StoreFile, StoreRedis, StoreNone, c.Profiles.Store)
	}
	if c.Profiles.Store == StoreFile && strings.TrimSpace(c.Profiles.File) == "" {
		return fmt.Errorf("PROFILE_FILE is required for the file store")
	}
	if c.StorageEPSG <= 0 {
		return fmt.Errorf("STORAGE_EPSG must be positive; got %d", c.StorageEPSG)
	}
	if c.ResponseEPSG != c.StorageEPSG {
		return fmt.Errorf("RESPONSE_EPSG %d differs from STORAGE_EPSG %d; coordinates are not transformed", c.ResponseEPSG, c.StorageEPSG)
	}
	if c.H3Res < 0 || c.H3Res > 15 {
		return fmt.Errorf("H3_RES must be within 0..15; got %d", c.H3Res)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
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

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
