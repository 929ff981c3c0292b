package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "STORAGE_EPSG", "RESPONSE_EPSG", "PROFILE_STORE", "PROFILE_PERSIST_DELAY", "H3_RES", "LOG_CONSOLE"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Addr != ":8090" || c.StorageEPSG != 4326 || c.ResponseEPSG != 4326 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Profiles.Store != StoreFile || c.Profiles.PersistDelay != 2*time.Second || c.Profiles.RedisKey != "sos:profiles" {
		t.Fatalf("unexpected profile defaults: %+v", c.Profiles)
	}
	if c.H3Res != 7 || c.LogConsole {
		t.Fatalf("unexpected index/log defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORAGE_EPSG", "3006")
	t.Setenv("PROFILE_STORE", "Redis")
	t.Setenv("PROFILE_PERSIST_DELAY", "250ms")
	t.Setenv("LOG_CONSOLE", "yes")
	t.Setenv("H3_RES", "not-a-number")

	c := FromEnv()
	if c.StorageEPSG != 3006 || c.ResponseEPSG != 3006 {
		t.Fatalf("response EPSG should follow storage: %+v", c)
	}
	if c.Profiles.Store != StoreRedis || c.Profiles.PersistDelay != 250*time.Millisecond {
		t.Fatalf("profile overrides not applied: %+v", c.Profiles)
	}
	if !c.LogConsole || c.H3Res != 7 {
		t.Fatalf("LOG_CONSOLE/H3_RES: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	base := FromEnv()
	base.Profiles.Store = StoreNone

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"store", func(c *Config) { c.Profiles.Store = "s3" }, "PROFILE_STORE"},
		{"file", func(c *Config) { c.Profiles.Store = StoreFile; c.Profiles.File = " " }, "PROFILE_FILE"},
		{"epsg", func(c *Config) { c.StorageEPSG = 0; c.ResponseEPSG = 0 }, "STORAGE_EPSG"},
		{"reprojection", func(c *Config) { c.ResponseEPSG = 3857 }, "RESPONSE_EPSG"},
		{"h3", func(c *Config) { c.H3Res = 16 }, "H3_RES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error mentioning %s", err, tc.want)
			}
		})
	}
}
