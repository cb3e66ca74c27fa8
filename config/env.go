package config

import (
	"os"
	"strings"
)

// Environment variables that override file values.
const (
	EnvDSN       = "SNIPPETSYNC_DSN"
	EnvDBDriver  = "SNIPPETSYNC_DB_DRIVER"
	EnvReportURL = "SNIPPETSYNC_REPORT_URL"
	EnvShopID    = "SNIPPETSYNC_SHOP_ID"
	EnvLogMode   = "SNIPPETSYNC_LOG_MODE"
	EnvRedisAddr = "SNIPPETSYNC_REDIS_ADDR"
)

func applyEnv(f *File) {
	setFromEnv(&f.Database.DSN, EnvDSN)
	setFromEnv(&f.Database.Driver, EnvDBDriver)
	setFromEnv(&f.Reporter.Endpoint, EnvReportURL)
	setFromEnv(&f.ShopID, EnvShopID)
	setFromEnv(&f.LogMode, EnvLogMode)
	setFromEnv(&f.Lock.RedisAddr, EnvRedisAddr)
}

func setFromEnv(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}
