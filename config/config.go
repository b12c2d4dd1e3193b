// Package config handles pre-database configuration, such as the location of
// the database and the slot clock parameters.  This is used by both toted
// and toteadmin.
//
// TODO: I have never seen a viper setup that I liked.
package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Viper-based config loader
func Init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	viper.SetConfigType("yaml")
	viper.SetConfigName(".tote")
	viper.AddConfigPath(home)
	viper.AutomaticEnv()
	viper.BindEnv("db_url", "TOTE_DB_URL")
	viper.BindEnv("listen_address", "TOTE_LISTEN_ADDRESS")
	viper.BindEnv("sql_connector", "TOTE_SQL_CONNECTOR")
	viper.BindEnv("storage", "TOTE_STORAGE")
	viper.SetDefault("db_url", "")
	viper.SetDefault("listen_address", ":8080")
	viper.SetDefault("sql_connector", "pgx")
	viper.SetDefault("storage", "db")
	viper.SetDefault("min_stake", 100)
	viper.SetDefault("slot_interval", "10s")
	viper.SetDefault("slot_genesis", "2026-01-01T00:00:00Z")
	err = viper.ReadInConfig() // ignore error if config file missing
	if err != nil {
		log.Printf("viper can't read config file: %v", err)
	}
	log.Printf("Using database URL: %s", viper.GetString("db_url"))
	log.Printf("Using listen address: %s", viper.GetString("listen_address"))
}

func DBURL() string {
	return viper.GetString("db_url")
}

func ListenAddress() string {
	return viper.GetString("listen_address")
}

func SecureCookies() bool {
	return viper.GetBool("secure_cookies")
}

func SQLConnector() string {
	return viper.GetString("sql_connector")
}

// StorageKind selects "db" (Postgres) or "memory" (single node, volatile).
func StorageKind() string {
	return viper.GetString("storage")
}

// MinStake is the smallest stake the ledger accepts, in credits.
func MinStake() int64 {
	return viper.GetInt64("min_stake")
}

func SlotInterval() time.Duration {
	return viper.GetDuration("slot_interval")
}

// SlotGenesis is the instant slot 0 begins.  Misconfiguring this shifts
// every betting window, so it is pinned in config rather than derived.
func SlotGenesis() time.Time {
	s := viper.GetString("slot_genesis")
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Printf("warning: can't parse slot_genesis %q: %v", s, err)
		return time.Unix(0, 0).UTC()
	}
	return t
}
