package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/sso/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-g string     gRPC bind address (e.g. ":50051"), empty disables gRPC
//	-d string     PostgreSQL DSN
//	-k string     token signing key
//	-t duration   access token lifetime
//	-r duration   refresh token lifetime
//	-redis string Redis address, empty disables Redis
//	-log-level    log level
//	-log-format   json, console or text
//	-dev          development mode
//
// Only these flags are picked out of args with flagx.FilterArgs, so the
// config file flag and unknown arguments do not collide.
func parseFlags(config *Config, args []string) error {
	known := []string{"-a", "-g", "-d", "-k", "-t", "-r", "-redis", "-log-level", "-log-format", "-dev"}
	filtered := flagx.FilterArgs(args, known)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "k", config.SecretKey, "token signing key")
	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTokenTTL, "r", config.RefreshTokenTTL, "refresh token lifetime")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format")
	fs.BoolVar(&config.Development, "dev", config.Development, "development mode")

	return fs.Parse(filtered)
}
