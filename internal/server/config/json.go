package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/sso/internal/flagx"
	"github.com/dmitrijs2005/sso/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations use timex.Duration so
// they may be written as "15m" or as integer nanoseconds.
type JsonConfig struct {
	HTTPAddr            string         `json:"http_addr"`
	GRPCAddr            string         `json:"grpc_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	SecretKey           string         `json:"secret_key"`
	AccessTokenTTL      timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL     timex.Duration `json:"refresh_token_ttl"`
	RecoveryTokenTTL    timex.Duration `json:"recovery_token_ttl"`
	MinPasswordLength   int            `json:"min_password_length"`
	PasswordAlgorithm   string         `json:"password_algorithm"`
	BcryptCost          int            `json:"bcrypt_cost"`
	ConcealUnknownEmail bool           `json:"conceal_unknown_email"`
	RedisAddr           string         `json:"redis_addr"`
	RedisPassword       string         `json:"redis_password"`
	RedisDB             int            `json:"redis_db"`
	LoginRateLimit      int            `json:"login_rate_limit"`
	RecoveryRateLimit   int            `json:"recovery_rate_limit"`
	RateLimitWindow     timex.Duration `json:"rate_limit_window"`
	SMTPHost            string         `json:"smtp_host"`
	SMTPPort            int            `json:"smtp_port"`
	SMTPUsername        string         `json:"smtp_username"`
	SMTPPassword        string         `json:"smtp_password"`
	SMTPFrom            string         `json:"smtp_from"`
	LogFormat           string         `json:"log_format"`
	LogLevel            string         `json:"log_level"`
	AuditS3Bucket       string         `json:"audit_s3_bucket"`
	AuditS3Region       string         `json:"audit_s3_region"`
	AuditS3Endpoint     string         `json:"audit_s3_endpoint"`
	AuditS3AccessKey    string         `json:"audit_s3_access_key"`
	AuditS3SecretKey    string         `json:"audit_s3_secret_key"`
	AuditBatchSize      int            `json:"audit_batch_size"`
	AuditBufferSize     int            `json:"audit_buffer_size"`
	OTLPEndpoint        string         `json:"otlp_endpoint"`
	Development         bool           `json:"development"`
}

// parseJSON overlays the JSON file named by -c/-config (or SSO_CONFIG) on
// config. Keys absent from the file keep their current values.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJSON(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	fromJSON(c, config)
	return nil
}

func toJSON(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:            c.HTTPAddr,
		GRPCAddr:            c.GRPCAddr,
		DatabaseDSN:         c.DatabaseDSN,
		SecretKey:           c.SecretKey,
		AccessTokenTTL:      timex.Duration{Duration: c.AccessTokenTTL},
		RefreshTokenTTL:     timex.Duration{Duration: c.RefreshTokenTTL},
		RecoveryTokenTTL:    timex.Duration{Duration: c.RecoveryTokenTTL},
		MinPasswordLength:   c.MinPasswordLength,
		PasswordAlgorithm:   c.PasswordAlgorithm,
		BcryptCost:          c.BcryptCost,
		ConcealUnknownEmail: c.ConcealUnknownEmail,
		RedisAddr:           c.RedisAddr,
		RedisPassword:       c.RedisPassword,
		RedisDB:             c.RedisDB,
		LoginRateLimit:      c.LoginRateLimit,
		RecoveryRateLimit:   c.RecoveryRateLimit,
		RateLimitWindow:     timex.Duration{Duration: c.RateLimitWindow},
		SMTPHost:            c.SMTPHost,
		SMTPPort:            c.SMTPPort,
		SMTPUsername:        c.SMTPUsername,
		SMTPPassword:        c.SMTPPassword,
		SMTPFrom:            c.SMTPFrom,
		LogFormat:           c.LogFormat,
		LogLevel:            c.LogLevel,
		AuditS3Bucket:       c.AuditS3Bucket,
		AuditS3Region:       c.AuditS3Region,
		AuditS3Endpoint:     c.AuditS3Endpoint,
		AuditS3AccessKey:    c.AuditS3AccessKey,
		AuditS3SecretKey:    c.AuditS3SecretKey,
		AuditBatchSize:      c.AuditBatchSize,
		AuditBufferSize:     c.AuditBufferSize,
		OTLPEndpoint:        c.OTLPEndpoint,
		Development:         c.Development,
	}
}

func fromJSON(j *JsonConfig, c *Config) {
	c.HTTPAddr = j.HTTPAddr
	c.GRPCAddr = j.GRPCAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.AccessTokenTTL = j.AccessTokenTTL.Duration
	c.RefreshTokenTTL = j.RefreshTokenTTL.Duration
	c.RecoveryTokenTTL = j.RecoveryTokenTTL.Duration
	c.MinPasswordLength = j.MinPasswordLength
	c.PasswordAlgorithm = j.PasswordAlgorithm
	c.BcryptCost = j.BcryptCost
	c.ConcealUnknownEmail = j.ConcealUnknownEmail
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.LoginRateLimit = j.LoginRateLimit
	c.RecoveryRateLimit = j.RecoveryRateLimit
	c.RateLimitWindow = j.RateLimitWindow.Duration
	c.SMTPHost = j.SMTPHost
	c.SMTPPort = j.SMTPPort
	c.SMTPUsername = j.SMTPUsername
	c.SMTPPassword = j.SMTPPassword
	c.SMTPFrom = j.SMTPFrom
	c.LogFormat = j.LogFormat
	c.LogLevel = j.LogLevel
	c.AuditS3Bucket = j.AuditS3Bucket
	c.AuditS3Region = j.AuditS3Region
	c.AuditS3Endpoint = j.AuditS3Endpoint
	c.AuditS3AccessKey = j.AuditS3AccessKey
	c.AuditS3SecretKey = j.AuditS3SecretKey
	c.AuditBatchSize = j.AuditBatchSize
	c.AuditBufferSize = j.AuditBufferSize
	c.OTLPEndpoint = j.OTLPEndpoint
	c.Development = j.Development
}
