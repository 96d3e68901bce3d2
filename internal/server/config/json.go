package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/flagx"
	"github.com/dmitrijs2005/assistauth/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept "15m"-style strings or integer nanoseconds. Absent keys keep the
// value already in Config.
type JsonConfig struct {
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	ResetTokenValidityDuration   *timex.Duration `json:"reset_token_validity_duration"`
	StoreTimeout                 *timex.Duration `json:"store_timeout"`
	ShutdownTimeout              *timex.Duration `json:"shutdown_timeout"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	PasswordMinLength            *int            `json:"password_min_length"`
	ReuseDetection               *bool           `json:"reuse_detection"`
	DevMode                      *bool           `json:"dev_mode"`
	LogLevel                     string          `json:"log_level"`
	LogFormat                    string          `json:"log_format"`
	RateLimitRPS                 *float64        `json:"rate_limit_rps"`
	RateLimitBurst               *int            `json:"rate_limit_burst"`
	RedisAddr                    string          `json:"redis_addr"`
	RedisPassword                string          `json:"redis_password"`
	SMTPURL                      string          `json:"smtp_url"`
	MailFrom                     string          `json:"mail_from"`
	AppBaseURL                   string          `json:"app_base_url"`
	CORSOrigins                  string          `json:"cors_origins"`
}

// parseJson overlays config with the file named by -c/-config, if any.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.JsonConfigFile(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	c.apply(config)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setValue[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setValue(&config.BcryptCost, c.BcryptCost)
	setValue(&config.PasswordMinLength, c.PasswordMinLength)
	setValue(&config.ReuseDetection, c.ReuseDetection)
	setValue(&config.DevMode, c.DevMode)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setValue(&config.RateLimitRPS, c.RateLimitRPS)
	setValue(&config.RateLimitBurst, c.RateLimitBurst)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.SMTPURL, c.SMTPURL)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.AppBaseURL, c.AppBaseURL)
	setString(&config.CORSOrigins, c.CORSOrigins)
}
