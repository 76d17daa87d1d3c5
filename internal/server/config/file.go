package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/healthvault/internal/flagx"
	"github.com/dmitrijs2005/healthvault/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Every field is
// optional: only keys present in the file override the current Config.
type FileConfig struct {
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN                  *string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    *string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	FileStorage                  *string         `json:"file_storage" yaml:"file_storage"`
	UploadDir                    *string         `json:"upload_dir" yaml:"upload_dir"`
	MaxUploadBytes               *int64          `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	S3RootUser                   *string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	RedisAddr                    *string         `json:"redis_addr" yaml:"redis_addr"`
	AuthRateLimitPerMinute       *int            `json:"auth_rate_limit_per_minute" yaml:"auth_rate_limit_per_minute"`
	LogLevel                     *string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays the file named by -c / -config onto config.
// Nothing happens when no file is given; an unreadable or malformed file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}
	if err := ReadFile(path, config); err != nil {
		panic(err)
	}
}

// ReadFile decodes a JSON or YAML (by .yaml/.yml extension) config file and
// applies the keys it contains to config.
func ReadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	if fc.AccessTokenValidityDuration != nil {
		c.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	}
	if fc.RefreshTokenValidityDuration != nil {
		c.RefreshTokenValidityDuration = fc.RefreshTokenValidityDuration.Duration
	}
	setString(&c.FileStorage, fc.FileStorage)
	setString(&c.UploadDir, fc.UploadDir)
	if fc.MaxUploadBytes != nil {
		c.MaxUploadBytes = *fc.MaxUploadBytes
	}
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.RedisAddr, fc.RedisAddr)
	if fc.AuthRateLimitPerMinute != nil {
		c.AuthRateLimitPerMinute = *fc.AuthRateLimitPerMinute
	}
	setString(&c.LogLevel, fc.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
