package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/openscholar/platform/internal/flagx"
	"github.com/openscholar/platform/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. Interval fields use timex.Duration, which accepts both string values
// such as "1h" and integer nanoseconds. After unmarshalling, fields are
// copied into the runtime Config which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	RedisAddr                   string         `json:"redis_addr"`
	RedisPassword               string         `json:"redis_password"`
	SecretKey                   string         `json:"secret_key"`
	WebhookSecret               string         `json:"webhook_secret"`
	CookieSecret                string         `json:"cookie_secret"`
	CookieName                  string         `json:"cookie_name"`
	SessionTTL                  timex.Duration `json:"session_ttl"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	PendingLeaseDuration        timex.Duration `json:"pending_lease_duration"`
	StrictSignatureScope        bool           `json:"strict_signature_scope"`
	RevisionsPageSize           int            `json:"revisions_page_size"`
	CoeditHubURL                string         `json:"coedit_hub_url"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.RedisAddr = c.RedisAddr
	config.RedisPassword = c.RedisPassword
	config.SecretKey = c.SecretKey
	config.WebhookSecret = c.WebhookSecret
	config.CookieSecret = c.CookieSecret
	config.CookieName = c.CookieName
	config.SessionTTL = time.Duration(c.SessionTTL.Duration)
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.PendingLeaseDuration = time.Duration(c.PendingLeaseDuration.Duration)
	config.StrictSignatureScope = c.StrictSignatureScope
	config.RevisionsPageSize = c.RevisionsPageSize
	config.CoeditHubURL = c.CoeditHubURL
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
