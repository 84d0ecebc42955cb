package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/finvista/acusync/internal/flagx"
	"github.com/finvista/acusync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "25s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration. Zero values are skipped so a partial JSON
// file only overrides what it names.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`

	AcumaticaBaseURL         string `json:"acumatica_base_url"`
	AcumaticaEndpointVersion string `json:"acumatica_endpoint_version"`
	AcumaticaUsername        string `json:"acumatica_username"`
	AcumaticaPassword        string `json:"acumatica_password"`
	AcumaticaCompany         string `json:"acumatica_company"`
	AcumaticaBranch          string `json:"acumatica_branch"`

	APIUser               string         `json:"api_user"`
	APIPassword           string         `json:"api_password"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`

	SessionLifetime     timex.Duration `json:"session_lifetime"`
	SessionExpiryMargin timex.Duration `json:"session_expiry_margin"`
	PageSize            int            `json:"page_size"`
	JobExpiryCeiling    timex.Duration `json:"job_expiry_ceiling"`
	SyncBudget          timex.Duration `json:"sync_budget"`
	RequestTimeout      timex.Duration `json:"request_timeout"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file cannot be read or contains invalid JSON, the function panics.
// The caller merges these values with defaults and command-line flags as part
// of the full configuration process.
func parseJson(config *Config) {

	// try flags
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

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AcumaticaBaseURL, c.AcumaticaBaseURL)
	setString(&config.AcumaticaEndpointVersion, c.AcumaticaEndpointVersion)
	setString(&config.AcumaticaUsername, c.AcumaticaUsername)
	setString(&config.AcumaticaPassword, c.AcumaticaPassword)
	setString(&config.AcumaticaCompany, c.AcumaticaCompany)
	setString(&config.AcumaticaBranch, c.AcumaticaBranch)
	setString(&config.APIUser, c.APIUser)
	setString(&config.APIPassword, c.APIPassword)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	setDuration(&config.SessionLifetime, c.SessionLifetime)
	setDuration(&config.SessionExpiryMargin, c.SessionExpiryMargin)
	if c.PageSize > 0 {
		config.PageSize = c.PageSize
	}
	setDuration(&config.JobExpiryCeiling, c.JobExpiryCeiling)
	setDuration(&config.SyncBudget, c.SyncBudget)
	setDuration(&config.RequestTimeout, c.RequestTimeout)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = time.Duration(v.Duration)
	}
}
