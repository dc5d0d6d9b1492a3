package types

import "time"

// Defaults applied by HarvestConfig.WithDefaults.
const (
	DefaultSampleSize    = 850
	DefaultEmail         = "unpaywall_01@example.com"
	DefaultStartYear     = 2012
	DefaultEndYear       = 2022
	DefaultWorkers       = 4
	DefaultTimeout       = 30 * time.Second
	DefaultUserAgent     = "harvest-lists/0.1"
	DefaultAbortAfter    = 5
	DefaultIDConvRate    = 3.0
	DefaultUnpaywallRate = 10.0
)

// HTTPConfig holds shared HTTP settings used by the lookup clients.
type HTTPConfig struct {
	// Timeout bounds every single request to an external service.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent with every request and doubles as the NCBI "tool" name.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ServiceConfig holds endpoint and rate settings for the two lookup services.
type ServiceConfig struct {
	// IDConvBaseURL is the NCBI PMC ID Converter endpoint. Empty uses the public one.
	IDConvBaseURL string `json:"idconv_base_url,omitempty" yaml:"idconv_base_url,omitempty" mapstructure:"idconv_base_url"`

	// UnpaywallBaseURL is the Unpaywall v2 endpoint. Empty uses the public one.
	UnpaywallBaseURL string `json:"unpaywall_base_url,omitempty" yaml:"unpaywall_base_url,omitempty" mapstructure:"unpaywall_base_url"`

	// IDConvRate is the maximum requests per second sent to NCBI (3 without
	// an API key, 10 with one).
	IDConvRate float64 `json:"idconv_rate" yaml:"idconv_rate" mapstructure:"idconv_rate"`

	// UnpaywallRate is the maximum requests per second sent to Unpaywall.
	UnpaywallRate float64 `json:"unpaywall_rate" yaml:"unpaywall_rate" mapstructure:"unpaywall_rate"`

	// NCBIAPIKey raises the NCBI rate limit when set.
	NCBIAPIKey string `json:"-" yaml:"-" mapstructure:"ncbi_api_key"`
}

// HarvestConfig is the full configuration of one run. It is passed explicitly
// into the pipeline; nothing reads package-level defaults at run time.
type HarvestConfig struct {
	HTTPConfig    `yaml:",inline" mapstructure:",squash"`
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// InputDir holds <field>/<field><year>.csv files.
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`

	// OutputDir receives the harvest lists.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// ReportsDir receives per-field reports and dropped-record dumps.
	ReportsDir string `json:"reports_dir" yaml:"reports_dir" mapstructure:"reports_dir"`

	// StartYear and EndYear bound the inclusive range of input years.
	StartYear int `json:"start_year" yaml:"start_year" mapstructure:"start_year"`
	EndYear   int `json:"end_year" yaml:"end_year" mapstructure:"end_year"`

	// SampleSize is the maximum number of records classified per file.
	SampleSize int `json:"sample_size" yaml:"sample_size" mapstructure:"sample_size"`

	// Email is the contact address required by the Unpaywall usage policy.
	Email string `json:"email" yaml:"email" mapstructure:"email"`

	// Seed fixes the sampling source. Negative means a fresh random seed.
	Seed int64 `json:"seed" yaml:"seed" mapstructure:"seed"`

	// Workers bounds concurrent record lookups within one file.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// AbortAfter is the number of unreachable-service failures, with no
	// answered request, after which a file's classification pass aborts.
	AbortAfter int `json:"abort_after" yaml:"abort_after" mapstructure:"abort_after"`

	// CacheDB is an optional SQLite file memoizing lookup answers across runs.
	CacheDB string `json:"cache_db,omitempty" yaml:"cache_db,omitempty" mapstructure:"cache_db"`
}

// WithDefaults returns a copy of c with zero-valued settings replaced by defaults.
// SampleSize is left alone: zero is a meaningful sample size.
func (c HarvestConfig) WithDefaults() HarvestConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.IDConvRate <= 0 {
		c.IDConvRate = DefaultIDConvRate
	}
	if c.UnpaywallRate <= 0 {
		c.UnpaywallRate = DefaultUnpaywallRate
	}
	if c.InputDir == "" {
		c.InputDir = "input"
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.ReportsDir == "" {
		c.ReportsDir = "reports"
	}
	if c.StartYear == 0 {
		c.StartYear = DefaultStartYear
	}
	if c.EndYear == 0 {
		c.EndYear = DefaultEndYear
	}
	if c.Email == "" {
		c.Email = DefaultEmail
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.AbortAfter <= 0 {
		c.AbortAfter = DefaultAbortAfter
	}
	return c
}
