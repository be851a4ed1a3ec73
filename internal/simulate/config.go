// Package simulate drives a running flatrank instance end to end: it serves
// synthetic listings through a stand-in resolver, adds them, answers pairs
// from a hidden true order and measures how well the rankings recover it.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Listings  int           // Number of synthetic listings
	Judgments int           // Upper bound on submitted judgments; 0 judges until pairs run out
	Workers   int           // Number of concurrent workers
	Timeout   time.Duration // HTTP request timeout
	Seed      int64         // Seed for listing generation
	Verbose   bool          // Log every judgment

	// SettleTimeout bounds the wait for listings to be scraped.
	SettleTimeout time.Duration
	// PollInterval is how often scrape progress is checked.
	PollInterval time.Duration

	Generator GeneratorConfig
}

// Stats holds run statistics.
type Stats struct {
	ListingsAdded      int
	ListingsEligible   int
	ListingsFailed     int
	JudgmentsSubmitted int
	JudgmentsPartial   int
	JudgmentsFailed    int
	Bands              int
	Agreement          float64
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// Default run settings.
const (
	DefaultListings      = 60
	DefaultSettleTimeout = 2 * time.Minute
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultTimeout       = 30 * time.Second
)

func (c *Config) withDefaults() {
	if c.Listings <= 0 {
		c.Listings = DefaultListings
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = DefaultSettleTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}
