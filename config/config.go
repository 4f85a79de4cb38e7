package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"orbot/internal/constants"
	"orbot/internal/utils"
	"orbot/models"
)

// Config holds application configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Instrument string
	Timezone   string
	Location   *time.Location

	// Strategy window and levels
	Profile      string
	ORStart      models.Clock
	OREnd        models.Clock
	Entry        models.Clock
	HardExit     models.Clock
	TopPct       float64
	BottomPct    float64
	SLPoints     float64
	TPPoints     float64
	PositionSize float64
	PointValue   float64
	ORTolerance  int
	EntryGrace   time.Duration
	ExitBarWait  time.Duration
	ATRPeriod    int

	// Execution
	PlaceOrders  bool
	Paper        bool
	PaperBalance float64
	PriceTick    float64

	// Replay and backtest input
	ReplayFile       string
	BacktestFile     string
	ReplayDelimiter  string
	ReplayTimeLayout string
	ResultsFile      string

	// OANDA
	OandaAccountID string
	OandaToken     string
	OandaEnv       string
	OandaHost      string
	FetchCount     int
	SettleCount    int
	HTTPTimeout    time.Duration

	// Retry policies
	FetchRetry     utils.RetryPolicy
	ORRecheckRetry utils.RetryPolicy

	// Loop cadence
	PollInterval      time.Duration
	EntryPollInterval time.Duration
	MonitorInterval   time.Duration
	ErrorBackoff      time.Duration
	HeartbeatSession  time.Duration
	HeartbeatIdle     time.Duration

	// Notifications
	NotifyWebhook string
	NotifyTimeout time.Duration
	NotifyMaxLen  int

	// Storage
	DataDir string

	// Logging configuration
	LogFile       string
	LogMaxSize    int // megabytes
	LogMaxBackups int // number of files
	LogMaxAge     int // days
	LogCompress   bool
	LogLevel      int // 0=DEBUG, 1=INFO, 2=WARNING, 3=ERROR
	// Status server configuration
	StatusAddr string
	// Daemon configuration
	DaemonMode bool
	PidFile    string
	Debug      bool
}

// LoadConfig reads an optional .env file, the environment and an optional
// YAML strategy file, in that order of increasing precedence for strategy keys.
func LoadConfig() (*Config, error) {
	envFile := getEnv("ORB_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Instrument:   getEnv("OANDA_INSTRUMENT", constants.DefaultInstrument),
		Timezone:     getEnv("OANDA_TIMEZONE", constants.DefaultTimezone),
		Profile:      strings.ToLower(getEnv("ORB_PROFILE", constants.ProfileLive)),
		TopPct:       getEnvAsFloat("TOP_PCT", constants.DefaultZonePct),
		BottomPct:    getEnvAsFloat("BOTTOM_PCT", constants.DefaultZonePct),
		SLPoints:     getEnvAsFloat("SL_POINTS", constants.DefaultSLPoints),
		TPPoints:     getEnvAsFloat("TP_POINTS", constants.DefaultTPPoints),
		PositionSize: getEnvAsFloat("POSITION_SIZE", constants.DefaultSize),
		PointValue:   getEnvAsFloat("POINT_VALUE", constants.DefaultPointValue),
		ORTolerance:  getEnvAsInt("OR_INCOMPLETE_TOLERANCE", -1),
		EntryGrace:   getEnvAsDuration("ENTRY_GRACE", 5*time.Minute),
		ExitBarWait:  getEnvAsDuration("EXIT_BAR_WAIT", 2*time.Minute),
		ATRPeriod:    constants.DefaultATRPeriod,

		PlaceOrders:  getEnvAsBool("PLACE_ORDERS", false),
		Paper:        getEnvAsBool("PAPER_TRADING", false),
		PaperBalance: getEnvAsFloat("PAPER_BALANCE", 100000),
		PriceTick:    getEnvAsFloat("PRICE_TICK", constants.DefaultPriceTick),

		ReplayFile:       getEnv("REPLAY_FILE", ""),
		BacktestFile:     getEnv("BACKTEST_FILE", ""),
		ReplayDelimiter:  getEnv("REPLAY_DELIMITER", ""),
		ReplayTimeLayout: getEnv("REPLAY_TIME_LAYOUT", "20060102 150405"),
		ResultsFile:      getEnv("RESULTS_FILE", ""),

		OandaAccountID: getEnv("OANDA_ACCOUNT_ID", ""),
		OandaToken:     getEnv("OANDA_API_TOKEN", ""),
		OandaEnv:       strings.ToLower(getEnv("OANDA_ENV", "practice")),
		OandaHost:      getEnv("OANDA_HOST", ""),
		FetchCount:     getEnvAsInt("FETCH_COUNT", constants.DefaultFetchCount),
		SettleCount:    getEnvAsInt("SETTLE_COUNT", constants.DefaultSettleCount),
		HTTPTimeout:    getEnvAsDuration("HTTP_TIMEOUT", 15*time.Second),

		FetchRetry: utils.RetryPolicy{
			Name:        utils.FetchPolicy.Name,
			MaxAttempts: getEnvAsInt("FETCH_RETRIES", utils.FetchPolicy.MaxAttempts),
			BaseDelay:   getEnvAsDuration("FETCH_BACKOFF", utils.FetchPolicy.BaseDelay),
			Multiplier:  getEnvAsFloat("FETCH_BACKOFF_MULT", utils.FetchPolicy.Multiplier),
		},
		ORRecheckRetry: utils.RetryPolicy{
			Name:        utils.ORRecheckPolicy.Name,
			MaxAttempts: getEnvAsInt("OR_RECHECK_RETRIES", utils.ORRecheckPolicy.MaxAttempts),
			BaseDelay:   getEnvAsDuration("OR_RECHECK_DELAY", utils.ORRecheckPolicy.BaseDelay),
			Multiplier:  utils.ORRecheckPolicy.Multiplier,
		},

		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 60*time.Second),
		EntryPollInterval: getEnvAsDuration("ENTRY_POLL_INTERVAL", 10*time.Second),
		MonitorInterval:   getEnvAsDuration("MONITOR_INTERVAL", 30*time.Second),
		ErrorBackoff:      getEnvAsDuration("ERROR_BACKOFF", 60*time.Second),
		HeartbeatSession:  getEnvAsDuration("HEARTBEAT_SESSION", 10*time.Minute),
		HeartbeatIdle:     getEnvAsDuration("HEARTBEAT_IDLE", time.Hour),

		NotifyWebhook: getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyTimeout: getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		NotifyMaxLen:  getEnvAsInt("NOTIFY_MAX_LEN", constants.MaxMessageLen),

		DataDir: getEnv("DATA_DIR", "data"),

		// Logging defaults
		LogFile:       getEnv("LOG_FILE", "logs/orbot.log"),
		LogMaxSize:    10, // 10 MB
		LogMaxBackups: 5,  // 5 backup files
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
		LogCompress:   true,
		LogLevel:      getEnvAsInt("LOG_LEVEL", 1), // INFO level
		// Status server defaults
		StatusAddr: getEnv("STATUS_ADDR", "127.0.0.1:6061"),
		// Daemon defaults
		DaemonMode: getEnvAsBool("DAEMON_MODE", false),
		PidFile:    getEnv("PID_FILE", "orbot.pid"),
	}

	clocks := []struct {
		key, def string
		dst      *models.Clock
	}{
		{"OR_START", constants.DefaultORStart, &cfg.ORStart},
		{"OR_END", constants.DefaultOREnd, &cfg.OREnd},
		{"ENTRY_TIME", constants.DefaultEntry, &cfg.Entry},
		{"EXIT_TIME", constants.DefaultHardExit, &cfg.HardExit},
	}
	for _, c := range clocks {
		v, err := models.ParseClock(getEnv(c.key, c.def))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.key, err)
		}
		*c.dst = v
	}

	if path := getEnv("ORB_STRATEGY_FILE", ""); path != "" {
		if err := cfg.applyStrategyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish resolves derived fields and validates.
func (c *Config) finish() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	if c.OandaHost == "" {
		c.OandaHost = constants.OandaPracticeHost
		if c.OandaEnv == "live" {
			c.OandaHost = constants.OandaLiveHost
		}
	}
	if c.ORTolerance < 0 {
		c.ORTolerance = ProfileTolerance(c.Profile)
	}
	return c.Validate()
}

// ProfileTolerance maps a profile name to its opening-range bar tolerance.
func ProfileTolerance(profile string) int {
	if profile == constants.ProfileBacktest {
		return constants.BacktestORTolerance
	}
	return constants.LiveORTolerance
}

// WithProfile returns a copy switched to profile. An explicit tolerance override
// is dropped in favour of the profile value.
func (c *Config) WithProfile(profile string) *Config {
	cp := *c
	cp.Profile = profile
	cp.ORTolerance = ProfileTolerance(profile)
	return &cp
}

// Validate checks that the session timeline is ordered and levels are sane.
func (c *Config) Validate() error {
	var errs []error
	if c.Profile != constants.ProfileLive && c.Profile != constants.ProfileBacktest {
		errs = append(errs, fmt.Errorf("unknown profile %q", c.Profile))
	}
	if !c.ORStart.Before(c.OREnd) {
		errs = append(errs, fmt.Errorf("opening range %s-%s is empty", c.ORStart, c.OREnd))
	}
	if !c.OREnd.Before(c.Entry) {
		errs = append(errs, fmt.Errorf("entry %s must follow opening range end %s", c.Entry, c.OREnd))
	}
	if !c.Entry.Before(c.HardExit) {
		errs = append(errs, fmt.Errorf("hard exit %s must follow entry %s", c.HardExit, c.Entry))
	}
	if c.TopPct < 0 || c.BottomPct < 0 {
		errs = append(errs, errors.New("zone percentages must be non-negative"))
	}
	if c.SLPoints <= 0 || c.TPPoints <= 0 {
		errs = append(errs, errors.New("stop and target distances must be positive"))
	}
	if c.PositionSize <= 0 || c.PointValue <= 0 {
		errs = append(errs, errors.New("position size and point value must be positive"))
	}
	if c.PlaceOrders && !c.Paper && (c.OandaAccountID == "" || c.OandaToken == "") {
		errs = append(errs, errors.New("PLACE_ORDERS needs OANDA_ACCOUNT_ID and OANDA_API_TOKEN"))
	}
	return errors.Join(errs...)
}

// ExpectedORBars is the bar count of a full opening window.
func (c *Config) ExpectedORBars() int {
	return models.MinutesInclusive(c.ORStart, c.OREnd)
}

// Units is the signed order size for side.
func (c *Config) Units(side models.Side) float64 {
	return side.Sign() * float64(int(c.PositionSize*c.PointValue))
}

type strategyFile struct {
	Instrument  *string  `yaml:"instrument"`
	Timezone    *string  `yaml:"timezone"`
	Profile     *string  `yaml:"profile"`
	ORStart     *string  `yaml:"or_start"`
	OREnd       *string  `yaml:"or_end"`
	Entry       *string  `yaml:"entry_time"`
	HardExit    *string  `yaml:"exit_time"`
	TopPct      *float64 `yaml:"top_pct"`
	BottomPct   *float64 `yaml:"bottom_pct"`
	SLPoints    *float64 `yaml:"sl_points"`
	TPPoints    *float64 `yaml:"tp_points"`
	Size        *float64 `yaml:"position_size"`
	PointValue  *float64 `yaml:"point_value"`
	ORTolerance *int     `yaml:"or_tolerance"`
	PlaceOrders *bool    `yaml:"place_orders"`
}

func (c *Config) applyStrategyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read strategy file: %w", err)
	}
	var f strategyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse strategy file %s: %w", path, err)
	}

	setString(&c.Instrument, f.Instrument)
	setString(&c.Timezone, f.Timezone)
	setString(&c.Profile, f.Profile)
	setFloat(&c.TopPct, f.TopPct)
	setFloat(&c.BottomPct, f.BottomPct)
	setFloat(&c.SLPoints, f.SLPoints)
	setFloat(&c.TPPoints, f.TPPoints)
	setFloat(&c.PositionSize, f.Size)
	setFloat(&c.PointValue, f.PointValue)
	if f.ORTolerance != nil {
		c.ORTolerance = *f.ORTolerance
	}
	if f.PlaceOrders != nil {
		c.PlaceOrders = *f.PlaceOrders
	}

	clocks := []struct {
		name string
		src  *string
		dst  *models.Clock
	}{
		{"or_start", f.ORStart, &c.ORStart},
		{"or_end", f.OREnd, &c.OREnd},
		{"entry_time", f.Entry, &c.Entry},
		{"exit_time", f.HardExit, &c.HardExit},
	}
	for _, cl := range clocks {
		if cl.src == nil {
			continue
		}
		v, err := models.ParseClock(*cl.src)
		if err != nil {
			return fmt.Errorf("strategy file %s: %w", cl.name, err)
		}
		*cl.dst = v
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// getEnvAsBool gets an environment variable as a boolean value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	// Convert string to bool - "true", "1", "yes", "on" are considered true
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
