package constants

// Market defaults
const (
	DefaultInstrument = "NAS100_USD"
	DefaultTimezone   = "America/New_York"
	DefaultPriceTick  = 0.1
)

// Session window defaults
const (
	DefaultORStart  = "09:30"
	DefaultOREnd    = "10:00"
	DefaultEntry    = "10:22"
	DefaultHardExit = "12:00"
)

// Strategy defaults
const (
	DefaultZonePct     = 0.35
	DefaultSLPoints    = 25.0
	DefaultTPPoints    = 75.0
	DefaultPointValue  = 80.0
	DefaultSize        = 1.0
	DefaultATRPeriod   = 14
	DefaultFetchCount  = 600
	DefaultSettleCount = 400
)

// Completeness profiles
const (
	ProfileLive         = "live"
	ProfileBacktest     = "backtest"
	LiveORTolerance     = 2
	BacktestORTolerance = 0
)

// OANDA v3 hosts
const (
	OandaPracticeHost = "https://api-fxpractice.oanda.com"
	OandaLiveHost     = "https://api-fxtrade.oanda.com"
)

// MaxMessageLen bounds outgoing notification text.
const MaxMessageLen = 280
