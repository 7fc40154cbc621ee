package models

import "time"

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig
	Ledger      LedgerConfig
	Formance    FormanceConfig
	CryptoPay   CryptoPayConfig
	Fragment    FragmentConfig
	Notifier    NotifierConfig
	Reconciler  ReconcilerConfig
	Redis       RedisConfig
	Server      ServerConfig
	PricingFile string
	LogLevel    string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// LedgerConfig selects the balance ledger backend ("sqlite" or "formance")
type LedgerConfig struct {
	Backend string
}

// FormanceConfig holds Formance Stack credentials
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// CryptoPayConfig holds payment provider settings
type CryptoPayConfig struct {
	Token          string
	Testnet        bool
	Asset          string
	AcceptedAssets string
	ExpiresIn      time.Duration
}

// FragmentConfig holds fulfillment provider settings
type FragmentConfig struct {
	Token      string
	BaseURL    string
	ShowSender bool
}

// NotifierConfig holds chat notification settings
type NotifierConfig struct {
	BotToken string
	AdminIds []int64
}

// ReconcilerConfig holds reconciliation loop settings
type ReconcilerConfig struct {
	Interval        time.Duration
	CallDelay       time.Duration
	InvoiceTTL      time.Duration
	RecoveryEnabled bool
	RecoveryGrace   time.Duration
	SweepLockTTL    time.Duration
}

// RedisConfig holds the optional sweep lock connection
type RedisConfig struct {
	URL string
}

// ServerConfig holds operator HTTP API settings
type ServerConfig struct {
	Addr string
}
