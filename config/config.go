package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env        string
	ServerAddr string
	LogLevel   string
	LogJSON    bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DashboardTTL  time.Duration

	JWTSecret     string
	JWTExpiration time.Duration

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	PaymentCurrency       string

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	// Kafka
	KafkaBrokers           string
	KafkaLeadTopic         string
	KafkaFinanceTopic      string
	KafkaNotificationTopic string
	KafkaGroupID           string

	DLQRetryInterval   time.Duration
	DLQMaxRetries      int
	OverdueSweepEvery  time.Duration
	BillingTimezone    string
	CORSAllowedOrigins string
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_JSON", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "enrollment_crm")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DASHBOARD_CACHE_TTL", 60*time.Second)

	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRATION", 12*time.Hour)

	v.SetDefault("PAYMENT_CURRENCY", "BRL")

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)

	// Kafka settings (comma-separated brokers, empty disables events)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_LEAD_TOPIC", "crm.leads")
	v.SetDefault("KAFKA_FINANCE_TOPIC", "crm.finance")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "crm.notifications")
	v.SetDefault("KAFKA_GROUP_ID", "enrollment-crm")

	v.SetDefault("DLQ_RETRY_INTERVAL", 5*time.Minute)
	v.SetDefault("DLQ_MAX_RETRIES", 5)
	v.SetDefault("OVERDUE_SWEEP_INTERVAL", time.Hour)
	v.SetDefault("BILLING_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
}

// LoadConfig reads the first .env it finds, then layers the process
// environment over the defaults.
func LoadConfig() {
	envLocations := []string{
		".env",
		"config/.env",
		"../config/.env",
		"../../config/.env",
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	return Config{
		Env:        v.GetString("ENV"),
		ServerAddr: v.GetString("SERVER_ADDR"),
		LogLevel:   v.GetString("LOG_LEVEL"),
		LogJSON:    v.GetBool("LOG_JSON"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		DashboardTTL:  v.GetDuration("DASHBOARD_CACHE_TTL"),

		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTExpiration: v.GetDuration("JWT_EXPIRATION"),

		RazorpayKeyID:         v.GetString("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     v.GetString("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: v.GetString("RAZORPAY_WEBHOOK_SECRET"),
		PaymentCurrency:       v.GetString("PAYMENT_CURRENCY"),

		SMTPHost:  v.GetString("SMTP_HOST"),
		SMTPPort:  v.GetInt("SMTP_PORT"),
		SMTPUser:  v.GetString("SMTP_USER"),
		SMTPPass:  v.GetString("SMTP_PASS"),
		EmailFrom: v.GetString("EMAIL_FROM"),

		KafkaBrokers:           v.GetString("KAFKA_BROKERS"),
		KafkaLeadTopic:         v.GetString("KAFKA_LEAD_TOPIC"),
		KafkaFinanceTopic:      v.GetString("KAFKA_FINANCE_TOPIC"),
		KafkaNotificationTopic: v.GetString("KAFKA_NOTIFICATION_TOPIC"),
		KafkaGroupID:           v.GetString("KAFKA_GROUP_ID"),

		DLQRetryInterval:   v.GetDuration("DLQ_RETRY_INTERVAL"),
		DLQMaxRetries:      v.GetInt("DLQ_MAX_RETRIES"),
		OverdueSweepEvery:  v.GetDuration("OVERDUE_SWEEP_INTERVAL"),
		BillingTimezone:    v.GetString("BILLING_TIMEZONE"),
		CORSAllowedOrigins: v.GetString("CORS_ALLOWED_ORIGINS"),
	}
}

// GetDBConnString renders the lib/pq keyword/value DSN.
func GetDBConnString() string {
	return AppConfig.DBConnString()
}

func (c Config) DBConnString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + sslMode
}

// KafkaBrokerList splits KafkaBrokers, dropping blanks.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Location resolves BillingTimezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.BillingTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.BillingTimezone)
	if err != nil {
		log.Printf("Unknown BILLING_TIMEZONE %q, using UTC: %v", c.BillingTimezone, err)
		return time.UTC
	}
	return loc
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
