// Package config loads the service configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"student-records-backend/log"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	TransportSMTP    = "smtp"
	TransportMailgun = "mailgun"
	TransportLog     = "log"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"dev"`
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":5000"`
	OpsAddr  string `yaml:"ops_addr" env:"OPS_ADDR" env-default:":6969"`

	// APIKey, when set, must be sent by clients in the x-api-key header.
	APIKey       string `yaml:"api_key" env:"API_KEY"`
	RequireAdmin bool   `yaml:"require_admin" env:"REQUIRE_ADMIN" env-default:"false"`

	Storage Storage `yaml:"storage"`
	Crypto  Crypto  `yaml:"crypto"`
	JWT     JWT     `yaml:"jwt"`
	Mail    Mail    `yaml:"mail"`
	AMQP    AMQP    `yaml:"amqp"`
}

type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongo"`
	MongoURI   string `yaml:"mongo_uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database   string `yaml:"database" env:"MONGO_DATABASE" env-default:"students"`
	SQLitePath string `yaml:"sqlite_path" env:"STORAGE_PATH" env-default:"storage/students.db"`
}

type Crypto struct {
	FieldSecret string `yaml:"field_secret" env:"BACKEND_SECRET_KEY" env-default:"backend_secret"`
	KeySalt     string `yaml:"key_salt" env:"FIELD_KEY_SALT" env-default:"student-records/field-codec"`
	Iterations  int    `yaml:"iterations" env:"FIELD_KEY_ITERATIONS" env-default:"210000"`
	// ClientKey decrypts values the browser client encrypted before sending.
	ClientKey string `yaml:"client_key" env:"CLIENT_KEY"`
	// Legacy enables reading values written in the old passphrase format.
	Legacy bool `yaml:"legacy" env:"FIELD_LEGACY_FORMAT" env-default:"true"`
}

type JWT struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET" env-default:"secret"`
	Issuer     string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"student-records"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"24h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-default:"720h"`
	ResetTTL   time.Duration `yaml:"reset_ttl" env:"JWT_RESET_TTL" env-default:"1h"`
}

type Mail struct {
	Transport   string `yaml:"transport" env:"MAIL_TRANSPORT" env-default:"smtp"`
	From        string `yaml:"from" env:"MAIL_FROM"`
	SMTPHost    string `yaml:"smtp_host" env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	SMTPPort    int    `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser    string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPass    string `yaml:"smtp_pass" env:"SMTP_PASS"`
	MailgunKey  string `yaml:"mailgun_key" env:"MAILGUN_API_KEY"`
	MailgunHost string `yaml:"mailgun_domain" env:"MAILGUN_DOMAIN"`
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:5173"`
	ClientURL   string `yaml:"client_url" env:"CLIENT_URL" env-default:"http://localhost:5173"`
}

type AMQP struct {
	URL      string `yaml:"url" env:"RABBITMQ_CONNSTRING"`
	Exchange string `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"students"`
}

// Load reads .env (if present), then path (if not empty), then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad reads the file named by CONFIG_PATH or the -config flag, if any,
// and exits on error.
func MustLoad() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		flags := flag.String("config", "", "path to the configuration file")
		flag.Parse()
		path = *flags
	}

	cfg, err := Load(path)
	if err != nil {
		log.Logger.Fatal("unable to load configuration", zap.Error(err), zap.String("path", path))
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Mail.Transport {
	case TransportSMTP, TransportLog:
	case TransportMailgun:
		if c.Mail.MailgunKey == "" || c.Mail.MailgunHost == "" {
			return errors.New("config: mailgun transport needs MAILGUN_API_KEY and MAILGUN_DOMAIN")
		}
	default:
		return fmt.Errorf("config: unknown mail transport %q", c.Mail.Transport)
	}

	if c.Crypto.FieldSecret == "" {
		return errors.New("config: BACKEND_SECRET_KEY is empty")
	}
	if c.JWT.Secret == "" {
		return errors.New("config: JWT_SECRET is empty")
	}

	return nil
}

// Sender returns the From address, falling back to the SMTP user like the
// original mailer did.
func (m Mail) Sender() string {
	if m.From != "" {
		return m.From
	}
	return fmt.Sprintf("Student Records <%s>", m.SMTPUser)
}

// DefaultSecrets reports whether the shipped development secrets are in use.
func (c *Config) DefaultSecrets() bool {
	return c.Crypto.FieldSecret == "backend_secret" || c.JWT.Secret == "secret"
}
