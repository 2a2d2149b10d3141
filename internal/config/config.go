package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string       `yaml:"env" env-default:"local"`
	Issuer      string       `yaml:"issuer" env-required:"true"`
	StoragePath string       `yaml:"conn_string"`
	HTTP        HTTPConfig   `yaml:"http" env-required:"true"`
	Redis       RedisConfig  `yaml:"redis"`
	Tokens      TokenConfig  `yaml:"tokens" env-required:"true"`
	Signer      SignerConfig `yaml:"signer"`
}

type HTTPConfig struct {
	Port    int           `yaml:"port" env-default:"8080"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TokenConfig carries every credential lifetime and the rotation policy.
// Deployments disagree on these values, so none of them are hard-coded.
type TokenConfig struct {
	AccessTokenTTL       time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_ttl" env-default:"720h"`
	AuthorizationCodeTTL time.Duration `yaml:"authorization_code_ttl" env-default:"10m"`
	CodeRetention        time.Duration `yaml:"code_retention" env-default:"1m"`
	RotationEnabled      bool          `yaml:"rotation_enabled" env-default:"true"`
}

type SignerConfig struct {
	Mode    string `yaml:"mode" env-default:"local"`
	KeyPath string `yaml:"key_path"`
	KeyID   string `yaml:"key_id" env-default:"1"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config path does not exist: " + path)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// Priority: flag > env > default
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
