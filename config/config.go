package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug               bool   `envconfig:"debug"`
	Port                int    `envconfig:"port" default:"8080"`
	Env                 string `envconfig:"env"`
	PostgresHost        string `envconfig:"postgres_host"`
	PostgresUser        string `envconfig:"postgres_user"`
	PostgresDB          string `envconfig:"postgres_db"`
	PostgresPort        int    `envconfig:"postgres_port"`
	PostgresPassword    string `envconfig:"postgres_password"`
	JWTSecret           string `envconfig:"jwt_secret"`
	DefaultPageSize     int    `envconfig:"default_page_size" default:"15"`
	MaxPageSize         int    `envconfig:"max_page_size" default:"100"`
	SendsPerMinute      uint   `envconfig:"sends_per_minute" default:"60"`
	SystemSafetyNotice  string `envconfig:"system_safety_notice" default:"Stay safe: never share passwords, payment details or verification codes in chat."`
	SystemChatNotice    string `envconfig:"system_chat_notice" default:"Messages are only visible to participants of this conversation."`
	FirebaseCredentials string `envconfig:"firebase_credentials"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("chatloop", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}
