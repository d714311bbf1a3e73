package config

import (
	"fmt"
	"net/url"
)

type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled" env:"VFSD_DB_ENABLED" env-default:"false"`
	Host         string `yaml:"host" env:"VFSD_DB_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"VFSD_DB_PORT" env-default:"5432"`
	User         string `yaml:"user" env:"VFSD_DB_USER" env-default:"postgres"`
	Password     string `yaml:"password" env:"VFSD_DB_PASSWORD"`
	Name         string `yaml:"name" env:"VFSD_DB_NAME" env-default:"vfsd"`
	SSLMode      string `yaml:"sslmode" env-default:"disable"`
	ProcessTable string `yaml:"process_table" env-default:"processes"`
}

func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
