package config

import (
	"time"
)

type AppConfig struct {
	Port           int           `yaml:"port" env:"VFSD_PORT" env-default:"8080"`
	DefaultTimeout time.Duration `yaml:"default_timeout" env-default:"5s"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"VFSD_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"VFSD_LOG_FORMAT" env-default:"pretty"` // pretty | json
}

type VFSConfig struct {
	MailboxSize int `yaml:"mailbox_size" env-default:"64"`

	// Processes registered at boot in addition to the ones loaded from the
	// database.
	Processes []ProcessConfig `yaml:"processes"`
}

type ProcessConfig struct {
	PID       int32  `yaml:"pid"`
	FatherPID int32  `yaml:"father_pid"`
	Owner     int32  `yaml:"owner"`
	Cmd       string `yaml:"cmd"`
}
