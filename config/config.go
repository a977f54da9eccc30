package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	db "libos/debug"
)

const CONFIG_ENV = "LIBOS_CONFIG"

type Treparent string

const (
	REPARENT_INIT     Treparent = "init"
	REPARENT_ANCESTOR Treparent = "ancestor"
)

type Config struct {
	InitPid     int       `yaml:"init_pid"`
	MaxPid      int       `yaml:"max_pid"`
	PidWrap     int       `yaml:"pid_wrap"`
	ReapHistory int       `yaml:"reap_history"`
	Reparent    Treparent `yaml:"reparent"`
	MaxTasks    int       `yaml:"max_tasks"`
	Cwd         string    `yaml:"cwd"`
}

func Default() *Config {
	return &Config{
		InitPid:     1,
		MaxPid:      32768,
		PidWrap:     300,
		ReapHistory: 1024,
		Reparent:    REPARENT_INIT,
		MaxTasks:    0,
		Cwd:         "/",
	}
}

func (cfg *Config) String() string {
	return fmt.Sprintf("&{ init:%v maxpid:%v wrap:%v reaphist:%v reparent:%v maxtasks:%v cwd:%v }",
		cfg.InitPid, cfg.MaxPid, cfg.PidWrap, cfg.ReapHistory, cfg.Reparent, cfg.MaxTasks, cfg.Cwd)
}

func (cfg *Config) Validate() error {
	if cfg.InitPid < 1 {
		return fmt.Errorf("init_pid %d < 1", cfg.InitPid)
	}
	if cfg.MaxPid <= cfg.InitPid {
		return fmt.Errorf("max_pid %d must exceed init_pid %d", cfg.MaxPid, cfg.InitPid)
	}
	if cfg.PidWrap <= cfg.InitPid || cfg.PidWrap > cfg.MaxPid {
		return fmt.Errorf("pid_wrap %d outside (%d, %d]", cfg.PidWrap, cfg.InitPid, cfg.MaxPid)
	}
	if cfg.ReapHistory < 1 {
		return fmt.Errorf("reap_history %d < 1", cfg.ReapHistory)
	}
	if cfg.Reparent != REPARENT_INIT && cfg.Reparent != REPARENT_ANCESTOR {
		return fmt.Errorf("unknown reparent policy %q", cfg.Reparent)
	}
	if cfg.MaxTasks < 0 {
		return fmt.Errorf("max_tasks %d < 0", cfg.MaxTasks)
	}
	return nil
}

// Read decodes the YAML file pn on top of the defaults, so a file only
// needs the keys it changes.
func Read(pn string) (*Config, error) {
	cfg := Default()
	file, err := os.Open(pn)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	d := yaml.NewDecoder(file)
	d.KnownFields(true)
	if err := d.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config %v: %v", pn, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %v: %v", pn, err)
	}
	db.DPrintf(db.CONFIG, "Read %v: %v", pn, cfg)
	return cfg, nil
}

// FromEnv reads the file named by LIBOS_CONFIG, or returns the defaults
// if it is unset.
func FromEnv() (*Config, error) {
	pn := os.Getenv(CONFIG_ENV)
	if pn == "" {
		return Default(), nil
	}
	return Read(pn)
}
