// Package config loads the TOML server settings and layers CLI flag
// overrides on top, mirroring the original source's toml-file-plus-clap
// precedence (flags win when set; otherwise the file value stands).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"
)

// ServerSetting is the [server_setting] TOML table.
type ServerSetting struct {
	ServerIP      string `toml:"server_ip"`
	Port          string `toml:"port"`
	SQLIP         string `toml:"sql_ip"`
	SQLAccount    string `toml:"sql_account"`
	SQLPassword   string `toml:"sql_password"`
}

// Ambient is the expanded ambient section this repo adds on top of the
// spec's minimal key set: worker counts, tick interval and the dedup
// window, all with sane defaults if the file omits them.
type Ambient struct {
	OutboundWorkers    int `toml:"outbound_workers"`
	TickIntervalMS     int `toml:"tick_interval_ms"`
	DedupWindowSeconds int `toml:"dedup_window_seconds"`
}

// ModeSetting is one [modes.<name>] table: the full team size the
// matchmaker fills before promoting a pairing to prestart.
type ModeSetting struct {
	TeamSize int  `toml:"team_size"`
	Ranked   bool `toml:"ranked"`
}

type fileSettings struct {
	ServerSetting *ServerSetting         `toml:"server_setting"`
	Ambient       *Ambient               `toml:"ambient"`
	Modes         map[string]ModeSetting `toml:"modes"`
}

// Config is the fully resolved, flag-overridden configuration.
type Config struct {
	ServerIP          string
	Port              string
	SQLIP             string
	SQLAccount        string
	SQLPassword       string
	ClientIdentifier  string
	Backup            bool

	OutboundWorkers    int
	TickIntervalMS     int
	DedupWindowSeconds int

	Modes map[string]ModeSetting
}

func defaultAmbient() Ambient {
	return Ambient{OutboundWorkers: 8, TickIntervalMS: 500, DedupWindowSeconds: 60}
}

func defaultModes() map[string]ModeSetting {
	return map[string]ModeSetting{
		"ng1v1": {TeamSize: 1, Ranked: true},
		"ng4v4": {TeamSize: 4, Ranked: true},
	}
}

// Load reads path (a TOML file) and overlays flags parsed from args (which
// should NOT include the program name — pass os.Args[1:]).
func Load(path string, args []string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var fs fileSettings
	if _, err := toml.Decode(string(data), &fs); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fs.ServerSetting == nil {
		return nil, fmt.Errorf("config file %s missing [server_setting]", path)
	}
	ambient := defaultAmbient()
	if fs.Ambient != nil {
		if fs.Ambient.OutboundWorkers > 0 {
			ambient.OutboundWorkers = fs.Ambient.OutboundWorkers
		}
		if fs.Ambient.TickIntervalMS > 0 {
			ambient.TickIntervalMS = fs.Ambient.TickIntervalMS
		}
		if fs.Ambient.DedupWindowSeconds > 0 {
			ambient.DedupWindowSeconds = fs.Ambient.DedupWindowSeconds
		}
	}

	modes := fs.Modes
	if len(modes) == 0 {
		modes = defaultModes()
	}

	cfg := &Config{
		ServerIP:           fs.ServerSetting.ServerIP,
		Port:               fs.ServerSetting.Port,
		SQLIP:              fs.ServerSetting.SQLIP,
		SQLAccount:         fs.ServerSetting.SQLAccount,
		SQLPassword:        fs.ServerSetting.SQLPassword,
		ClientIdentifier:   "Elo Rank Server",
		OutboundWorkers:    ambient.OutboundWorkers,
		TickIntervalMS:     ambient.TickIntervalMS,
		DedupWindowSeconds: ambient.DedupWindowSeconds,
		Modes:              modes,
	}

	fset := flag.NewFlagSet("erps", flag.ContinueOnError)
	server := fset.StringP("server", "S", "", "MQTT server address")
	port := fset.StringP("port", "P", "", "MQTT server port")
	username := fset.StringP("username", "u", "", "Login user name")
	password := fset.StringP("password", "p", "", "Password")
	clientID := fset.StringP("client-identifier", "i", "", "Client identifier")
	backup := fset.BoolP("backup", "b", false, "run as backup instance")
	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if *server != "" {
		cfg.ServerIP = *server
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *username != "" {
		cfg.SQLAccount = *username
	}
	if *password != "" {
		cfg.SQLPassword = *password
	}
	if *clientID != "" {
		cfg.ClientIdentifier = *clientID
	}
	cfg.Backup = *backup

	return cfg, nil
}

// MySQLDSN builds the data source name for the go-sql-driver/mysql driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:3306)/erps?parseTime=true", c.SQLAccount, c.SQLPassword, c.SQLIP)
}

// BrokerURL builds the tcp:// URL paho.mqtt.golang expects.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%s", c.ServerIP, c.Port)
}
