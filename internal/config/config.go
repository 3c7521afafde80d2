package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "mocap.cfg.json"

// StorageConfig selects and configures the recording storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	File     FileConfig     `json:"file" mapstructure:"file"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// FileConfig holds filesystem storage backend settings
type FileConfig struct {
	Root  string `json:"root" mapstructure:"root"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings. An empty Path keeps the
// database in memory with periodic dumps to DumpPath.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// DSN returns the connection string for the postgres driver.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// RecorderConfig holds recording and progress reporting settings
type RecorderConfig struct {
	NamePrefix       string        `json:"namePrefix" mapstructure:"namePrefix"`
	ProgressEvery    int           `json:"progressEvery" mapstructure:"progressEvery"`
	ProgressInterval time.Duration `json:"progressInterval" mapstructure:"progressInterval"`
}

// PlaybackConfig holds playback settings
type PlaybackConfig struct {
	Looping bool `json:"looping" mapstructure:"looping"`
}

// MonitorConfig holds periodic status reporting settings
type MonitorConfig struct {
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusPath string        `json:"statusPath" mapstructure:"statusPath"`
}

// GraylogConfig holds the optional GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// VideoConfig holds video capture settings
type VideoConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	OutputFolder string `json:"outputFolder" mapstructure:"outputFolder"`
	FFmpegPath   string `json:"ffmpegPath" mapstructure:"ffmpegPath"`
	InputFormat  string `json:"inputFormat" mapstructure:"inputFormat"`
	Input        string `json:"input" mapstructure:"input"`
	FrameRate    int    `json:"frameRate" mapstructure:"frameRate"`
}

// APIConfig holds upload client and catalog server settings
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
	Listen    string `json:"listen" mapstructure:"listen"`
	RateLimit int    `json:"rateLimit" mapstructure:"rateLimit"`
}

// InfluxConfig holds InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// ServerURL returns the InfluxDB base URL.
func (c InfluxConfig) ServerURL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./mocaplogs")

	viper.SetDefault("recorder.namePrefix", "Recording")
	viper.SetDefault("recorder.progressEvery", 30)
	viper.SetDefault("recorder.progressInterval", "1s")
	viper.SetDefault("playback.looping", true)

	viper.SetDefault("video.enabled", false)
	viper.SetDefault("video.outputFolder", "./videos")
	viper.SetDefault("video.ffmpegPath", "ffmpeg")
	viper.SetDefault("video.inputFormat", "v4l2")
	viper.SetDefault("video.input", "/dev/video0")
	viper.SetDefault("video.frameRate", 30)

	viper.SetDefault("api.serverUrl", "http://localhost:5000/api")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.listen", "127.0.0.1:8090")
	viper.SetDefault("api.rateLimit", 60)

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.file.root", "./recordings")
	viper.SetDefault("storage.file.watch", true)
	viper.SetDefault("storage.memory.outputDir", "./exports")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./mocap.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "mocap")
	viper.SetDefault("storage.postgres.sslMode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "mocap-metrics")
	viper.SetDefault("influx.bucket", "mocap")
	viper.SetDefault("influx.backupPath", "./mocaplogs/influx_backup.lp.gz")

	viper.SetDefault("monitor.interval", "5s")
	viper.SetDefault("monitor.statusPath", "./mocaplogs/status.json")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mocap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		File: FileConfig{
			Root:  viper.GetString("storage.file.root"),
			Watch: viper.GetBool("storage.file.watch"),
		},
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslMode"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetRecorderConfig returns recording settings.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		NamePrefix:       viper.GetString("recorder.namePrefix"),
		ProgressEvery:    viper.GetInt("recorder.progressEvery"),
		ProgressInterval: viper.GetDuration("recorder.progressInterval"),
	}
}

// GetPlaybackConfig returns playback settings.
func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Looping: viper.GetBool("playback.looping"),
	}
}

// GetMonitorConfig returns status reporting settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusPath: viper.GetString("monitor.statusPath"),
	}
}

// GetGraylogConfig returns the GELF log sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetVideoConfig returns video capture settings.
func GetVideoConfig() VideoConfig {
	return VideoConfig{
		Enabled:      viper.GetBool("video.enabled"),
		OutputFolder: viper.GetString("video.outputFolder"),
		FFmpegPath:   viper.GetString("video.ffmpegPath"),
		InputFormat:  viper.GetString("video.inputFormat"),
		Input:        viper.GetString("video.input"),
		FrameRate:    viper.GetInt("video.frameRate"),
	}
}

// GetAPIConfig returns upload client and catalog server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Listen:    viper.GetString("api.listen"),
		RateLimit: viper.GetInt("api.rateLimit"),
	}
}

// GetInfluxConfig returns InfluxDB telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}
