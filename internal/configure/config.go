package configure

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func checkErr(err error) {
	if err != nil {
		zap.S().Fatalw("config",
			"error", err,
		)
	}
}

func New() *Config {
	initLogging("info")

	config := viper.New()

	// Default config
	b, _ := json.Marshal(Default())
	tmp := viper.New()
	defaultConfig := bytes.NewReader(b)
	tmp.SetConfigType("json")
	checkErr(tmp.ReadConfig(defaultConfig))
	checkErr(config.MergeConfigMap(tmp.AllSettings()))

	pflag.String("config", "config.yaml", "Config file location")
	pflag.Bool("noheader", false, "Disable the startup header")
	pflag.String("input", "", "Source image to tile")
	pflag.String("output", "", "Where to write the tile archive")
	pflag.Int("tile-size", 0, "Edge length of a tile in pixels")

	pflag.Parse()
	checkErr(config.BindPFlags(pflag.CommandLine))

	// Flags with a nested home
	checkErr(config.BindPFlag("job.input.file", pflag.Lookup("input")))
	checkErr(config.BindPFlag("job.output.file", pflag.Lookup("output")))
	checkErr(config.BindPFlag("pyramid.tile_size", pflag.Lookup("tile-size")))

	// File
	config.SetConfigFile(config.GetString("config"))
	config.AddConfigPath(".")
	if err := config.ReadInConfig(); err == nil {
		checkErr(config.MergeInConfig())
	}

	bindEnvs(config, Config{})

	// Environment
	config.AutomaticEnv()
	config.SetEnvPrefix("DZ")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AllowEmptyEnv(true)

	// Print final config
	c := &Config{}
	checkErr(config.Unmarshal(&c))

	initLogging(c.Level)

	return c
}

func bindEnvs(config *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}
		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(config, v.Interface(), append(parts, tv)...)
		default:
			_ = config.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}

// Default returns the configuration used before file, flags and env are applied.
func Default() Config {
	c := Config{
		Level:      "info",
		ConfigFile: "config.yaml",
	}

	c.Worker.MaxConcurrency = 4
	c.Worker.MaxInitAttempts = 3
	c.Worker.Quality = 95

	c.Pyramid.TileSize = 512
	c.Pyramid.RetryAttempts = 1

	c.Health.Bind = "0.0.0.0:9200"
	c.Monitoring.Bind = "0.0.0.0:9100"

	return c
}

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	ConfigFile string `mapstructure:"config" json:"config"`
	NoHeader   bool   `mapstructure:"noheader" json:"noheader"`

	Worker struct {
		MaxConcurrency  int `mapstructure:"max_concurrency" json:"max_concurrency"`
		MaxInitAttempts int `mapstructure:"max_init_attempts" json:"max_init_attempts"`
		Quality         int `mapstructure:"quality" json:"quality"`
	} `mapstructure:"worker" json:"worker"`

	Pyramid struct {
		TileSize      int `mapstructure:"tile_size" json:"tile_size"`
		RetryAttempts int `mapstructure:"retry_attempts" json:"retry_attempts"`
	} `mapstructure:"pyramid" json:"pyramid"`

	Job struct {
		ID    string `mapstructure:"id" json:"id"`
		Input struct {
			File   string `mapstructure:"file" json:"file"`
			Bucket string `mapstructure:"bucket" json:"bucket"`
			Key    string `mapstructure:"key" json:"key"`
		} `mapstructure:"input" json:"input"`
		Output struct {
			File         string `mapstructure:"file" json:"file"`
			Bucket       string `mapstructure:"bucket" json:"bucket"`
			Prefix       string `mapstructure:"prefix" json:"prefix"`
			ACL          string `mapstructure:"acl" json:"acl"`
			CacheControl string `mapstructure:"cache_control" json:"cache_control"`
		} `mapstructure:"output" json:"output"`
	} `mapstructure:"job" json:"job"`

	Health struct {
		Bind    string `mapstructure:"bind" json:"bind"`
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
	} `mapstructure:"health" json:"health"`

	S3 struct {
		Region         string `mapstructure:"region" json:"region"`
		Endpoint       string `mapstructure:"endpoint" json:"endpoint"`
		AccessToken    string `mapstructure:"access_token" json:"access_token"`
		SecretKey      string `mapstructure:"secret_key" json:"secret_key"`
		ForcePathStyle bool   `mapstructure:"force_path_style" json:"force_path_style"`
	} `mapstructure:"s3" json:"s3"`

	Monitoring struct {
		Bind    string `mapstructure:"bind" json:"bind"`
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Labels  Labels `mapstructure:"labels" json:"labels"`
	} `mapstructure:"monitoring" json:"monitoring"`
}

type Labels []struct {
	Key   string `mapstructure:"key" json:"key"`
	Value string `mapstructure:"value" json:"value"`
}

func (l Labels) ToPrometheus() prometheus.Labels {
	mp := prometheus.Labels{}

	for _, v := range l {
		mp[v.Key] = v.Value
	}

	return mp
}
