package config

import (
	"log"
	"os"
	"time"

	"github.com/google/shlex"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
	Providers struct {
		Script struct {
			Endpoint  string `yaml:"endpoint"`
			Model     string `yaml:"model"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"script"`
		TTS struct {
			Endpoint  string `yaml:"endpoint"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"tts"`
		Image struct {
			Endpoint  string `yaml:"endpoint"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"image"`
	} `yaml:"providers"`
	Pipeline struct {
		FanOut                 int     `yaml:"fan_out"`
		MaxRetries             int     `yaml:"max_retries"`
		BackoffBaseSeconds     int     `yaml:"backoff_base_seconds"`
		ProviderTimeoutSeconds int     `yaml:"provider_timeout_seconds"`
		MinSceneSeconds        float64 `yaml:"min_scene_seconds"`
	} `yaml:"pipeline"`
	Render struct {
		FPS               int     `yaml:"fps"`
		Width             int     `yaml:"width"`
		Height            int     `yaml:"height"`
		TransitionSeconds float64 `yaml:"transition_seconds"`
		FFBin             string  `yaml:"ff_bin"`
		ExtraEncoderArgs  string  `yaml:"extra_encoder_args"`
		WorkDir           string  `yaml:"work_dir"`
	} `yaml:"render"`
	Worker struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"worker"`
}

var AppConfig *Config

func InitConfig() {
	// .env is optional, real deployments inject env vars directly
	_ = godotenv.Load()

	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	AppConfig.ApplyDefaults()
}

// ApplyDefaults fills in the configurable pipeline/render policy values. The
// retry count and fan-out width are deliberately configuration, not constants.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Pipeline.FanOut <= 0 {
		c.Pipeline.FanOut = 3
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 2
	}
	if c.Pipeline.BackoffBaseSeconds <= 0 {
		c.Pipeline.BackoffBaseSeconds = 2
	}
	if c.Pipeline.ProviderTimeoutSeconds <= 0 {
		c.Pipeline.ProviderTimeoutSeconds = 90
	}
	if c.Pipeline.MinSceneSeconds <= 0 {
		c.Pipeline.MinSceneSeconds = 2.0
	}
	if c.Render.FPS <= 0 {
		c.Render.FPS = 24
	}
	if c.Render.Width <= 0 {
		c.Render.Width = 1280
	}
	if c.Render.Height <= 0 {
		c.Render.Height = 720
	}
	if c.Render.TransitionSeconds <= 0 {
		c.Render.TransitionSeconds = 0.5
	}
	if c.Render.FFBin == "" {
		c.Render.FFBin = "ffmpeg"
	}
	if c.Render.WorkDir == "" {
		c.Render.WorkDir = "data/work"
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 5
	}
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Pipeline.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Pipeline.BackoffBaseSeconds) * time.Second
}

// ExtraEncoderArgList splits the configured extra encoder arguments the same
// way a shell would, so values like "-preset fast -crf 22" pass through intact.
func (c *Config) ExtraEncoderArgList() []string {
	if c.Render.ExtraEncoderArgs == "" {
		return nil
	}
	args, err := shlex.Split(c.Render.ExtraEncoderArgs)
	if err != nil {
		log.Printf("invalid extra_encoder_args %q: %v", c.Render.ExtraEncoderArgs, err)
		return nil
	}
	return args
}
