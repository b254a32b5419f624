package config

// Package config provides a reusable loader for alkanesd configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"alkanes/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for an alkanesd process. It mirrors
// the structure of the optional YAML files Load reads from
// cmd/alkanesd/config or config; the repository ships none, so the
// defaults set in setDefaults apply.
type Config struct {
	Node struct {
		RPCEndpoint  string `mapstructure:"rpc_endpoint" json:"rpc_endpoint"`
		RPCUser      string `mapstructure:"rpc_user" json:"rpc_user"`
		RPCPassword  string `mapstructure:"rpc_password" json:"rpc_password"`
		Network      string `mapstructure:"network" json:"network"`
		PollInterval int    `mapstructure:"poll_interval_ms" json:"poll_interval_ms"`
	} `mapstructure:"node" json:"node"`

	VM struct {
		FuelConstant    uint64 `mapstructure:"fuel_constant" json:"fuel_constant"`
		ModuleCacheSize int    `mapstructure:"module_cache_size" json:"module_cache_size"`
		DisableModCache bool   `mapstructure:"disable_mod_cache" json:"disable_mod_cache"`
	} `mapstructure:"vm" json:"vm"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	RPC struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"rpc" json:"rpc"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("node.rpc_endpoint", "http://127.0.0.1:8332")
	viper.SetDefault("node.network", "mainnet")
	viper.SetDefault("node.poll_interval_ms", 5000)
	viper.SetDefault("vm.fuel_constant", 100_000)
	viper.SetDefault("vm.module_cache_size", 256)
	viper.SetDefault("storage.db_path", "./data/alkanesd")
	viper.SetDefault("rpc.listen_addr", "127.0.0.1:8080")
	viper.SetDefault("metrics.listen_addr", "127.0.0.1:9090")
	viper.SetDefault("logging.level", "info")
}

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. The function uses the provided environment name to merge
// additional config files. If env is empty, only the default
// configuration is loaded.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	setDefaults()
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/alkanesd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("ALKANESD")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ALKANESD_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("ALKANESD_ENV", ""))
}
