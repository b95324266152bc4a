package main

import (
	"fmt"
	"os"
	"strings"

	orientdb "github.com/jonasrmichel/orientdb-android"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func init() {
	// Bind command-line flags
	pflag.String("config", "", "Path to the configuration file")
	pflag.String("data-folder", "./data", "Path to the data folder")
	pflag.String("host-addr", "0.0.0.0:8080", "Host and port for the server")
	pflag.String("jwt-key", "", "Signing key for API tokens; empty disables authentication")

	f := pflag.CommandLine
	normalizeFunc := f.GetNormalizeFunc()
	f.SetNormalizeFunc(func(fs *pflag.FlagSet, name string) pflag.NormalizedName {
		result := normalizeFunc(fs, name)
		name = strings.ReplaceAll(string(result), "-", "_")
		return pflag.NormalizedName(name)
	})
}

func LoadConfig() error {
	// Set default values
	viper.SetDefault("host_addr", "0.0.0.0:8080")
	viper.SetDefault("data_folder", "./data")
	viper.SetDefault("jwt_key", "")
	viper.SetDefault("max_body_size", 1<<20)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Bind command-line flags to Viper
	viper.BindPFlags(pflag.CommandLine)

	// Bind environment variables
	viper.AutomaticEnv()

	// Read configuration file if specified
	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("orientdb.conf")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc")
	}

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Using defaults and command line/environment options\n     (%v)\n", err)
	}

	// Unmarshal configuration into struct
	var cfg orientdb.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unable to decode into struct, %v", err)
	}

	// Ensure the data folder exists
	dataFolder := viper.GetString("data_folder")
	if _, err := os.Stat(dataFolder); os.IsNotExist(err) {
		if err := os.MkdirAll(dataFolder, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create data folder: %v", err)
		}
	}

	orientdb.Configure(cfg)
	return nil
}

func configuredDataFolder() string {
	return viper.GetString("data_folder")
}

func configuredJWTKey() string {
	return viper.GetString("jwt_key")
}
