package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configFile string
	verbose    bool
)

// flagKeys maps flag names onto nested configuration keys. Flags not listed
// bind to their own name with dashes replaced by underscores.
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"data-dir":   "storage.data_dir",
	"upload-dir": "storage.upload_dir",
	"model":      "model.path",
	"ffmpeg":     "audio.ffmpeg_path",
	"addr":       "server.addr",
	"base-url":   "server.base_url",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "magictales",
	Short: "Emotion-aware storytelling from voice recordings",
	Long: `MagicTales listens to a short voice clip, detects one of eight emotions
from its cepstral features and tells a story written for that feeling.

Configuration is read from flags, MAGICTALES_* environment variables,
a magictales.yaml file and built-in defaults, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is ./magictales.yaml or ./configs/magictales.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "data",
		"directory holding the JSON stores")
	rootCmd.PersistentFlags().String("model", "models/ser_model.json",
		"path to the classifier model artifact")
	rootCmd.PersistentFlags().String("ffmpeg", "ffmpeg",
		"ffmpeg binary used for container formats")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	v := viper.GetViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "magictales"))
		}
		v.AddConfigPath("/etc/magictales")
		v.SetConfigName("magictales")
		v.SetConfigType("yaml")
	}

	configs.BindEnv(v)
	configs.SetDefaults(v)

	if err := v.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
		}
	} else if configFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", configFile, err)
		os.Exit(1)
	}
}

// initializeConfig binds flags after parsing and applies the log level
func initializeConfig(cmd *cobra.Command) error {
	v := viper.GetViper()
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	level := v.GetString("log_level")
	if verbose {
		level = "debug"
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	logging.SetLevel(parsed)
	return nil
}

func configKey(flag string) string {
	if key, ok := flagKeys[flag]; ok {
		return key
	}
	return strings.ReplaceAll(flag, "-", "_")
}

// bindFlags binds each cobra flag to its associated viper configuration
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := configKey(f.Name)

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(key) {
			val := v.Get(key)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				lastErr = err
			}
		}

		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}

		envVar := configs.EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		if err := v.BindEnv(key, envVar); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// loadConfig decodes the bound configuration
func loadConfig() (*configs.Config, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
