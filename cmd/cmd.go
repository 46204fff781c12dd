package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/bookkeeping/internal"
)

var (
	configFile string
	clearData  bool
)

var rootCmd = &cobra.Command{
	Use:           "bookkeeping",
	Short:         "Bookkeeping",
	Long:          `Transaction workflow, payer settlement and reimbursement service for small businesses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// usesEnvConfig reports whether the process runs in a container, where config.yml is not shipped.
func usesEnvConfig() bool {
	return os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true"
}

// loadConfig reads config.yml from dir (or --config), overlaid by ENV_* variables.
func loadConfig(dir string) (*internal.Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	if usesEnvConfig() {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid environment config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", configName(v, dir), err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configName(v, dir), err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func configName(v *viper.Viper, dir string) string {
	if used := v.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(dir, "config.yml")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yml)")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd, migrateCmd, seedCmd)
}
