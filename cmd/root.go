package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LAG-4/cafefinder/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `             __      __ _           _
  ___ __ _ / _| ___ / _(_)_ __   __| | ___ _ __
 / __/ _` + "`" + ` | |_ / _ \ |_| | '_ \ / _` + "`" + ` |/ _ \ '__|
| (_| (_| |  _|  __/  _| | | | | (_| |  __/ |
 \___\__,_|_|  \___|_| |_|_| |_|\__,_|\___|_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cafefinder",
	Short: "Aggregates dining offers across delivery and dining platforms.",
	Long: LOGO + `cafefinder scrapes and aggregates promotional offers for cafes and
restaurants from Zomato, Swiggy, and other platforms, ranks them, and serves
them over a small HTTP API.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cafefinder.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("dbpath", "", "cafefinder.sqlite", "Path to SQLite DB file")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".cafefinder")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.cafefinder.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default values for all keys
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.admin_token", "")
	viper.SetDefault("cache.ttl_minutes", 30)
	viper.SetDefault("cache.max_entries", 500)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("scraping.requests_per_minute", 6)
	viper.SetDefault("scraping.burst", 2)
	viper.SetDefault("scraping.max_parallel", 2)
	viper.SetDefault("scraping.timeout_seconds", 10)
	viper.SetDefault("scraping.global_timeout_seconds", 20)
	viper.SetDefault("providers.enabled", []string{"zomato", "swiggy"})

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
