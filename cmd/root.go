package cmd

import (
	"fmt"
	"os"

	"github.com/dexhound/dexhound/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	     _           _                           _
	  __| | _____  _| |__   ___  _   _ _ __   __| |
	 / _' |/ _ \ \/ / '_ \ / _ \| | | | '_ \ / _' |
	| (_| |  __/>  <| | | | (_) | |_| | | | | (_| |
	 \__,_|\___/_/\_\_| |_|\___/ \__,_|_| |_|\__,_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dexhound",
	Short: "Sniffs out the timezone behind every Dexcom reading.",
	Long: LOGO + `dexhound merges Dexcom Studio exports, works out which UTC offset the
receiver's display clock was set to for every reading, and writes them out
as timezone-aware Tidepool data.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dexhound.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A missing .env is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".dexhound")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("dexhound")
	viper.AutomaticEnv()

	// Set default values for all keys
	viper.SetDefault("timezone", "")
	viper.SetDefault("changelog", "offset-changes.json")
	viper.SetDefault("summary", "")
	viper.SetDefault("output", "")
	viper.SetDefault("dbpath", "")
	viper.SetDefault("answers", "")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.dexhound.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
