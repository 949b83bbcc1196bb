package cmd

import (
	"errors"
	"log"

	"github.com/spigell/cv-ranker/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "cv-ranker"
)

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-ranker indexes CVs and ranks them against a job description",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-ranker.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "a dotenv file with credentials, skipped when missing")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("job", "", "job description document (pdf, txt or md)")
	rootCmd.PersistentFlags().String("cv-dir", "", "directory with CV documents")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("job-description", rootCmd.PersistentFlags().Lookup("job"))
	viper.BindPFlag("sources.dir", rootCmd.PersistentFlags().Lookup("cv-dir"))
}

func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		log.Fatal(err)
	}

	config.SetDefaults(viper.GetViper())
	if err := config.BindEnv(viper.GetViper()); err != nil {
		log.Fatal(err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}
