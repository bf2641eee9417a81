package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/leadflowhq/leadflow/agent"
	"github.com/leadflowhq/leadflow/config"
	"github.com/leadflowhq/leadflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("postgres-url", "postgres://localhost:5432/leadflow", "postgres connection url")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "leadflow", "namespace used for outbound queues")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "postgres", "implementation of underline storage")
	cmd.Flags().Int("poll-interval", 60, "seconds between step processor polls")
	cmd.Flags().Int("process-batch-size", 10, "max executions claimed per poll")
	cmd.Flags().Int("template-cache-ttl", 300, "template cache ttl in seconds")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.PostgresConfig.URL = viper.GetString("postgres-url")
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.PollIntervalSec = viper.GetInt("poll-interval")
	c.cfg.ProcessBatchSize = viper.GetInt("process-batch-size")
	c.cfg.TemplateCacheTTL = viper.GetInt("template-cache-ttl")
	if viper.GetBool("debug") {
		logger.SetDebug()
	}
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	if err := agent.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "leadflow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
