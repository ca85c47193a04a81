package cli

import (
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the repository listing cache",
	}
	cmd.AddCommand(newCacheClearCmd(configPath))
	return cmd
}

func newCacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached repository listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			switch cfg.Cache.Type {
			case "", "none":
				logger.Info("No cache configured, nothing to clear")
				return nil
			case "file":
				if err := os.RemoveAll(cfg.Cache.Dir); err != nil {
					return err
				}
				logger.Info("Cache cleared", "dir", cfg.Cache.Dir)
				return nil
			case "redis":
				client := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
				defer client.Close()
				if err := client.FlushDB(ctx).Err(); err != nil {
					return err
				}
				logger.Info("Cache cleared", "addr", cfg.Cache.Addr)
				return nil
			}
			return nil
		},
	}
}
