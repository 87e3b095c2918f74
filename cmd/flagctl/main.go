package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/darkden-lab/relay/internal/config"
	"github.com/darkden-lab/relay/internal/featureflag"
)

// openFunc connects to the flag store. The returned func releases it.
type openFunc func() (*featureflag.RedisSource, func(), error)

func main() {
	if err := newRootCmd(openRedisSource).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open openFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flagctl",
		Short: "Flip relay runtime feature flags stored in Redis",
		Long: `flagctl edits the Redis sets relay servers read their runtime flags from.
Servers cache flag state, so a change reaches every process within FEATURE_FLAG_CACHE_TTL.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newEnableCmd(open),
		newDisableCmd(open),
		newCheckCmd(open),
	)
	return rootCmd
}

func openRedisSource() (*featureflag.RedisSource, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return featureflag.NewRedisSource(client, cfg.FeatureFlagCacheTTL), func() { _ = client.Close() }, nil
}
