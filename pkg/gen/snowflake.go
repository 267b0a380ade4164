package gen

import (
	"fmt"

	"rewards-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewSnowflakeNode),
)

// NewSnowflakeNode builds the id generator for SNOWFLAKE_NODE. Every replica writing to
// the same database needs its own node number.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	max := int64(-1 ^ (-1 << snowflake.NodeBits))
	if cfg.SnowflakeNode < 0 || cfg.SnowflakeNode > max {
		return nil, fmt.Errorf("SNOWFLAKE_NODE must be between 0 and %d, got %d", max, cfg.SnowflakeNode)
	}

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	zap.L().Info("snowflake node ready", zap.Int64("node", cfg.SnowflakeNode))
	return node, nil
}
