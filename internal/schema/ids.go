package schema

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

func init() {
	// 41 bits of milliseconds + 2 node bits + 10 sequence bits keeps every
	// id below 2^53 so documents stay readable by JSON number parsers.
	snowflake.NodeBits = 2
	snowflake.StepBits = 10
}

// IDGenerator hands out unique, time-ordered record ids.
type IDGenerator interface {
	NextID() int64
}

// SnowflakeGenerator generates snowflake ids for one node.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator creates a generator for node (0-3).
func NewSnowflakeGenerator(node int64) (*SnowflakeGenerator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to create id node %d: %w", node, err)
	}
	return &SnowflakeGenerator{node: n}, nil
}

// NextID implements IDGenerator.
func (g *SnowflakeGenerator) NextID() int64 {
	return g.node.Generate().Int64()
}
