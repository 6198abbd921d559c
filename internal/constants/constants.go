// Package constants provides named constants used throughout the causalloop codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Node value domain constants
const (
	// MinNodeValue is the lower bound of every node value.
	MinNodeValue = 0.0

	// MaxNodeValue is the upper bound of every node value.
	MaxNodeValue = 100.0

	// DefaultNodeValue is assigned to nodes that appear only as edge endpoints.
	DefaultNodeValue = 50.0

	// DefaultPerturbationAmount is the step used by increase/decrease when a
	// value line does not specify one.
	DefaultPerturbationAmount = 5.0
)

// Propagation constants
const (
	// DefaultDampingFactor is the share of influence withheld on every step.
	// Only (1 - damping) of an edge's influence reaches its target.
	DefaultDampingFactor = 0.9

	// DefaultStepDelayMs is the pause between scheduled simulation steps.
	DefaultStepDelayMs = 500

	// InfluenceScale scales damped influence before it is added to a target.
	InfluenceScale = 0.1

	// ChangeThreshold is the minimum absolute change for a node to count as changed.
	// Smaller moves are treated as noise and are not committed.
	ChangeThreshold = 0.1

	// ActiveEdgeThreshold is the minimum |damped influence| for an edge to be
	// reported as active in a step.
	ActiveEdgeThreshold = 0.1
)

// Builder constants
const (
	// DefaultConnectionMultiplier is the multiplier of a freshly added builder connection.
	DefaultConnectionMultiplier = 0.5

	// NodeLabelPrefix prefixes auto-generated builder node labels ("Node1", "Node2", ...).
	NodeLabelPrefix = "Node"
)

// File and directory names
const (
	// ConfigDirName is the per-user configuration directory under $HOME.
	ConfigDirName = ".causalloop"

	// ConfigFileName is the YAML configuration file inside ConfigDirName.
	ConfigFileName = "config.yaml"

	// TraceFileName is the JSONL simulation trace written at debug level.
	TraceFileName = "steps.jsonl"
)
