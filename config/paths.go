package config

const (
	// Default file locations, overridable via CLI flags
	DefaultConfigPath  = "config.yaml"
	DefaultTargetsPath = "groups_to_sync.json"

	// Working set and log directories
	DefaultWorkingSetDir = "groups_users_sps"
	DefaultLogDir        = "logs"
)
