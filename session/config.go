package session

import "time"

// Config configures a Session at construction.
type Config struct {
	MaxAgents          int
	MaxConcurrentTasks int
	CheckpointInterval time.Duration
	AutoCheckpoint     bool
	PersistToDisk      bool
	MaxCheckpoints     int
}

func (c *Config) setDefaults() {
	if c.MaxAgents <= 0 {
		c.MaxAgents = 10
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 3
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = time.Minute
	}
	if c.MaxCheckpoints <= 0 {
		c.MaxCheckpoints = 20
	}
}
