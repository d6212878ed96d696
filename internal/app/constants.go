package app

const (
	Name            = "meshmon"
	ConfigFilename  = "config.json"
	DBFilename      = "nodes.db"
	LogFilename     = "meshmon.log"
	WriterQueueSize = 512
)
