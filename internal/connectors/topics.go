package connectors

const (
	TopicConnStatus     = "conn.status"
	TopicMessage        = "session.message"
	TopicNodeDiscovered = "node.discovered"
	TopicNodeUpdated    = "node.updated"
	TopicStats          = "device.stats"
	TopicNotice         = "session.notice"
)

// SessionTopics lists every topic the session manager publishes on.
var SessionTopics = []string{
	TopicConnStatus,
	TopicMessage,
	TopicNodeDiscovered,
	TopicNodeUpdated,
	TopicStats,
	TopicNotice,
}
