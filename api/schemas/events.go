package schemas

import "time"

// EventTopic names an exploration event stream.
type EventTopic string

const (
	TopicNodeDiscovered  EventTopic = "node.discovered"
	TopicEdgeRecorded    EventTopic = "edge.recorded"
	TopicActionPerformed EventTopic = "action.performed"
	TopicSessionReset    EventTopic = "session.reset"
	TopicSessionFinished EventTopic = "session.finished"
)

// NodeEvent is published when a new node is added to the journal.
type NodeEvent struct {
	SessionID string    `json:"session_id"`
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	Actions   int       `json:"actions"`
	Timestamp time.Time `json:"timestamp"`
}

// EdgeEvent is published when an edge is committed.
type EdgeEvent struct {
	SessionID string    `json:"session_id"`
	Head      int       `json:"head"`
	Tail      int       `json:"tail"`
	Action    string    `json:"action"`
	Kind      string    `json:"kind"`
	Rect      Rect      `json:"rect"`
	Replaced  bool      `json:"replaced"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionEvent is published after an action was performed on the device.
type ActionEvent struct {
	SessionID string    `json:"session_id"`
	Node      int       `json:"node"`
	Action    string    `json:"action"`
	Kind      string    `json:"kind"`
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// ResetEvent is published whenever the device is restored to the initial
// snapshot.
type ResetEvent struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEvent summarizes a finished session.
type SessionEvent struct {
	SessionID string        `json:"session_id"`
	Policy    string        `json:"policy"`
	Reason    string        `json:"reason"`
	Nodes     int           `json:"nodes"`
	Edges     int           `json:"edges"`
	Resets    int           `json:"resets"`
	Actions   int           `json:"actions"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}
