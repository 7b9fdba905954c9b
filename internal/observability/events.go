package observability

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

const (
	RoutingMessageSent  = "chat_events.message_sent"
	RoutingMessagesRead = "chat_events.messages_read"
	RoutingSupportSent  = "support_events.message_sent"
	RoutingSupportRead  = "support_events.messages_read"
	RoutingWSChats      = "ws_events.conversations"
	RoutingWSSupport    = "ws_events.support"
	EventTypeChat       = "chat_events"
	EventTypeSupport    = "support_events"
	EventTypeWS         = "ws_events"
)
