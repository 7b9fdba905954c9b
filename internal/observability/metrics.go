package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "market_chat"

// Message lanes label the message counters.
const (
	LaneConversation = "conversation"
	LaneSupport      = "support"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	grpcServerHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grpc_server_handled_total",
		Help:      "Unary gRPC calls by service, method and code.",
	}, []string{"grpc_service", "grpc_method", "grpc_code"})

	wsActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_active_connections",
		Help:      "Open websocket subscriptions by room kind.",
	}, []string{"kind"})

	wsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_total",
		Help:      "Websocket lifecycle events by room kind.",
	}, []string{"kind", "event"})

	messagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Stored messages by lane and sender role.",
	}, []string{"lane", "role"})

	messagesReadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_read_total",
		Help:      "Messages stamped as read by lane.",
	}, []string{"lane"})

	conversationStartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_starts_total",
		Help:      "Successful create-or-get calls, new or reused conversation alike.",
	})

	amqpPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_publish_errors_total",
		Help:      "Events that failed to reach the broker.",
	})
)

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// splitFullMethod splits "/pkg.Service/Method".
func splitFullMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return "unknown", "unknown"
	}
	return service, method
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncMessageSent(lane, role string) {
	messagesSentTotal.WithLabelValues(lane, role).Inc()
}

func AddMessagesRead(lane string, n int64) {
	if n <= 0 {
		return
	}
	messagesReadTotal.WithLabelValues(lane).Add(float64(n))
}

func IncConversationStart() {
	conversationStartsTotal.Inc()
}
