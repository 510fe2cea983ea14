package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindAccessRequest tells the owner a correspondent is waiting for approval.
	KindAccessRequest = "access_request"
	// KindAccessDecision reports the outcome of an approval request.
	KindAccessDecision = "access_decision"
	// KindOTPCode carries a one-time code to the correspondent being verified.
	KindOTPCode = "otp_code"
	// KindOTPAudit summarizes an OTP event for the owner.
	KindOTPAudit = "otp_audit"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to correspondents over the out-of-band
// transport. Delivery is best effort; callers swallow errors.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Recorder captures sent messages for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message

	// Err, when set, is returned from Send to exercise the
	// failures-are-swallowed contract.
	Err error
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.Err
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// SentTo returns the messages addressed to the given destination.
func (r *Recorder) SentTo(destination string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Destination == destination {
			out = append(out, m)
		}
	}
	return out
}
