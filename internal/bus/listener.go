package bus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
	"github.com/sweeney/babylog/internal/debounce"
	"github.com/sweeney/babylog/internal/dispatch"
	"github.com/sweeney/babylog/internal/status"
)

// inboundBuffer absorbs broker bursts while the previous message is
// being appended.
const inboundBuffer = 64

// Resolver is the slice of the mapping table the listener needs.
type Resolver interface {
	Resolve(ctx context.Context, deviceID, buttonAction string) (*care.Mapping, error)
}

// Recorder is the session-reconciling append pipeline.
type Recorder interface {
	Record(ctx context.Context, d care.Draft) ([]care.Event, error)
}

// Listener runs the device-event pipeline:
// decode → debounce → mapping lookup → reconcile/append → fan-out.
type Listener struct {
	src      Source
	topics   []string
	filter   *debounce.Filter
	mappings Resolver
	recorder Recorder
	disp     *dispatch.Dispatcher
	tracker  *status.Tracker
	log      *zap.Logger

	inbound chan rawMessage
}

type rawMessage struct {
	topic      string
	payload    []byte
	receivedAt time.Time
}

// NewListener wires the pipeline. Nothing here is ambient: every
// collaborator is constructed by the caller and passed in.
func NewListener(src Source, topics []string, filter *debounce.Filter, mappings Resolver,
	recorder Recorder, disp *dispatch.Dispatcher, tracker *status.Tracker, log *zap.Logger) *Listener {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	return &Listener{
		src:      src,
		topics:   topics,
		filter:   filter,
		mappings: mappings,
		recorder: recorder,
		disp:     disp,
		tracker:  tracker,
		log:      log,
		inbound:  make(chan rawMessage, inboundBuffer),
	}
}

// Run subscribes and processes messages until ctx is canceled. Messages
// are handled one at a time: cancellation stops pulling new messages
// but never aborts an in-flight append.
func (l *Listener) Run(ctx context.Context) error {
	err := l.src.Subscribe(l.topics, func(topic string, payload []byte, receivedAt time.Time) {
		select {
		case l.inbound <- rawMessage{topic: topic, payload: payload, receivedAt: receivedAt}:
		default:
			// Bus delivery is fire-and-forget; dropping beats blocking
			// the transport callback.
			l.log.Warn("inbound queue full, dropping bus message", zap.String("topic", topic))
		}
	})
	if err != nil {
		return err
	}

	l.log.Info("bus listener started", zap.Strings("topics", l.topics))
	for {
		select {
		case <-ctx.Done():
			l.log.Info("bus listener stopping")
			return nil
		case raw := <-l.inbound:
			l.process(ctx, raw)
		}
	}
}

// process runs one raw message through the pipeline. Every failure mode
// is logged and dropped; nothing here can take the listener down.
func (l *Listener) process(ctx context.Context, raw rawMessage) {
	msg, err := Decode(raw.topic, raw.payload, raw.receivedAt)
	if err != nil {
		l.tracker.IncDecodeError()
		l.log.Debug("undecodable bus message dropped",
			zap.String("topic", raw.topic), zap.Error(err))
		return
	}
	if msg == nil {
		return
	}

	if !l.filter.Admit(msg.DeviceID, msg.ButtonAction, msg.Timestamp) {
		l.tracker.IncDebounced()
		l.log.Debug("debounced duplicate trigger",
			zap.String("device", msg.DeviceID), zap.String("action", msg.ButtonAction))
		return
	}

	mapping, err := l.mappings.Resolve(ctx, msg.DeviceID, msg.ButtonAction)
	if err != nil {
		l.log.Error("mapping lookup failed", zap.String("device", msg.DeviceID), zap.Error(err))
		return
	}
	if mapping == nil {
		l.tracker.IncUnmapped()
		l.log.Debug("no mapping for device trigger",
			zap.String("device", msg.DeviceID), zap.String("action", msg.ButtonAction))
		return
	}

	events, err := l.recorder.Record(ctx, care.Draft{
		Type:         mapping.CareAction,
		Timestamp:    msg.Timestamp,
		DeviceSource: msg.DeviceID,
	})

	// An auto-close may be persisted before a later append fails, so any
	// returned events are real rows and must reach subscribers even when
	// err is non-nil.
	for _, ev := range events {
		l.tracker.RecordEvent(ev)
		l.disp.Publish(ev)
		l.log.Info("device event recorded",
			zap.String("type", string(ev.Type)),
			zap.String("device", msg.DeviceID),
			zap.Bool("auto_closed", ev.AutoClosed),
			zap.Bool("orphan", ev.Orphan))
	}

	if err != nil {
		// Device-triggered writes are not requeued; the press is lost
		// and the operator sees why in the log.
		l.log.Error("failed to record device event",
			zap.String("device", msg.DeviceID),
			zap.String("action", string(mapping.CareAction)),
			zap.Error(err))
	}
}
