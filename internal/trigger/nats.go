package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// DefaultSubject carries continuation requests.
const DefaultSubject = "esg.ingest.continue"

const flushTimeout = 5 * time.Second

// Connect dials NATS with reconnect logging.
func Connect(url, name string, extra ...nats.Option) (*nats.Conn, error) {
	log := zap.L().With(zap.String("component", "trigger.nats"))
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("nats async error", fields...)
		}),
	}
	opts = append(opts, extra...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "trigger: connect to nats %s", url)
	}
	return nc, nil
}

// NATS publishes continuation requests as JSON SourceRefs.
type NATS struct {
	nc      *nats.Conn
	subject string
}

// NewNATS returns a NATS trigger publishing on subject.
func NewNATS(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{nc: nc, subject: subject}
}

// InvokeAsync publishes ref and waits only for the server to accept it.
func (n *NATS) InvokeAsync(ctx context.Context, ref model.SourceRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return eris.Wrap(err, "trigger: marshal source ref")
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return eris.Wrapf(err, "trigger: publish %s", ref)
	}
	if err := n.nc.FlushTimeout(flushTimeout); err != nil {
		return eris.Wrapf(err, "trigger: flush %s", ref)
	}
	zap.L().Debug("continuation published",
		zap.String("subject", n.subject),
		zap.String("source", ref.String()),
	)
	return nil
}

// Consume queue-subscribes to subject and runs handler for each message, one
// at a time, until ctx is cancelled. Malformed messages and handler errors are
// logged and dropped.
func Consume(ctx context.Context, nc *nats.Conn, subject, queue string, handler Handler) error {
	if subject == "" {
		subject = DefaultSubject
	}
	log := zap.L().With(zap.String("component", "trigger.consumer"), zap.String("subject", subject))

	sub, err := nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var ref model.SourceRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			log.Warn("dropping malformed continuation", zap.Error(err), zap.ByteString("data", msg.Data))
			return
		}
		if err := handler(ctx, ref); err != nil {
			log.Error("continuation failed", zap.String("source", ref.String()), zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "trigger: subscribe %s", subject)
	}
	if err := nc.FlushTimeout(flushTimeout); err != nil {
		_ = sub.Unsubscribe()
		return eris.Wrapf(err, "trigger: flush subscription %s", subject)
	}
	log.Info("consuming continuations", zap.String("queue", queue))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return eris.Wrap(err, "trigger: drain subscription")
	}
	return nil
}
