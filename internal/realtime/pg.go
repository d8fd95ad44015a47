package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// NotificationConn is the part of *pgx.Conn used to LISTEN.
type NotificationConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGListener receives updates from the validation_requests trigger via LISTEN/NOTIFY.
type PGListener struct {
	*hub
	connect func(ctx context.Context) (NotificationConn, error)
	retry   time.Duration
}

// NewPGListener returns a listener that opens its own connection to databaseURL. Call Run to start
// receiving.
func NewPGListener(databaseURL string, lookup Lookup, logger *slog.Logger) *PGListener {
	return newPGListener(func(ctx context.Context) (NotificationConn, error) {
		conn, err := pgx.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}, lookup, logger)
}

func newPGListener(connect func(ctx context.Context) (NotificationConn, error), lookup Lookup, logger *slog.Logger) *PGListener {
	return &PGListener{hub: newHub(lookup, logger), connect: connect, retry: time.Second}
}

// Run listens until ctx is done, reconnecting after connection errors.
func (l *PGListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("realtime: listen connection lost, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.deliverPayload(n.Payload)
	}
}
