// Package bus implements the command notification bus (§4.8): a
// lightweight pub/sub over PostgreSQL LISTEN/NOTIFY. The published
// payload is only a notification; workers fetch the full command body
// separately over an authenticated channel.
package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Notification is the payload published for every issued command
// (§6 Bus protocol).
type Notification struct {
	ExecutionID int64  `json:"execution_id"`
	EventID     int64  `json:"event_id"`
	CommandID   string `json:"command_id"`
	Step        string `json:"step"`
	ServerURL   string `json:"server_url"`
}

// Envelope wraps a notification with the subject it was published on
// and a receive timestamp, mirroring the teacher's Event envelope.
type Envelope struct {
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes one received notification.
type Handler func(ctx context.Context, env Envelope) error

// Bus is a PostgreSQL NOTIFY/LISTEN backed pub/sub. Delivery is
// at-least-once with redelivery handled by the claim protocol, not by
// the bus itself: the bus's only job is to wake a worker up.
type Bus struct {
	db       *sql.DB
	listener *pq.Listener

	mu       sync.RWMutex
	handlers map[string][]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens a new database connection and builds a Bus over dsn.
func New(dsn string) (*Bus, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("bus: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bus: ping: %w", err)
	}
	return NewWithDB(db, dsn)
}

// NewWithDB builds a Bus reusing an existing *sql.DB for publishing,
// with its own pq.Listener connection for receiving.
func NewWithDB(db *sql.DB, dsn string) (*Bus, error) {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			fmt.Printf("bus: listener error: %v\n", err)
		}
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		db:       db,
		listener: listener,
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}

	b.wg.Add(1)
	go b.listen()

	return b, nil
}

// Publish sends a notification on subject via pg_notify.
func (b *Bus) Publish(ctx context.Context, subject string, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("bus: marshal notification: %w", err)
	}

	envelope := Envelope{Subject: subject, Payload: data, Timestamp: time.Now().UTC()}
	envelopeData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}

	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", subject, string(envelopeData)); err != nil {
		return fmt.Errorf("bus: notify: %w", err)
	}
	return nil
}

// Subscribe registers handler for subject, issuing LISTEN the first
// time a subject gains a handler.
func (b *Bus) Subscribe(subject string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.handlers[subject]) == 0 {
		if err := b.listener.Listen(subject); err != nil {
			return fmt.Errorf("bus: listen: %w", err)
		}
	}
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

// Unsubscribe removes every handler for subject and issues UNLISTEN.
func (b *Bus) Unsubscribe(subject string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, subject)
	if err := b.listener.Unlisten(subject); err != nil {
		return fmt.Errorf("bus: unlisten: %w", err)
	}
	return nil
}

// Close stops the listener goroutine and closes the listener
// connection. The caller owns and closes the *sql.DB passed to
// NewWithDB / returned implicitly by New.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.listener.Close()
}

func (b *Bus) listen() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return

		case notification := <-b.listener.Notify:
			if notification == nil {
				continue // connection lost, pq.Listener reconnects on its own
			}

			var env Envelope
			if err := json.Unmarshal([]byte(notification.Extra), &env); err != nil {
				env = Envelope{Subject: notification.Channel, Payload: json.RawMessage(notification.Extra), Timestamp: time.Now().UTC()}
			}

			b.mu.RLock()
			handlers := make([]Handler, len(b.handlers[notification.Channel]))
			copy(handlers, b.handlers[notification.Channel])
			b.mu.RUnlock()

			for _, h := range handlers {
				b.invoke(h, env)
			}

		case <-time.After(90 * time.Second):
			b.ping()
		}
	}
}

func (b *Bus) invoke(handler Handler, env Envelope) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := handler(ctx, env); err != nil {
			fmt.Printf("bus: handler error: %v\n", err)
		}
	}()
}

func (b *Bus) ping() {
	go func() {
		if err := b.listener.Ping(); err != nil {
			fmt.Printf("bus: ping error: %v\n", err)
		}
	}()
}

// Subjects returns every subject with at least one active handler.
func (b *Bus) Subjects() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for s := range b.handlers {
		out = append(out, s)
	}
	return out
}

// CallbackSubject builds the subject a worker's callback/result
// publish uses for requestID, per §6's {prefix}.{request_id} scheme.
func CallbackSubject(prefix, requestID string) string {
	return prefix + "." + requestID
}
