package trigger

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is the trigger payload; the worker re-reads the job row, so the
// id is all a delivery carries.
type Message struct {
	JobID string `json:"job_id"`
}

// Topology holds the three queue names derived from the base queue: main
// (consumed by workers, dead-letters to dlq), delay (per-message TTL,
// dead-letters back to main at due time), dlq (poison messages).
type Topology struct {
	Main  string
	Delay string
	DLQ   string
}

func NewTopology(queue string) Topology {
	return Topology{
		Main:  queue,
		Delay: queue + ".delay",
		DLQ:   queue + ".dlq",
	}
}

// Declare creates the queues. Both the trigger side and the worker side
// declare on startup so either can come up first; declarations are
// idempotent as long as the arguments match.
func (t Topology) Declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		t.DLQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// delay queue: per-message TTL, expired messages dead-letter into main
	if _, err := ch.QueueDeclare(
		t.Delay,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": t.Main,
		},
	); err != nil {
		return err
	}

	// main queue: rejected deliveries dead-letter into the DLQ
	if _, err := ch.QueueDeclare(
		t.Main,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": t.DLQ,
		},
	); err != nil {
		return err
	}
	return nil
}

// Trigger registers at-time signals through the delay queue. It is the
// primary wakeup mechanism; the periodic sweep backstops it, so every
// failure here is survivable.
//
// RabbitMQ only expires the message at the head of a queue, so a long
// delay parked in front of a short one holds the short one back. The
// sweep covers that gap too.
type Trigger struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	topo Topology
}

func New(url, queue string) (*Trigger, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	topo := NewTopology(queue)
	if err := topo.Declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Trigger{conn: conn, ch: ch, topo: topo}, nil
}

func (t *Trigger) Close() error {
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// ScheduleAt arranges a delivery of jobID at (or shortly after) the given
// time. Already-due jobs go straight to the main queue.
func (t *Trigger) ScheduleAt(ctx context.Context, jobID string, at time.Time) error {
	body, err := json.Marshal(Message{JobID: jobID})
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}

	queue := t.topo.Main
	if ttl := delayTTL(at, time.Now()); ttl != "" {
		queue = t.topo.Delay
		pub.Expiration = ttl
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return t.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		pub,
	)
}

// delayTTL renders the time-until-due as a RabbitMQ per-message TTL in
// milliseconds, empty when the job is already due.
func delayTTL(at, now time.Time) string {
	d := at.Sub(now)
	if d <= 0 {
		return ""
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
