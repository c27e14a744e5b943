package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// register all transports (tcp, ipc, inproc, ws)
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// Bridge republishes bus messages on an NNG PUB socket so out-of-process
// dashboards can follow engine events. Each frame is "<topic>:<json>",
// which lets remote SUB sockets filter by topic prefix.
type Bridge struct {
	ps     *PubSub
	sock   mangos.Socket
	addr   string
	logger logging.Logger

	mu   sync.Mutex
	subs []*Subscription
	wg   sync.WaitGroup

	sent   uint64
	failed uint64
}

// NewBridge binds a PUB socket on addr (e.g. "tcp://*:9190")
func NewBridge(ps *PubSub, addr string, logger logging.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to bind PUB socket: %w", err)
	}
	return &Bridge{
		ps:     ps,
		sock:   sock,
		addr:   addr,
		logger: logger.With(logging.Component("event-bridge"), logging.String("addr", addr)),
	}, nil
}

// Run forwards the given topics until ctx is done
func (b *Bridge) Run(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		topics = AllTopics
	}
	for _, topic := range topics {
		s, err := b.ps.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.subs = append(b.subs, s)
		b.mu.Unlock()

		b.wg.Add(1)
		go b.forward(s)
	}
	b.logger.Info("event bridge publishing", logging.Count(len(topics)))

	<-ctx.Done()
	b.wg.Wait()
	return nil
}

func (b *Bridge) forward(s *Subscription) {
	defer b.wg.Done()
	for msg := range s.Channel() {
		frame, err := Frame(msg)
		if err != nil {
			b.logger.Warn("failed to encode event", logging.String("topic", msg.Topic), logging.Error(err))
			continue
		}
		b.mu.Lock()
		err = b.sock.Send(frame)
		if err != nil {
			b.failed++
		} else {
			b.sent++
		}
		b.mu.Unlock()
		if err != nil {
			b.logger.Warn("failed to publish event", logging.String("topic", msg.Topic), logging.Error(err))
		}
	}
}

// Stats returns the number of frames sent and failed
func (b *Bridge) Stats() (sent, failed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent, b.failed
}

// Close unsubscribes from the bus and closes the socket
func (b *Bridge) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
	b.wg.Wait()
	return b.sock.Close()
}

// Frame encodes a message as "<topic>:<json>"
func Frame(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append([]byte(msg.Topic+":"), data...), nil
}

// RemoteMessage is a decoded bridge frame with a raw payload
type RemoteMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

const recvPoll = 250 * time.Millisecond

// Listener receives bridge frames from a remote engine
type Listener struct {
	sock mangos.Socket
}

// Dial connects a SUB socket to a bridge, filtered to topics (all when empty)
func Dial(addr string, topics ...string) (*Listener, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if len(topics) == 0 {
		if err := sock.SetOption(mangos.OptionSubscribe, []byte{}); err != nil {
			sock.Close()
			return nil, err
		}
	}
	for _, t := range topics {
		if err := sock.SetOption(mangos.OptionSubscribe, []byte(t+":")); err != nil {
			sock.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", t, err)
		}
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to connect to event bridge: %w", err)
	}
	return &Listener{sock: sock}, nil
}

// Recv blocks for the next frame, honouring ctx between receive deadlines
func (l *Listener) Recv(ctx context.Context) (RemoteMessage, error) {
	if err := l.sock.SetOption(mangos.OptionRecvDeadline, recvPoll); err != nil {
		return RemoteMessage{}, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return RemoteMessage{}, err
		}
		frame, err := l.sock.Recv()
		if err == mangos.ErrRecvTimeout {
			continue
		}
		if err != nil {
			return RemoteMessage{}, err
		}
		return ParseFrame(frame)
	}
}

// Close closes the socket
func (l *Listener) Close() error {
	return l.sock.Close()
}

// ParseFrame decodes a "<topic>:<json>" frame
func ParseFrame(frame []byte) (RemoteMessage, error) {
	i := bytes.IndexByte(frame, ':')
	if i < 0 {
		return RemoteMessage{}, fmt.Errorf("invalid event frame: missing topic prefix")
	}
	var m RemoteMessage
	if err := json.Unmarshal(frame[i+1:], &m); err != nil {
		return RemoteMessage{}, fmt.Errorf("invalid event frame: %w", err)
	}
	m.Topic = string(frame[:i])
	return m, nil
}
