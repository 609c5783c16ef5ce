package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Dialer opens the push channel; *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

type StreamConfig struct {
	URL           string
	ProgramID     solana.PublicKey
	Commitment    string
	Heartbeat     time.Duration
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	MaxReconnects int
	// ProgramAccounts 额外订阅 programSubscribe，直接推送账户数据
	ProgramAccounts bool
	DialTimeout     time.Duration
}

func DefaultStreamConfig(url string, programID solana.PublicKey) StreamConfig {
	return StreamConfig{
		URL:           url,
		ProgramID:     programID,
		Commitment:    "confirmed",
		Heartbeat:     30 * time.Second,
		ReconnectBase: time.Second,
		ReconnectCap:  30 * time.Second,
		MaxReconnects: 5,
		DialTimeout:   10 * time.Second,
	}
}

// ReconnectDelay returns min(base·2^attempt, cap).
func ReconnectDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

const writeWait = 10 * time.Second

// Stream 推送源：Disconnected → Connecting → Connected → Closing 状态机
type Stream struct {
	cfg     StreamConfig
	dialer  Dialer
	clock   clockwork.Clock
	handle  func(Message)
	onError func(error)

	mu        sync.Mutex
	state     State
	enabled   bool
	attempts  int
	gen       uint64
	conn      *websocket.Conn
	reconnect clockwork.Timer
	heartbeat chan struct{}
	subs      []uint64
}

type StreamOption func(*Stream)

func WithStreamClock(c clockwork.Clock) StreamOption {
	return func(s *Stream) { s.clock = c }
}

// WithErrorHandler receives ErrChannelClosed and ErrSubscriptionFailed.
func WithErrorHandler(fn func(error)) StreamOption {
	return func(s *Stream) { s.onError = fn }
}

func NewStream(cfg StreamConfig, dialer Dialer, handle func(Message), opts ...StreamOption) *Stream {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	s := &Stream{
		cfg:     cfg,
		dialer:  dialer,
		clock:   clockwork.NewRealClock(),
		handle:  handle,
		onError: func(error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Subscriptions returns the ids acknowledged on the current connection.
func (s *Stream) Subscriptions() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.subs...)
}

// Start is a no-op while the stream is already enabled.
func (s *Stream) Start() {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.attempts = 0
	s.mu.Unlock()
	s.connect()
}

func (s *Stream) connect() {
	s.mu.Lock()
	if !s.enabled || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.reconnect = nil
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	go s.dial(gen)
}

func (s *Stream) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	defer cancel()
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)

	s.mu.Lock()
	if gen != s.gen || !s.enabled {
		s.mu.Unlock()
		if conn != nil {
			closeNormal(conn)
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		logger.Debug("stream dial failed", zap.String("url", s.cfg.URL), zap.Error(err))
		s.closed(gen, websocket.CloseAbnormalClosure)
		return
	}
	s.state = StateConnected
	s.attempts = 0
	s.conn = conn
	s.subs = nil
	stop := make(chan struct{})
	s.heartbeat = stop
	s.mu.Unlock()

	logger.Info("stream connected", zap.String("url", s.cfg.URL))
	go s.ping(conn, stop)

	if err := s.subscribe(conn); err != nil {
		s.onError(fmt.Errorf("%w: %v", ErrSubscriptionFailed, err))
	}
	s.read(conn, gen)
}

type subscribeRequest struct {
	method string
	params []interface{}
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	program := s.cfg.ProgramID.String()
	commitment := map[string]string{"commitment": s.cfg.Commitment}
	reqs := []subscribeRequest{
		{"logsSubscribe", []interface{}{map[string][]string{"mentions": {program}}, commitment}},
	}
	if s.cfg.ProgramAccounts {
		reqs = append(reqs, subscribeRequest{
			"programSubscribe",
			[]interface{}{program, map[string]string{"encoding": "base64", "commitment": s.cfg.Commitment}},
		})
	}
	for _, r := range reqs {
		body, err := json2.EncodeClientRequest(r.method, r.params)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return fmt.Errorf("%s: %w", r.method, err)
		}
	}
	return nil
}

func (s *Stream) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Stream) read(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			s.closed(gen, code)
			return
		}

		msg := ParseMessage(data)
		s.mu.Lock()
		live := gen == s.gen && s.enabled
		if live && msg.Kind == MessageAck {
			s.subs = append(s.subs, msg.SubscriptionID)
		}
		s.mu.Unlock()
		if !live {
			return
		}

		switch msg.Kind {
		case MessageFailure:
			s.onError(msg.Err)
		case MessageAck:
			logger.Debug("stream subscribed", zap.Uint64("subscription", msg.SubscriptionID))
		case MessageDiscard:
		default:
			s.handle(msg)
		}
	}
}

// closed 处理连接关闭：非正常关闭且未超过重试上限时按指数退避重连
func (s *Stream) closed(gen uint64, code int) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
	s.subs = nil

	if !s.enabled {
		s.mu.Unlock()
		return
	}
	if code != websocket.CloseNormalClosure && s.attempts < s.cfg.MaxReconnects {
		s.attempts++
		delay := ReconnectDelay(s.attempts, s.cfg.ReconnectBase, s.cfg.ReconnectCap)
		s.reconnect = s.clock.AfterFunc(delay, s.connect)
		attempts := s.attempts
		s.mu.Unlock()
		logger.Warn("stream closed, reconnecting",
			zap.Int("code", code),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
		)
		return
	}
	attempts := s.attempts
	s.mu.Unlock()

	logger.Warn("stream closed", zap.Int("code", code), zap.Int("attempts", attempts))
	s.onError(fmt.Errorf("%w: code %d after %d attempts", ErrChannelClosed, code, attempts))
}

func (s *Stream) stopHeartbeatLocked() {
	if s.heartbeat != nil {
		close(s.heartbeat)
		s.heartbeat = nil
	}
}

// Stop 可重复调用；取消重连与心跳，仅在连接已打开或正在打开时发送正常关闭帧
func (s *Stream) Stop() {
	s.mu.Lock()
	s.enabled = false
	s.gen++
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.stopHeartbeatLocked()
	conn := s.conn
	s.conn = nil
	s.subs = nil
	if s.state == StateConnected || s.state == StateConnecting {
		s.state = StateClosing
	}
	s.mu.Unlock()

	if conn != nil {
		closeNormal(conn)
	}
	s.closeDone()
}

// closeDone 结束 Closing；关闭期间若再次 Start，connect 会因状态被跳过，此处补连
func (s *Stream) closeDone() {
	s.mu.Lock()
	if s.state == StateClosing {
		s.state = StateDisconnected
	}
	restart := s.enabled && s.state == StateDisconnected
	s.mu.Unlock()

	if restart {
		s.connect()
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
