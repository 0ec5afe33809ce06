package mllp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7/pkg/hl7"
)

const (
	// DefaultReadTimeout is the idle read deadline applied to each connection.
	DefaultReadTimeout = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// MessageHandler is called for each received message. It returns the
// acknowledgment to send back, or nil to send nothing.
type MessageHandler func(ctx context.Context, msg *hl7.Message) *hl7.Message

// Config holds the listener settings.
type Config struct {
	Addr           string
	MaxMessageSize int
	ReadTimeout    time.Duration
	// ParseOptions are applied to every received message, e.g.
	// hl7.WithEncoding for non UTF-8 senders.
	ParseOptions []hl7.Option
}

// Server listens for HL7 messages over MLLP/TCP.
type Server struct {
	cfg      Config
	handler  MessageHandler
	logger   zerolog.Logger
	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a server that dispatches parsed messages to handler.
func NewServer(cfg Config, handler MessageHandler, logger zerolog.Logger) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("component", "mllp").Logger(),
		conns:   make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening. The accept loop runs in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mllp: failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("MLLP listener started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}

		s.trackConn(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	log := s.logger.With().
		Str("conn_id", uuid.New().String()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Logger()
	log.Debug().Msg("connection opened")
	defer log.Debug().Msg("connection closed")

	reader := NewReader(conn, s.cfg.MaxMessageSize)
	for {
		if s.ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		raw, err := reader.ReadMessage()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				// Idle connections are closed; a partial frame keeps reading.
				if reader.Buffered() == 0 {
					return
				}
				continue
			case errors.Is(err, ErrFrameTooLarge):
				log.Warn().Int("limit", s.cfg.MaxMessageSize).Msg("message exceeds max size, closing connection")
				return
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				return
			default:
				log.Debug().Err(err).Msg("read failed")
				return
			}
		}
		s.processMessage(conn, raw, log)
	}
}

func (s *Server) processMessage(conn net.Conn, raw []byte, log zerolog.Logger) {
	msg, err := hl7.ParseBytes(raw, s.cfg.ParseOptions...)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(raw)).Msg("parse error")
		return
	}
	controlID, _ := msg.Get("MSH.10")
	log.Info().Str("control_id", controlID).Msg("message received")

	resp := s.handler(s.ctx, msg)
	if resp == nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(FrameMessage([]byte(resp.String()))); err != nil {
		log.Error().Err(err).Msg("write failed")
	}
}

// DefaultHandler acknowledges every message with AA.
func DefaultHandler(opts *hl7.ACKOptions) MessageHandler {
	return func(_ context.Context, msg *hl7.Message) *hl7.Message {
		ack, err := msg.CreateACK(hl7.AckAccept, opts)
		if err != nil {
			return nil
		}
		return ack
	}
}
