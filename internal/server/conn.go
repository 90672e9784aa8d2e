package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/dispatch"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

const readBufferSize = 4096

// stream is a connected byte stream: a net.Conn or an adapted websocket.
type stream interface {
	io.Reader
	session.Conn
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// client binds one stream to its session and write pump.
type client struct {
	conn      stream
	sess      *session.Session
	writer    *session.Writer
	limiter   *rate.Limiter
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.sess.Close()
		c.writer.Close()
	})
}

// allow reports whether the client may send another frame.
func (c *client) allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// serve runs the read loop for one connection. Frames are dispatched in
// arrival order on this goroutine.
func (s *Server) serve(conn stream) {
	defer s.wg.Done()

	writer := session.NewWriter(conn, session.WriterConfig{
		QueueSize:    s.cfg.QueueSize,
		WriteTimeout: s.cfg.WriteTimeout,
	})
	sess := session.New(s.baseContext(), uuid.NewString(), conn.RemoteAddr().String(), writer)
	c := &client{
		conn:    conn,
		sess:    sess,
		writer:  writer,
		limiter: s.cfg.RateLimit.newLimiter(),
	}

	s.clients.Store(sess.ID(), c)
	s.count.Add(1)
	log := s.log.With(zap.String("session", sess.ID()), zap.String("remote_addr", sess.RemoteAddr()))
	log.Info("client connected")

	var readErr error
	defer func() {
		s.disconnect(c, voluntary(readErr))
	}()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(sess)
	}

	decoder := protocol.NewDecoder(s.cfg.MaxFrameSize)
	buf := make([]byte, readBufferSize)
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			msgs, decodeErr := decoder.Feed(buf[:n])
			for _, msg := range msgs {
				if !c.allow() {
					log.Warn("rate limit exceeded")
					return
				}
				s.dispatch(c, log, msg)
				if sess.Context().Err() != nil {
					return
				}
			}
			if decodeErr != nil {
				log.Warn("protocol error", zap.Error(decodeErr))
				return
			}
		}
		if err != nil {
			readErr = err
			if !voluntary(err) && sess.Context().Err() == nil {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
	}
}

// dispatch runs one command and reports its failure. Rejected input is only
// logged; refusals and collaborator failures also notify the client.
func (s *Server) dispatch(c *client, log *zap.Logger, msg protocol.Message) {
	ctx := c.sess.Context()
	err := s.deps.Dispatcher.Dispatch(ctx, c.sess, msg)
	if err == nil {
		return
	}

	cmd, _ := msg.Command()
	fields := []zap.Field{zap.String("command", cmd), zap.Error(err)}
	switch {
	case errors.Is(err, kephaslobby.ErrCollaborator):
		log.Error("command failed", fields...)
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.Canceled):
		log.Debug("command aborted", fields...)
		return
	default:
		log.Warn("command rejected", fields...)
	}

	if notice, ok := dispatch.NoticeFor(err); ok {
		if err := c.sess.Send(ctx, notice); err != nil {
			log.Debug("notice not delivered", zap.Error(err))
		}
	}
}

// disconnect removes the session and releases everything its player held.
func (s *Server) disconnect(c *client, voluntary bool) {
	c.close()
	s.clients.Delete(c.sess.ID())
	s.count.Add(-1)

	login, loggedIn := c.sess.Login()
	if loggedIn {
		s.deps.Players.Remove(login)
		if closed := s.deps.Games.CloseHostedBy(login); len(closed) > 0 {
			s.log.Info("closed games of departed host", zap.String("login", login), zap.Int("games", len(closed)))
		}
	}

	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(c.sess, voluntary)
	}
	s.log.Info("client disconnected",
		zap.String("session", c.sess.ID()),
		zap.String("login", login),
		zap.Bool("voluntary", voluntary),
	)
}

func voluntary(err error) bool {
	return errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
