package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-lichess-bot/internal/store"
)

const (
	wsWriteTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	board     *Board
	snapshots store.Snapshots
	logger    *zap.Logger
}

func NewServer(board *Board, snapshots store.Snapshots, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{board: board, snapshots: snapshots, logger: logger}
}

// Mount attaches the inspection routes to r.
func (s *Server) Mount(r *gin.Engine) {
	r.GET("/status", s.handleStatus)
	r.GET("/games/:id", s.handleGame)
	r.GET("/ws", s.handleWS)
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.Mount(r)
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status_server_listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Snapshot())
}

func (s *Server) handleGame(c *gin.Context) {
	if s.snapshots == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshots disabled"})
		return
	}
	snap, err := s.snapshots.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Warn("status_snapshot_load_failed", zap.String("game_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot unavailable"})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleWS pushes the status mirror after every change until the client goes away.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("status_ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	updates, unsubscribe := s.board.Subscribe()
	defer unsubscribe()

	ctx := conn.CloseRead(c.Request.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap := <-updates:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, snap)
			cancel()
			if err != nil {
				s.logger.Debug("status_ws_write_failed", zap.Error(err))
				return
			}
		}
	}
}
