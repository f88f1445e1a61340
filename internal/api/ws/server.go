package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spotcore/exchange/internal/api/dto"
	"github.com/spotcore/exchange/internal/core"
	"github.com/spotcore/exchange/internal/domain"
)

const writeWait = 10 * time.Second

// Message is one outbound market-data event.
type Message struct {
	Stream string `json:"stream"`
	Symbol string `json:"symbol"`
	Data   any    `json:"data"`
}

// Server streams trades and depth updates produced by the engine over
// websocket connections.
type Server struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(eng *core.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		hub: NewHub(),
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	eng.OnTrade(func(t *domain.Trade) {
		s.hub.Broadcast(Message{Stream: "trade", Symbol: t.Symbol, Data: dto.ConvertTrade(t)})
	})
	eng.OnDepth(func(snap *domain.DepthSnapshot) {
		s.hub.Broadcast(Message{Stream: "depth", Symbol: snap.Symbol, Data: dto.ConvertDepth(snap)})
	})
	return s
}

// Handle upgrades the request and streams events until the client goes away.
// An optional symbol query filters the stream.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	symbol := r.URL.Query().Get("symbol")
	sub := s.hub.Subscribe(256)
	defer s.hub.Unsubscribe(sub)
	defer conn.Close()

	// Reader goroutine: we send only; it unblocks us when the peer closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			if symbol != "" && msg.Symbol != symbol {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
