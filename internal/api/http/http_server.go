package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spotcore/exchange/internal/api/dto"
	"github.com/spotcore/exchange/internal/core"
	"github.com/spotcore/exchange/internal/domain"
	"github.com/spotcore/exchange/internal/middleware"
)

// HTTPServer is the REST adapter: it translates wire requests into engine
// calls and engine results/errors back into the compatible wire format.
type HTTPServer struct {
	Eng       *core.Engine
	Log       *zap.Logger
	RateLimit time.Duration
}

func NewHTTPServer(eng *core.Engine, log *zap.Logger, rateLimit time.Duration) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPServer{Eng: eng, Log: log, RateLimit: rateLimit}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v3")
	if s.RateLimit > 0 {
		rl := middleware.NewRateLimiter(s.RateLimit)
		api.Use(rl.Middleware())
	}

	api.POST("/order", s.placeOrder)
	api.DELETE("/order", s.cancelOrder)
	api.GET("/order", s.getOrder)
	api.GET("/openOrders", s.openOrders)
	api.GET("/myTrades", s.myTrades)
	api.GET("/depth", s.depth)
	api.GET("/trades", s.trades)
	api.GET("/ticker/price", s.tickerPrice)
	api.GET("/ticker/bookTicker", s.bookTicker)
	api.GET("/account", s.account)
	api.POST("/account/deposit", s.deposit)
	api.POST("/account/withdraw", s.withdraw)

	return r
}

func (s *HTTPServer) Run(addr string) error {
	return s.Router().Run(addr)
}

func userID(c *gin.Context) string {
	return c.GetHeader(middleware.UserIDHeader)
}

func abortWith(c *gin.Context, status int, err error) {
	c.JSON(status, dto.FromError(err))
}

func (s *HTTPServer) placeOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error{Code: dto.CodeInvalidParameters, Msg: err.Error()})
		return
	}

	o := &domain.Order{
		UserID:        userID(c),
		ClientOrderID: req.NewClientOrderID,
		Symbol:        req.Symbol,
		Side:          domain.Side(req.Side),
		Type:          domain.OrderType(req.Type),
		TimeInForce:   domain.TimeInForce(req.TimeInForce),
		STP:           domain.STPMode(req.STPMode),
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Quantity:      req.Quantity,
		QuoteOrderQty: req.QuoteOrderQty,
		IcebergQty:    req.IcebergQty,
	}

	placed, err := s.Eng.PlaceOrder(c.Request.Context(), o)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrSymbolHalted) {
			status = http.StatusServiceUnavailable
			s.Log.Error("order rejected by halted symbol", zap.String("symbol", req.Symbol), zap.Error(err))
		}
		abortWith(c, status, err)
		return
	}

	resp := dto.ConvertOrder(placed)
	for _, t := range s.Eng.GetOrderTrades(c.Request.Context(), placed.ID) {
		resp.Fills = append(resp.Fills, dto.FillResponse{
			Price:   t.Price.String(),
			Qty:     t.Quantity.String(),
			TradeID: t.ID,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		if clientID := c.Query("origClientOrderId"); clientID != "" {
			if o := s.Eng.GetOrderByClientID(userID(c), clientID); o != nil {
				orderID = o.ID
			}
		}
	}
	o := s.Eng.GetOrder(orderID)
	if o == nil || o.UserID != userID(c) {
		abortWith(c, http.StatusNotFound, domain.ErrOrderNotFound)
		return
	}
	ok := s.Eng.CancelOrder(c.Request.Context(), orderID)
	c.JSON(http.StatusOK, dto.CancelOrderResponse{OrderID: orderID, Cancelled: ok})
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	var o *domain.Order
	if id := c.Query("orderId"); id != "" {
		o = s.Eng.GetOrder(id)
	} else if clientID := c.Query("origClientOrderId"); clientID != "" {
		o = s.Eng.GetOrderByClientID(userID(c), clientID)
	}
	if o == nil || o.UserID != userID(c) {
		abortWith(c, http.StatusNotFound, domain.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, dto.ConvertOrder(o))
}

func (s *HTTPServer) openOrders(c *gin.Context) {
	orders := s.Eng.GetOpenOrders(userID(c), c.Query("symbol"))
	res := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, dto.ConvertOrder(o))
	}
	c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) myTrades(c *gin.Context) {
	orderID := c.Query("orderId")
	o := s.Eng.GetOrder(orderID)
	if o == nil || o.UserID != userID(c) {
		abortWith(c, http.StatusNotFound, domain.ErrOrderNotFound)
		return
	}
	trades := s.Eng.GetOrderTrades(c.Request.Context(), orderID)
	res := make([]dto.TradeResponse, 0, len(trades))
	for _, t := range trades {
		res = append(res, dto.ConvertTrade(t))
	}
	c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) depth(c *gin.Context) {
	symbol := c.Query("symbol")
	levels, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	snap, err := s.Eng.GetDepth(c.Request.Context(), symbol, levels)
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConvertDepth(snap))
}

func (s *HTTPServer) trades(c *gin.Context) {
	symbol := c.Query("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	trades := s.Eng.GetRecentTrades(symbol, limit)
	res := make([]dto.TradeResponse, 0, len(trades))
	for _, t := range trades {
		res = append(res, dto.ConvertTrade(t))
	}
	c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) tickerPrice(c *gin.Context) {
	symbol := c.Query("symbol")
	if !s.Eng.HasSymbol(symbol) {
		abortWith(c, http.StatusBadRequest, domain.ErrInvalidSymbol)
		return
	}
	// A known symbol with no trades yet reports a zero price, not an error.
	price, _ := s.Eng.GetMarketPrice(symbol)
	c.JSON(http.StatusOK, dto.TickerPriceResponse{Symbol: symbol, Price: price.String()})
}

func (s *HTTPServer) bookTicker(c *gin.Context) {
	symbol := c.Query("symbol")
	resp := dto.BookTickerResponse{Symbol: symbol}
	if bid, ok := s.Eng.GetBestBid(symbol); ok {
		resp.BidPrice = bid.String()
	}
	if ask, ok := s.Eng.GetBestAsk(symbol); ok {
		resp.AskPrice = ask.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) account(c *gin.Context) {
	s.Eng.CreateAccount(userID(c))
	snap := s.Eng.GetAccount(userID(c))
	resp := dto.AccountResponse{UserID: snap.UserID}
	for asset, b := range snap.Balances {
		resp.Balances = append(resp.Balances, dto.BalanceResponse{
			Asset:  asset,
			Free:   b.Free.String(),
			Locked: b.Locked.String(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) deposit(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error{Code: dto.CodeInvalidParameters, Msg: err.Error()})
		return
	}
	if err := s.Eng.Deposit(userID(c), req.Asset, req.Amount); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": req.Asset, "amount": req.Amount.String()})
}

func (s *HTTPServer) withdraw(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error{Code: dto.CodeInvalidParameters, Msg: err.Error()})
		return
	}
	if !s.Eng.Withdraw(userID(c), req.Asset, req.Amount) {
		abortWith(c, http.StatusBadRequest, domain.ErrInsufficientBalance)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": req.Asset, "amount": req.Amount.String()})
}
