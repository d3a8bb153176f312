package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/history"
	"fenrir/service"
	"fenrir/settlement"
)

// Server adapts the matcher protocol to REST.
type Server struct {
	dispatcher *service.Dispatcher
	hist       *history.Service
	ledger     settlement.Ledger
	log        *zap.Logger
	engine     *gin.Engine
}

func NewServer(
	dispatcher *service.Dispatcher,
	hist *history.Service,
	ledger settlement.Ledger,
	log *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		dispatcher: dispatcher,
		hist:       hist,
		ledger:     ledger,
		log:        log.Named("http"),
		engine:     gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	m := s.engine.Group("/matcher")
	m.GET("/markets", s.markets)
	m.POST("/orderbook", s.submit)
	m.GET("/orderbook/:amount/:price", s.orderBook)
	m.DELETE("/orderbook/:amount/:price", s.deleteBook)
	m.POST("/orderbook/:amount/:price/cancel", s.cancel)
	m.GET("/orderbook/:amount/:price/status/:orderId", s.status)
	m.POST("/orderbook/:amount/:price/delete", s.deleteFromHistory)
	m.GET("/orderbook/:amount/:price/address/:address", s.pairHistory)
	m.GET("/orders/:address", s.allHistory)
	m.GET("/balance/tradable/:amount/:price/:address", s.tradableBalance)
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// -------------------- helpers --------------------

func (s *Server) pairParam(c *gin.Context) (asset.Pair, bool) {
	amt, err := asset.FromString(c.Param("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return asset.Pair{}, false
	}
	price, err := asset.FromString(c.Param("price"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return asset.Pair{}, false
	}
	return asset.NewPair(amt, price), true
}

// respond maps protocol replies onto HTTP status codes.
func (s *Server) respond(c *gin.Context, r service.Response) {
	switch resp := r.(type) {
	case nil:
		c.JSON(http.StatusGatewayTimeout, gin.H{"message": "request timed out"})
	case service.PairReversed:
		c.JSON(http.StatusFound, resp)
	case service.PairRejected:
		c.JSON(http.StatusNotFound, resp)
	case service.OrderRejected:
		c.JSON(http.StatusBadRequest, resp)
	case service.OrderCancelRejected:
		c.JSON(http.StatusBadRequest, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// -------------------- handlers --------------------

func (s *Server) submit(c *gin.Context) {
	var o order.Order
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.respond(c, s.dispatcher.SubmitOrder(&o))
}

func (s *Server) cancel(c *gin.Context) {
	pair, ok := s.pairParam(c)
	if !ok {
		return
	}
	var req order.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.respond(c, s.dispatcher.CancelOrder(pair, &req))
}

func (s *Server) orderBook(c *gin.Context) {
	pair, ok := s.pairParam(c)
	if !ok {
		return
	}
	depth, _ := strconv.Atoi(c.DefaultQuery("depth", "0"))

	r := s.dispatcher.OrderBook(pair, depth)
	view, isView := r.(service.OrderBookView)
	if !isView || c.Query("format") != "decimal" {
		s.respond(c, r)
		return
	}
	c.JSON(http.StatusOK, s.decimalView(view))
}

func (s *Server) deleteBook(c *gin.Context) {
	pair, ok := s.pairParam(c)
	if !ok {
		return
	}
	s.respond(c, s.dispatcher.DeleteOrderBook(pair))
}

func (s *Server) status(c *gin.Context) {
	id, err := order.ParseID(c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.hist.Status(id))
}

func (s *Server) deleteFromHistory(c *gin.Context) {
	pair, ok := s.pairParam(c)
	if !ok {
		return
	}
	var body struct {
		Address string `json:"address"`
		OrderID string `json:"orderId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	addr, err := order.ParseAddress(body.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	id, err := order.ParseID(body.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if err := s.hist.DeleteFromHistory(addr, pair, id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Order couldn't be deleted"})
		return
	}
	c.JSON(http.StatusOK, service.OrderDeleted{OrderID: id})
}

func (s *Server) pairHistory(c *gin.Context) {
	pair, ok := s.pairParam(c)
	if !ok {
		return
	}
	addr, err := order.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.hist.OrderHistory(addr, &pair))
}

func (s *Server) allHistory(c *gin.Context) {
	addr, err := order.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.hist.OrderHistory(addr, nil))
}

func (s *Server) tradableBalance(c *gin.Context) {
	pair, ok := s.pairParam(c)
	if !ok {
		return
	}
	addr, err := order.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	amountBal, priceBal := s.hist.TradableBalance(addr, pair)
	c.JSON(http.StatusOK, gin.H{
		pair.AmountAsset.String(): amountBal,
		pair.PriceAsset.String():  priceBal,
	})
}

func (s *Server) markets(c *gin.Context) {
	s.respond(c, s.dispatcher.Markets())
}
