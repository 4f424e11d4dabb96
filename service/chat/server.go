package chat

import (
	"context"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/bus"

	"github.com/gin-gonic/gin"
)

// ServerConf 聚合网关运行参数
type ServerConf struct {
	GatewayID     string
	SendQueueSize int
	RetryDelay    time.Duration // 订阅循环断线重连等待
	DedupWindow   time.Duration // 总线重投去重窗口
}

func (c *ServerConf) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 2 * time.Minute
	}
}

// Server 把 Registry / Gateway / Dispatcher / 订阅循环装配到一起
type Server struct {
	conf   ServerConf
	conn   bus.Conn
	reg    *Registry
	fanout *Fanout
	gw     *Gateway
	disp   *Dispatcher
	loops  []*bus.SubscriberLoop
}

func NewServer(conf ServerConf, conn bus.Conn, reg *Registry, fanout *Fanout, gw *Gateway) *Server {
	conf.norm()
	return &Server{
		conf:   conf,
		conn:   conn,
		reg:    reg,
		fanout: fanout,
		gw:     gw,
		disp:   NewDispatcher(reg, fanout),
	}
}

func (s *Server) Gateway() *Gateway   { return s.gw }
func (s *Server) Registry() *Registry { return s.reg }

// StartLoops 给每个固定频道挂一条订阅循环，并阻塞到所有频道都
// 确认订阅成功（或 ctx 取消）才返回：任何可发布的频道都要先有
// 活跃监听，之后才能对外收流量。
func (s *Server) StartLoops(ctx context.Context) {
	seen := bus.NewMemSeen(s.conf.DedupWindow)
	context.AfterFunc(ctx, seen.Close)
	for _, channel := range bus.Channels() {
		h := bus.Chain(
			s.disp.Handler(channel),
			bus.DedupMiddleware(seen, s.conf.DedupWindow),
		)
		loop := bus.NewSubscriberLoop(s.conn, channel, h, s.conf.RetryDelay)
		loop.Start(ctx)
		s.loops = append(s.loops, loop)
	}
	for _, loop := range s.loops {
		select {
		case <-loop.Ready():
		case <-ctx.Done():
			return
		}
	}
	logger.Infof("[server] %d subscriber loops started", len(s.loops))
}

// Router 装配 HTTP 路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", s.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"gateway": s.conf.GatewayID,
			"online":  s.reg.SessionCount(),
		})
	})
	return r
}
