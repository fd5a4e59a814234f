package api

import (
	"context"
	"fmt"
	"net/http"

	"zerolock/internal/platform"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server API服务器
// 对外暴露核心的公开操作，调用方身份取自请求头（认证在上游完成）
type Server struct {
	platform   *platform.Platform
	logger     *logrus.Logger
	logManager *LogManager
	server     *http.Server
	port       int
}

// NewServer 创建API服务器
func NewServer(p *platform.Platform, logger *logrus.Logger, port int) *Server {
	// 创建日志管理器
	logManager := NewLogManager(1000) // 最多保存1000条日志

	// 添加日志钩子
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		platform:   p,
		logger:     logger,
		logManager: logManager,
		port:       port,
	}
}

// Start 启动API服务器
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// 添加CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Caller-Principal")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 添加中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// 设置路由
	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: router,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("API服务器停止中")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	// 健康检查
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 金库
		api.POST("/vault/deposit", s.deposit)
		api.GET("/vault/balance", s.getBalance)
		api.GET("/vault/locks/:challenge_id", s.getLockInfo)
		api.GET("/vault/transactions", s.getTransactionHistory)
		api.GET("/vault/paused", s.isPaused)
		api.GET("/vault/authorized-callers", s.getAuthorizedCallers)

		// 金库管理
		api.POST("/vault/pause", s.setPauseStatus)
		api.POST("/vault/authorized-callers", s.addAuthorizedCaller)
		api.POST("/vault/fee-recipient", s.setFeeRecipient)

		// 挑战生命周期
		api.POST("/challenges", s.createChallenge)
		api.GET("/challenges", s.listChallenges)
		api.GET("/challenges/:id", s.getChallenge)
		api.PUT("/challenges/:id/status", s.updateChallengeStatus)
		api.POST("/challenges/:id/deploy", s.deployTarget)
		api.POST("/challenges/:id/cancel", s.cancelChallenge)
		api.POST("/challenges/:id/expire", s.expireChallenge)
		api.GET("/companies/:principal/challenges", s.getCompanyChallenges)

		// 监控与裁决
		api.POST("/challenges/:id/evaluate", s.evaluateAttack)
		api.GET("/monitoring/:challenge_id", s.getMonitoringState)
		api.GET("/evaluations/:challenge_id", s.getEvaluations)
		api.GET("/targets/:principal/history", s.getBalanceHistory)
		api.GET("/judge/config", s.getJudgeConfig)

		// 争议
		api.POST("/disputes", s.createDispute)
		api.POST("/disputes/:id/resolve", s.resolveDispute)
		api.GET("/disputes/open", s.getOpenDisputes)

		// 用户与排行榜
		api.POST("/users/register", s.registerUser)
		api.POST("/users/display-name", s.setDisplayName)
		api.GET("/users/:principal", s.getUserProfile)
		api.GET("/leaderboard/hackers", s.getHackerLeaderboard)
		api.GET("/leaderboard/companies", s.getCompanyLeaderboard)

		// 统计
		api.GET("/stats/challenges", s.getChallengeStats)
		api.GET("/stats/vault", s.getVaultStats)
		api.GET("/stats/platform", s.getPlatformStats)
		api.GET("/stats/users", s.getUserStats)

		// 运行日志
		api.GET("/logs", s.getLogs)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"paused": s.platform.Vault.IsPaused(),
	})
}

// getLogs 查询运行日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")
	limit := intQuery(c, "limit", 100)
	c.JSON(http.StatusOK, gin.H{"ok": s.logManager.GetLogs(level, limit)})
}
