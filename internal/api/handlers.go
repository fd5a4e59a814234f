package api

import (
	"net/http"
	"strconv"

	"zerolock/internal/errors"
	"zerolock/pkg/models"

	"github.com/gin-gonic/gin"
)

// 响应封装
// 所有对外操作统一返回 {"ok": T} 或 {"err": {kind, message}}

// respondOk 成功响应
func respondOk(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"ok": data})
}

// respondErr 错误响应
func respondErr(c *gin.Context, err error) {
	pe := errors.AsPlatformError(err)
	c.JSON(httpStatus(pe.Kind), gin.H{"err": gin.H{
		"kind":    pe.Kind.String(),
		"message": pe.Message,
	}})
}

// httpStatus 错误类别到HTTP状态码的映射
func httpStatus(kind errors.Kind) int {
	switch kind {
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	case errors.KindPermissionDenied:
		return http.StatusForbidden
	case errors.KindAlreadyExists, errors.KindInvalidState:
		return http.StatusConflict
	case errors.KindResourceLimit, errors.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case errors.KindNetworkError:
		return http.StatusBadGateway
	case errors.KindInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// callerOf 取调用方身份，认证在上游完成
func callerOf(c *gin.Context) models.Principal {
	return models.Principal(c.GetHeader("X-Caller-Principal"))
}

// idParam 解析路径中的数字ID
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		respondErr(c, errors.InvalidInput("路径参数必须是数字ID"))
		return 0, false
	}
	return id, true
}

// uintQuery 解析查询参数中的无符号整数
func uintQuery(c *gin.Context, name string, fallback uint64) uint64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return v
	}
	return fallback
}

// intQuery 解析查询参数中的整数
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return fallback
}

// tokenOfQuery 从查询参数解析代币类型
func tokenOfQuery(c *gin.Context) models.TokenType {
	kind := c.DefaultQuery("token_kind", string(models.TokenNative))
	if models.TokenKind(kind) == models.TokenFungible {
		return models.FungibleToken(models.Principal(c.Query("token_issuer")))
	}
	return models.NativeToken()
}

// 金库处理器

type depositRequest struct {
	Token  models.TokenType `json:"token"`
	Amount uint64           `json:"amount"`
}

func (s *Server) deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	txID, err := s.platform.Vault.Deposit(c.Request.Context(), callerOf(c), req.Token, req.Amount)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"transaction_id": txID})
}

func (s *Server) getBalance(c *gin.Context) {
	user := models.Principal(c.Query("user"))
	if user == "" {
		user = callerOf(c)
	}
	respondOk(c, s.platform.Vault.GetBalance(user, tokenOfQuery(c)))
}

func (s *Server) getLockInfo(c *gin.Context) {
	id, ok := idParam(c, "challenge_id")
	if !ok {
		return
	}

	lock, err := s.platform.Vault.GetLockInfo(id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, lock)
}

func (s *Server) getTransactionHistory(c *gin.Context) {
	user := models.Principal(c.Query("user"))
	if user == "" {
		user = callerOf(c)
	}

	page, err := s.platform.Vault.GetTransactionHistory(user,
		uintQuery(c, "offset", 0), uintQuery(c, "limit", 20))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, page)
}

func (s *Server) getVaultStats(c *gin.Context) {
	respondOk(c, s.platform.Vault.GetVaultStats())
}

func (s *Server) isPaused(c *gin.Context) {
	respondOk(c, gin.H{"paused": s.platform.Vault.IsPaused()})
}

func (s *Server) getAuthorizedCallers(c *gin.Context) {
	respondOk(c, s.platform.Vault.GetAuthorizedCallers())
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) setPauseStatus(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Vault.SetPauseStatus(callerOf(c), req.Paused); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"paused": req.Paused})
}

type principalRequest struct {
	Principal models.Principal `json:"principal"`
}

func (s *Server) addAuthorizedCaller(c *gin.Context) {
	var req principalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Vault.AddAuthorizedCaller(callerOf(c), req.Principal); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"added": req.Principal})
}

func (s *Server) setFeeRecipient(c *gin.Context) {
	var req principalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Vault.SetPlatformFeeRecipient(callerOf(c), req.Principal); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"fee_recipient": req.Principal})
}

// 挑战处理器

func (s *Server) createChallenge(c *gin.Context) {
	var req models.CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	id, err := s.platform.Challenges.CreateChallenge(c.Request.Context(), callerOf(c), &req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"challenge_id": id})
}

func (s *Server) getChallenge(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	challenge, err := s.platform.Challenges.GetChallenge(id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, challenge)
}

func (s *Server) listChallenges(c *gin.Context) {
	var status *models.ChallengeStatus
	if raw := c.Query("status"); raw != "" {
		parsed := models.ChallengeStatus(raw)
		status = &parsed
	}

	page, err := s.platform.Challenges.ListChallenges(status,
		uintQuery(c, "offset", 0), uintQuery(c, "limit", 20))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, page)
}

func (s *Server) getCompanyChallenges(c *gin.Context) {
	company := models.Principal(c.Param("principal"))
	page, err := s.platform.Challenges.GetCompanyChallenges(company,
		uintQuery(c, "offset", 0), uintQuery(c, "limit", 20))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, page)
}

type statusRequest struct {
	Status models.ChallengeStatus `json:"status"`
}

func (s *Server) updateChallengeStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Challenges.UpdateChallengeStatus(callerOf(c), id, req.Status); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"status": req.Status})
}

func (s *Server) deployTarget(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	target, err := s.platform.Challenges.DeployTarget(c.Request.Context(), callerOf(c), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"target_program_id": target})
}

func (s *Server) cancelChallenge(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := s.platform.Challenges.CancelChallenge(c.Request.Context(), callerOf(c), id); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"cancelled": id})
}

func (s *Server) expireChallenge(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := s.platform.Challenges.ExpireChallenge(c.Request.Context(), callerOf(c), id); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"expired": id})
}

func (s *Server) getChallengeStats(c *gin.Context) {
	respondOk(c, s.platform.Challenges.GetChallengeStats())
}

// 裁决处理器

type evaluateRequest struct {
	AttemptID uint64 `json:"attempt_id"`
	Proof     []byte `json:"proof,omitempty"`
	GasUsed   uint64 `json:"gas_used"`
}

func (s *Server) evaluateAttack(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	attempt := &models.AttackAttempt{
		ID:          req.AttemptID,
		ChallengeID: id,
		Hacker:      callerOf(c),
		Timestamp:   s.platform.Clock.Now(),
		Proof:       req.Proof,
		GasUsed:     req.GasUsed,
	}

	evaluation, err := s.platform.Judge.EvaluateAttack(c.Request.Context(), id, attempt)
	if err != nil && evaluation == nil {
		respondErr(c, err)
		return
	}
	if err != nil {
		// 评估已持久化但结算失败，调用方可重试
		pe := errors.AsPlatformError(err)
		c.JSON(http.StatusOK, gin.H{"ok": evaluation, "settlement_err": gin.H{
			"kind":    pe.Kind.String(),
			"message": pe.Message,
		}})
		return
	}
	respondOk(c, evaluation)
}

func (s *Server) getMonitoringState(c *gin.Context) {
	id, ok := idParam(c, "challenge_id")
	if !ok {
		return
	}

	state, err := s.platform.Judge.GetMonitoringState(id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, state)
}

func (s *Server) getEvaluations(c *gin.Context) {
	id, ok := idParam(c, "challenge_id")
	if !ok {
		return
	}
	respondOk(c, s.platform.Judge.GetEvaluations(id))
}

func (s *Server) getBalanceHistory(c *gin.Context) {
	target := models.Principal(c.Param("principal"))
	respondOk(c, s.platform.Judge.GetBalanceHistory(target, uintQuery(c, "limit", 100)))
}

func (s *Server) getJudgeConfig(c *gin.Context) {
	respondOk(c, s.platform.Judge.GetConfig())
}

// 争议处理器

type disputeRequest struct {
	ChallengeID uint64   `json:"challenge_id"`
	AttemptID   uint64   `json:"attempt_id"`
	Reason      string   `json:"reason"`
	Evidence    [][]byte `json:"evidence,omitempty"`
}

func (s *Server) createDispute(c *gin.Context) {
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	id, err := s.platform.Judge.CreateDispute(callerOf(c), req.ChallengeID, req.AttemptID, req.Reason, req.Evidence)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"dispute_id": id})
}

type resolveRequest struct {
	Status     models.DisputeStatus `json:"status"`
	Resolution string               `json:"resolution"`
}

func (s *Server) resolveDispute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Judge.ResolveDispute(callerOf(c), id, req.Status, req.Resolution); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"resolved": id})
}

func (s *Server) getOpenDisputes(c *gin.Context) {
	respondOk(c, s.platform.Judge.GetOpenDisputes())
}

// 用户与排行榜处理器

type registerRequest struct {
	Role models.UserRole `json:"role"`
}

func (s *Server) registerUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Leaderboard.RegisterUser(callerOf(c), req.Role); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"registered": callerOf(c)})
}

type displayNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) setDisplayName(c *gin.Context) {
	var req displayNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, errors.InvalidInput("请求体格式错误"))
		return
	}

	if err := s.platform.Leaderboard.SetDisplayName(callerOf(c), req.Name); err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, gin.H{"display_name": req.Name})
}

func (s *Server) getUserProfile(c *gin.Context) {
	user := models.Principal(c.Param("principal"))
	view, err := s.platform.Leaderboard.GetUserProfile(user)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOk(c, view)
}

func (s *Server) getHackerLeaderboard(c *gin.Context) {
	respondOk(c, s.platform.Leaderboard.GetHackerLeaderboard(uintQuery(c, "limit", 20)))
}

func (s *Server) getCompanyLeaderboard(c *gin.Context) {
	respondOk(c, s.platform.Leaderboard.GetCompanyLeaderboard(uintQuery(c, "limit", 20)))
}

func (s *Server) getPlatformStats(c *gin.Context) {
	respondOk(c, s.platform.Leaderboard.GetPlatformStats())
}

func (s *Server) getUserStats(c *gin.Context) {
	respondOk(c, s.platform.Leaderboard.GetUserStats())
}
