package validation

import (
	"fmt"
	"unicode/utf8"

	"zerolock/internal/errors"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

// 纯校验函数
// 所有校验器只返回 nil 或 *errors.PlatformError，从不panic

// ValidatePagination 校验分页参数
// limit 为 0 或超过上限都会被拒绝
func ValidatePagination(offset, limit uint64) *errors.PlatformError {
	if limit == 0 {
		return errors.PaginationError("limit 必须大于 0")
	}
	if limit > models.MaxPaginationLimit {
		return errors.PaginationError(fmt.Sprintf("limit 不能超过 %d", models.MaxPaginationLimit))
	}
	return nil
}

// ValidateWasmSize 校验目标程序镜像大小
func ValidateWasmSize(wasm []byte) *errors.PlatformError {
	if len(wasm) == 0 {
		return errors.InvalidInput("目标程序镜像不能为空")
	}
	if len(wasm) > models.MaxWasmSize {
		return errors.WasmSizeExceeded(fmt.Sprintf("目标程序镜像超过 %d 字节上限", models.MaxWasmSize))
	}
	return nil
}

// ValidateDisplayName 校验显示名称，长度按码点计
func ValidateDisplayName(name string) *errors.PlatformError {
	length := utf8.RuneCountInString(name)
	if length == 0 {
		return errors.InvalidInput("显示名称不能为空")
	}
	if length > models.MaxDisplayNameLength {
		return errors.InvalidInput(fmt.Sprintf("显示名称不能超过 %d 个字符", models.MaxDisplayNameLength))
	}
	return nil
}

// ValidateDescription 校验挑战描述，长度按码点计
func ValidateDescription(description string) *errors.PlatformError {
	if utf8.RuneCountInString(description) > models.MaxDescriptionLength {
		return errors.InvalidInput(fmt.Sprintf("描述不能超过 %d 个字符", models.MaxDescriptionLength))
	}
	return nil
}

// ValidateInterfaceDescription 校验接口描述，非空且长度按码点计
func ValidateInterfaceDescription(description string) *errors.PlatformError {
	length := utf8.RuneCountInString(description)
	if length == 0 {
		return errors.InvalidInput("接口描述不能为空")
	}
	if length > models.MaxInterfaceDescriptionLength {
		return errors.InvalidInput(fmt.Sprintf("接口描述不能超过 %d 个字符", models.MaxInterfaceDescriptionLength))
	}
	return nil
}

// ValidateChallengeDuration 校验挑战持续时间（纳秒）
func ValidateChallengeDuration(duration int64) *errors.PlatformError {
	if duration < models.MinChallengeDuration || duration > models.MaxChallengeDuration {
		return errors.TimeRangeError(fmt.Sprintf(
			"持续时间必须在 %d 到 %d 纳秒之间",
			models.MinChallengeDuration, models.MaxChallengeDuration))
	}
	return nil
}

// ValidateDifficulty 校验难度等级
func ValidateDifficulty(level uint8) *errors.PlatformError {
	if level < models.MinDifficultyLevel || level > models.MaxDifficultyLevel {
		return errors.InvalidInput(fmt.Sprintf(
			"难度等级必须在 %d 到 %d 之间",
			models.MinDifficultyLevel, models.MaxDifficultyLevel))
	}
	return nil
}

// CheckCallerNotAnonymous 拒绝匿名调用者
func CheckCallerNotAnonymous(caller models.Principal) *errors.PlatformError {
	if caller.IsAnonymous() {
		return errors.Unauthorized("匿名身份不允许执行变更操作")
	}
	return nil
}

// ValidateTokenType 校验代币类型
func ValidateTokenType(token models.TokenType) *errors.PlatformError {
	if !token.Valid() {
		return errors.InvalidInput("代币类型非法")
	}
	return nil
}

// Validator 组合校验器
// 保存可扩展的规则注册表，组件在入口处调用对应的校验方法
type Validator struct {
	logger *logrus.Logger
	rules  map[string]ValidationRule
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	Validate(data interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Errors   []*errors.PlatformError `json:"errors,omitempty"`
	DataType string                  `json:"data_type"`
}

// NewValidator 创建组合校验器
func NewValidator(logger *logrus.Logger) *Validator {
	v := &Validator{
		logger: logger,
		rules:  make(map[string]ValidationRule),
	}

	// 注册默认验证规则
	v.AddRule(NewChallengeRequestRule())
	v.AddRule(NewLockRequestRule())
	v.AddRule(NewUnlockRequestRule())

	return v
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules[rule.Name()] = rule
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// ValidateChallengeRequest 校验挑战创建请求
func (v *Validator) ValidateChallengeRequest(req *models.CreateChallengeRequest) *ValidationResult {
	result := &ValidationResult{Valid: true, DataType: "challenge_request"}

	if req == nil {
		result.Valid = false
		result.Errors = append(result.Errors, errors.InvalidInput("请求为空"))
		return result
	}

	if rule, exists := v.rules["challenge_request"]; exists {
		if err := rule.Validate(req); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, errors.AsPlatformError(err))
		}
	}

	return result
}

// ChallengeRequestRule 挑战创建请求验证规则
type ChallengeRequestRule struct{}

func NewChallengeRequestRule() *ChallengeRequestRule {
	return &ChallengeRequestRule{}
}

func (r *ChallengeRequestRule) Name() string {
	return "challenge_request"
}

func (r *ChallengeRequestRule) Description() string {
	return "挑战创建请求验证规则"
}

func (r *ChallengeRequestRule) Validate(data interface{}) error {
	req, ok := data.(*models.CreateChallengeRequest)
	if !ok {
		return errors.InvalidInput("数据类型不是挑战创建请求")
	}

	if err := ValidateWasmSize(req.WasmImage); err != nil {
		return err
	}
	if err := ValidateInterfaceDescription(req.InterfaceDescription); err != nil {
		return err
	}
	if err := ValidateDescription(req.Description); err != nil {
		return err
	}
	if err := ValidateChallengeDuration(req.Duration); err != nil {
		return err
	}
	if err := ValidateDifficulty(req.DifficultyLevel); err != nil {
		return err
	}
	if err := ValidateTokenType(req.Token); err != nil {
		return err
	}
	if req.BountyAmount < models.MinLockAmount {
		return errors.InvalidInput("赏金金额低于最小锁定金额")
	}

	return nil
}

// LockRequestRule 锁定请求验证规则
type LockRequestRule struct{}

func NewLockRequestRule() *LockRequestRule {
	return &LockRequestRule{}
}

func (r *LockRequestRule) Name() string {
	return "lock_request"
}

func (r *LockRequestRule) Description() string {
	return "金库锁定请求验证规则"
}

func (r *LockRequestRule) Validate(data interface{}) error {
	req, ok := data.(*models.LockRequest)
	if !ok {
		return errors.InvalidInput("数据类型不是锁定请求")
	}

	if req.Amount < models.MinLockAmount {
		return errors.InvalidInput("锁定金额低于最小阈值")
	}
	if req.Duration <= 0 || req.Duration > models.MaxLockDuration {
		return errors.InvalidInput("锁定时长超出允许范围")
	}
	if err := ValidateTokenType(req.Token); err != nil {
		return err
	}
	if err := CheckCallerNotAnonymous(req.Company); err != nil {
		return errors.InvalidInput("公司身份不能为匿名")
	}

	return nil
}

// UnlockRequestRule 解锁请求验证规则
type UnlockRequestRule struct{}

func NewUnlockRequestRule() *UnlockRequestRule {
	return &UnlockRequestRule{}
}

func (r *UnlockRequestRule) Name() string {
	return "unlock_request"
}

func (r *UnlockRequestRule) Description() string {
	return "金库解锁请求验证规则"
}

func (r *UnlockRequestRule) Validate(data interface{}) error {
	req, ok := data.(*models.UnlockRequest)
	if !ok {
		return errors.InvalidInput("数据类型不是解锁请求")
	}

	if req.Amount == 0 {
		return errors.InvalidInput("解锁金额必须大于 0")
	}
	if err := CheckCallerNotAnonymous(req.Recipient); err != nil {
		return errors.InvalidInput("接收方身份不能为匿名")
	}

	switch req.Reason.Kind {
	case models.UnlockBountyPayout:
		if req.Reason.Winner.IsAnonymous() {
			return errors.InvalidInput("赏金支付必须指定获胜黑客")
		}
	case models.UnlockChallengeExpired, models.UnlockChallengeCancelled:
		// 无附加字段
	case models.UnlockAdminOverride:
		if req.Reason.Note == "" {
			return errors.InvalidInput("管理员强制解锁必须附说明")
		}
	default:
		return errors.InvalidInput("未知的解锁原因")
	}

	return nil
}

// GetValidationStats 获取校验器统计信息
func (v *Validator) GetValidationStats() map[string]interface{} {
	return map[string]interface{}{
		"registered_rules": len(v.rules),
	}
}
