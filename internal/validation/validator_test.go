package validation

import (
	"strings"
	"testing"

	"zerolock/internal/errors"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestValidatePagination(t *testing.T) {
	assert.Nil(t, ValidatePagination(0, 1))
	assert.Nil(t, ValidatePagination(100, 100))

	// limit 为 0 拒绝
	err := ValidatePagination(0, 0)
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindPaginationError, err.Kind)

	// limit 超过 100 拒绝
	err = ValidatePagination(0, 101)
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindPaginationError, err.Kind)
}

func TestValidateWasmSize(t *testing.T) {
	assert.Nil(t, ValidateWasmSize([]byte{0x00, 0x61, 0x73, 0x6d}))
	assert.Nil(t, ValidateWasmSize(make([]byte, models.MaxWasmSize)))

	// 空镜像拒绝
	err := ValidateWasmSize(nil)
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindInvalidInput, err.Kind)

	// 超过 2MiB 拒绝
	err = ValidateWasmSize(make([]byte, models.MaxWasmSize+1))
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindWasmSizeExceeded, err.Kind)
}

func TestValidateDisplayName(t *testing.T) {
	assert.Nil(t, ValidateDisplayName("h"))
	assert.Nil(t, ValidateDisplayName(strings.Repeat("x", 50)))

	// 长度按码点计，50个中文字符合法
	assert.Nil(t, ValidateDisplayName(strings.Repeat("安", 50)))

	assert.NotNil(t, ValidateDisplayName(""))
	assert.NotNil(t, ValidateDisplayName(strings.Repeat("x", 51)))
}

func TestValidateDescription(t *testing.T) {
	assert.Nil(t, ValidateDescription(""))
	assert.Nil(t, ValidateDescription(strings.Repeat("x", 1000)))
	assert.NotNil(t, ValidateDescription(strings.Repeat("x", 1001)))
}

func TestValidateInterfaceDescription(t *testing.T) {
	assert.Nil(t, ValidateInterfaceDescription("service : {}"))
	assert.Nil(t, ValidateInterfaceDescription(strings.Repeat("x", 10000)))

	assert.NotNil(t, ValidateInterfaceDescription(""))
	assert.NotNil(t, ValidateInterfaceDescription(strings.Repeat("x", 10001)))
}

func TestValidateChallengeDuration(t *testing.T) {
	assert.Nil(t, ValidateChallengeDuration(models.MinChallengeDuration))
	assert.Nil(t, ValidateChallengeDuration(models.MaxChallengeDuration))

	// 下界减一拒绝
	err := ValidateChallengeDuration(models.MinChallengeDuration - 1)
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindTimeRangeError, err.Kind)

	err = ValidateChallengeDuration(models.MaxChallengeDuration + 1)
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindTimeRangeError, err.Kind)
}

func TestValidateDifficulty(t *testing.T) {
	assert.Nil(t, ValidateDifficulty(1))
	assert.Nil(t, ValidateDifficulty(5))
	assert.NotNil(t, ValidateDifficulty(0))
	assert.NotNil(t, ValidateDifficulty(6))
}

func TestCheckCallerNotAnonymous(t *testing.T) {
	assert.Nil(t, CheckCallerNotAnonymous("company-1"))

	err := CheckCallerNotAnonymous(models.AnonymousPrincipal)
	assert.NotNil(t, err)
	assert.Equal(t, errors.KindUnauthorized, err.Kind)

	assert.NotNil(t, CheckCallerNotAnonymous(""))
}

func TestValidateTokenType(t *testing.T) {
	assert.Nil(t, ValidateTokenType(models.NativeToken()))
	assert.Nil(t, ValidateTokenType(models.FungibleToken("issuer-1")))

	// 同质化代币必须有发行方
	assert.NotNil(t, ValidateTokenType(models.FungibleToken("")))
	assert.NotNil(t, ValidateTokenType(models.TokenType{Kind: "OTHER"}))
}

func validChallengeRequest() *models.CreateChallengeRequest {
	return &models.CreateChallengeRequest{
		WasmImage:            []byte{0x00, 0x61, 0x73, 0x6d},
		InterfaceDescription: "service : {}",
		BountyAmount:         models.MinLockAmount,
		Duration:             models.MinChallengeDuration,
		Token:                models.NativeToken(),
		Description:          "测试挑战",
		DifficultyLevel:      3,
	}
}

func TestValidateChallengeRequest_Valid(t *testing.T) {
	v := NewValidator(logrus.New())

	result := v.ValidateChallengeRequest(validChallengeRequest())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateChallengeRequest_Nil(t *testing.T) {
	v := NewValidator(logrus.New())

	result := v.ValidateChallengeRequest(nil)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateChallengeRequest_BountyBelowMinimum(t *testing.T) {
	v := NewValidator(logrus.New())

	req := validChallengeRequest()
	req.BountyAmount = models.MinLockAmount - 1

	result := v.ValidateChallengeRequest(req)
	assert.False(t, result.Valid)
	assert.Equal(t, errors.KindInvalidInput, result.Errors[0].Kind)
}

func TestValidateChallengeRequest_DurationTooShort(t *testing.T) {
	v := NewValidator(logrus.New())

	req := validChallengeRequest()
	req.Duration = models.MinChallengeDuration - 1

	result := v.ValidateChallengeRequest(req)
	assert.False(t, result.Valid)
	assert.Equal(t, errors.KindTimeRangeError, result.Errors[0].Kind)
}

func TestLockRequestRule(t *testing.T) {
	rule := NewLockRequestRule()

	assert.Nil(t, rule.Validate(&models.LockRequest{
		ChallengeID: 1,
		Company:     "company-1",
		Amount:      models.MinLockAmount,
		Token:       models.NativeToken(),
		Duration:    models.MaxLockDuration,
	}))

	// 金额低于阈值
	assert.NotNil(t, rule.Validate(&models.LockRequest{
		ChallengeID: 1,
		Company:     "company-1",
		Amount:      models.MinLockAmount - 1,
		Token:       models.NativeToken(),
		Duration:    models.MaxLockDuration,
	}))

	// 锁定时长超限
	assert.NotNil(t, rule.Validate(&models.LockRequest{
		ChallengeID: 1,
		Company:     "company-1",
		Amount:      models.MinLockAmount,
		Token:       models.NativeToken(),
		Duration:    models.MaxLockDuration + 1,
	}))
}

func TestUnlockRequestRule(t *testing.T) {
	rule := NewUnlockRequestRule()

	assert.Nil(t, rule.Validate(&models.UnlockRequest{
		ChallengeID: 1,
		Recipient:   "hacker-1",
		Amount:      100,
		Reason:      models.BountyPayoutReason("hacker-1"),
	}))

	// 赏金支付必须指定获胜者
	assert.NotNil(t, rule.Validate(&models.UnlockRequest{
		ChallengeID: 1,
		Recipient:   "hacker-1",
		Amount:      100,
		Reason:      models.UnlockReason{Kind: models.UnlockBountyPayout},
	}))

	// 管理员强制解锁必须附说明
	assert.NotNil(t, rule.Validate(&models.UnlockRequest{
		ChallengeID: 1,
		Recipient:   "company-1",
		Amount:      100,
		Reason:      models.UnlockReason{Kind: models.UnlockAdminOverride},
	}))
}
