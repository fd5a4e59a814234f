package models

// 平台兼容性常量
// 这些数值构成对外接口契约的一部分，修改会破坏兼容性
const (
	// MaxWasmSize 目标程序镜像最大字节数 (2MB)
	MaxWasmSize = 2 * 1024 * 1024

	// MaxPaginationLimit 单次分页查询最大条数
	MaxPaginationLimit = 100

	// MaxDisplayNameLength 显示名称最大码点数
	MaxDisplayNameLength = 50

	// MaxDescriptionLength 挑战描述最大码点数
	MaxDescriptionLength = 1000

	// MaxInterfaceDescriptionLength 接口描述最大码点数
	MaxInterfaceDescriptionLength = 10000

	// MinChallengeDuration 挑战最短持续时间 (1天，纳秒)
	MinChallengeDuration = int64(86_400) * 1_000_000_000

	// MaxChallengeDuration 挑战最长持续时间 (365天，纳秒)
	MaxChallengeDuration = int64(365) * 86_400 * 1_000_000_000

	// MaxTransactionHistory 单用户交易历史扫描上限
	MaxTransactionHistory = 1000

	// MaxBalanceHistory 单目标余额快照环上限
	MaxBalanceHistory = 1000

	// MinLockAmount 最小锁定金额 (基础单位)
	MinLockAmount = uint64(1_000_000)

	// MaxLockDuration 最长锁定时间 (30天，纳秒)
	MaxLockDuration = int64(30) * 86_400 * 1_000_000_000

	// PlatformFeeBasisPoints 平台手续费 (基点，250 = 2.5%)
	PlatformFeeBasisPoints = uint64(250)

	// AttackThresholdPercentage 攻击判定阈值 (余额下降百分比)
	AttackThresholdPercentage = uint64(10)

	// BalanceCheckInterval 余额检查间隔 (60秒，纳秒)
	BalanceCheckInterval = int64(60) * 1_000_000_000

	// MaxChallengesPerUser 单用户未完结挑战数上限
	MaxChallengesPerUser = 10

	// DisputeReviewPeriod 争议审查期 (7天，纳秒)
	DisputeReviewPeriod = int64(7) * 86_400 * 1_000_000_000

	// MinDifficultyLevel 最低难度等级
	MinDifficultyLevel = 1

	// MaxDifficultyLevel 最高难度等级
	MaxDifficultyLevel = 5

	// GenerousCompanyThreshold 高额赏金成就阈值 (10 ICP 等值，基础单位)
	GenerousCompanyThreshold = uint64(10) * 100_000_000

	// DefaultReputation 新建档案的初始声誉
	DefaultReputation = uint64(100)
)
