package models

// UserRole 用户角色
type UserRole string

const (
	RoleCompany UserRole = "Company"
	RoleHacker  UserRole = "Hacker"
	RoleAdmin   UserRole = "Admin"
)

// UserProfile 用户档案
type UserProfile struct {
	Principal         Principal `json:"principal"`
	Role              UserRole  `json:"role"`
	Reputation        uint64    `json:"reputation"`
	TotalEarned       uint64    `json:"total_earned"`
	TotalOffered      uint64    `json:"total_offered"`
	SuccessfulAttacks uint64    `json:"successful_attacks"`
	CreatedChallenges uint64    `json:"created_challenges"`
	JoinedAt          int64     `json:"joined_at"`
	LastActive        int64     `json:"last_active"`
}

// AchievementType 成就类型
type AchievementType string

const (
	AchievementFirstBlood        AchievementType = "FirstBlood"        // 首次攻击成功
	AchievementTopEarner         AchievementType = "TopEarner"         // 高额收益（预留，不自动授予）
	AchievementSerialHacker      AchievementType = "SerialHacker"      // 第五次攻击成功
	AchievementQuickSolver       AchievementType = "QuickSolver"       // 快速破解（预留，不自动授予）
	AchievementGenerousCompany   AchievementType = "GenerousCompany"   // 单笔高额赏金
	AchievementActiveContributor AchievementType = "ActiveContributor" // 第五次创建挑战
)

// Achievement 成就记录
type Achievement struct {
	ID          uint64          `json:"id"`
	Type        AchievementType `json:"type"`
	Recipient   Principal       `json:"recipient"`
	Timestamp   int64           `json:"timestamp"`
	Description string          `json:"description"`
	ChallengeID *uint64         `json:"challenge_id,omitempty"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank              uint64    `json:"rank"`
	Principal         Principal `json:"principal"`
	DisplayName       *string   `json:"display_name,omitempty"`
	Reputation        uint64    `json:"reputation"`
	SuccessfulAttacks uint64    `json:"successful_attacks"`
	CreatedChallenges uint64    `json:"created_challenges"`
	TotalEarned       uint64    `json:"total_earned"`
	TotalOffered      uint64    `json:"total_offered"`
	JoinedAt          int64     `json:"joined_at"`
}

// PlatformStats 平台累计计数
type PlatformStats struct {
	TotalChallenges     uint64 `json:"total_challenges"`
	ActiveChallenges    uint64 `json:"active_challenges"`
	CompletedChallenges uint64 `json:"completed_challenges"`
	TotalBountiesPaid   uint64 `json:"total_bounties_paid"`
	SuccessfulAttacks   uint64 `json:"successful_attacks"`
	TotalHackers        uint64 `json:"total_hackers"`
	TotalCompanies      uint64 `json:"total_companies"`
}

// UserStats 用户活跃统计
type UserStats struct {
	TotalUsers       uint64 `json:"total_users"`
	ActiveHackers    uint64 `json:"active_hackers"`
	ActiveCompanies  uint64 `json:"active_companies"`
	NewUsersLastWeek uint64 `json:"new_users_last_week"`
}

// UserProfileView 档案查询结果，聚合档案、显示名、成就与挑战历史
type UserProfileView struct {
	Profile      *UserProfile   `json:"profile"`
	DisplayName  *string        `json:"display_name,omitempty"`
	Achievements []*Achievement `json:"achievements"`
	ChallengeIDs []uint64       `json:"challenge_ids"`
}
