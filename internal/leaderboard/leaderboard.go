package leaderboard

import (
	"sort"
	"sync"

	"zerolock/internal/errors"
	"zerolock/internal/ports"
	"zerolock/internal/validation"
	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

const componentName = "leaderboard"

// 成就描述
var achievementDescriptions = map[models.AchievementType]string{
	models.AchievementFirstBlood:        "完成首次成功攻击",
	models.AchievementTopEarner:         "累计获得高额赏金",
	models.AchievementSerialHacker:      "完成第五次成功攻击",
	models.AchievementQuickSolver:       "以破纪录的速度破解挑战",
	models.AchievementGenerousCompany:   "发布高额赏金",
	models.AchievementActiveContributor: "创建第五个挑战",
}

// Leaderboard 声誉观察者
// 结算与创建事件的下游消费者，独占用户档案、显示名、成就与平台计数
// 重复投递同一事件会重复累加，去重由事件生产方负责
type Leaderboard struct {
	logger *logrus.Logger
	clock  ports.Clock

	mu               sync.RWMutex
	profiles         map[models.Principal]*models.UserProfile
	displayNames     map[models.Principal]string
	achievements     map[uint64]*models.Achievement
	challengeHistory map[models.Principal][]uint64
	stats            models.PlatformStats

	nextAchievementID uint64
}

// NewLeaderboard 创建声誉观察者
func NewLeaderboard(clock ports.Clock, logger *logrus.Logger) *Leaderboard {
	return &Leaderboard{
		logger:            logger,
		clock:             clock,
		profiles:          make(map[models.Principal]*models.UserProfile),
		displayNames:      make(map[models.Principal]string),
		achievements:      make(map[uint64]*models.Achievement),
		challengeHistory:  make(map[models.Principal][]uint64),
		nextAchievementID: 1,
	}
}

// RegisterUser 注册用户
func (l *Leaderboard) RegisterUser(caller models.Principal, role models.UserRole) error {
	if err := validation.CheckCallerNotAnonymous(caller); err != nil {
		return err.WithComponent(componentName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.profiles[caller]; exists {
		return errors.AlreadyExists("用户已注册").WithComponent(componentName)
	}

	l.createProfile(caller, role)
	l.logger.Infof("用户已注册: %s (%s)", caller.String(), role)
	return nil
}

// RecordUserRegistration 记录用户注册事件
// 幂等消费者：档案已存在时只刷新活跃时间
func (l *Leaderboard) RecordUserRegistration(caller models.Principal, role models.UserRole) error {
	if err := validation.CheckCallerNotAnonymous(caller); err != nil {
		return err.WithComponent(componentName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	profile := l.ensureProfile(caller, role)
	profile.LastActive = l.clock.Now()
	return nil
}

// SetDisplayName 设置显示名称
func (l *Leaderboard) SetDisplayName(caller models.Principal, name string) error {
	if err := validation.CheckCallerNotAnonymous(caller); err != nil {
		return err.WithComponent(componentName)
	}
	if err := validation.ValidateDisplayName(name); err != nil {
		return err.WithComponent(componentName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.profiles[caller]; !exists {
		return errors.NotFound("用户未注册").WithComponent(componentName)
	}

	l.displayNames[caller] = name
	return nil
}

// RecordChallengeCreated 记录挑战创建事件
// 档案缺失时以默认声誉创建；每次调用都会累加计数
func (l *Leaderboard) RecordChallengeCreated(company models.Principal, challengeID uint64, bounty uint64, token models.TokenType) error {
	if err := validation.CheckCallerNotAnonymous(company); err != nil {
		return err.WithComponent(componentName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	profile := l.ensureProfile(company, models.RoleCompany)
	profile.CreatedChallenges++
	profile.TotalOffered += bounty
	profile.Reputation += 10
	profile.LastActive = l.clock.Now()

	l.challengeHistory[company] = append(l.challengeHistory[company], challengeID)

	if profile.CreatedChallenges == 5 {
		l.grantAchievement(company, models.AchievementActiveContributor, &challengeID)
	}
	if bounty >= models.GenerousCompanyThreshold {
		l.grantAchievement(company, models.AchievementGenerousCompany, &challengeID)
	}

	l.stats.TotalChallenges++
	l.stats.ActiveChallenges++

	l.logger.Debugf("挑战创建已记录: 公司=%s, 挑战=%d, 赏金=%d", company.String(), challengeID, bounty)
	return nil
}

// RecordSuccessfulAttack 记录成功攻击事件
// 档案缺失时以默认声誉创建；每次调用都会累加计数
func (l *Leaderboard) RecordSuccessfulAttack(hacker models.Principal, challengeID uint64, bounty uint64, token models.TokenType) error {
	if err := validation.CheckCallerNotAnonymous(hacker); err != nil {
		return err.WithComponent(componentName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	profile := l.ensureProfile(hacker, models.RoleHacker)
	profile.SuccessfulAttacks++
	profile.TotalEarned += bounty
	profile.Reputation += reputationGain(bounty)
	profile.LastActive = l.clock.Now()

	l.challengeHistory[hacker] = append(l.challengeHistory[hacker], challengeID)

	if profile.SuccessfulAttacks == 1 {
		l.grantAchievement(hacker, models.AchievementFirstBlood, &challengeID)
	} else if profile.SuccessfulAttacks == 5 {
		l.grantAchievement(hacker, models.AchievementSerialHacker, &challengeID)
	}

	l.stats.TotalBountiesPaid += bounty
	l.stats.SuccessfulAttacks++
	l.stats.CompletedChallenges++
	if l.stats.ActiveChallenges > 0 {
		l.stats.ActiveChallenges--
	}

	l.logger.Debugf("成功攻击已记录: 黑客=%s, 挑战=%d, 赏金=%d", hacker.String(), challengeID, bounty)
	return nil
}

// GetUserProfile 查询用户档案，聚合显示名、成就与挑战历史
func (l *Leaderboard) GetUserProfile(user models.Principal) (*models.UserProfileView, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	profile, exists := l.profiles[user]
	if !exists {
		return nil, errors.NotFound("用户档案不存在").WithComponent(componentName)
	}

	view := &models.UserProfileView{
		Achievements: make([]*models.Achievement, 0),
		ChallengeIDs: append([]uint64{}, l.challengeHistory[user]...),
	}

	copied := *profile
	view.Profile = &copied

	if name, exists := l.displayNames[user]; exists {
		nameCopy := name
		view.DisplayName = &nameCopy
	}

	for _, achievement := range l.achievements {
		if achievement.Recipient == user {
			achievementCopy := *achievement
			view.Achievements = append(view.Achievements, &achievementCopy)
		}
	}
	sort.Slice(view.Achievements, func(i, k int) bool {
		return view.Achievements[i].ID < view.Achievements[k].ID
	})

	return view, nil
}

// GetHackerLeaderboard 黑客排行榜，声誉降序
func (l *Leaderboard) GetHackerLeaderboard(limit uint64) []*models.LeaderboardEntry {
	return l.leaderboardByRole(models.RoleHacker, limit)
}

// GetCompanyLeaderboard 公司排行榜，声誉降序
func (l *Leaderboard) GetCompanyLeaderboard(limit uint64) []*models.LeaderboardEntry {
	return l.leaderboardByRole(models.RoleCompany, limit)
}

// GetPlatformStats 平台累计计数
func (l *Leaderboard) GetPlatformStats() *models.PlatformStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := l.stats
	for _, profile := range l.profiles {
		switch profile.Role {
		case models.RoleHacker:
			stats.TotalHackers++
		case models.RoleCompany:
			stats.TotalCompanies++
		}
	}
	return &stats
}

// GetUserStats 用户活跃统计
func (l *Leaderboard) GetUserStats() *models.UserStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.clock.Now()
	oneWeekAgo := now - 7*86_400*1_000_000_000
	thirtyDaysAgo := now - 30*86_400*1_000_000_000

	stats := &models.UserStats{TotalUsers: uint64(len(l.profiles))}
	for _, profile := range l.profiles {
		if profile.LastActive > thirtyDaysAgo {
			switch profile.Role {
			case models.RoleHacker:
				stats.ActiveHackers++
			case models.RoleCompany:
				stats.ActiveCompanies++
			}
		}
		if profile.JoinedAt > oneWeekAgo {
			stats.NewUsersLastWeek++
		}
	}
	return stats
}

// GetAchievements 查询用户的成就列表
func (l *Leaderboard) GetAchievements(user models.Principal) []*models.Achievement {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Achievement, 0)
	for _, achievement := range l.achievements {
		if achievement.Recipient == user {
			copied := *achievement
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result
}

// 内部辅助函数，调用方需持有写锁

// createProfile 创建档案
func (l *Leaderboard) createProfile(user models.Principal, role models.UserRole) *models.UserProfile {
	now := l.clock.Now()
	profile := &models.UserProfile{
		Principal:  user,
		Role:       role,
		Reputation: models.DefaultReputation,
		JoinedAt:   now,
		LastActive: now,
	}
	l.profiles[user] = profile
	return profile
}

// ensureProfile 取出档案，缺失时按事件角色创建
func (l *Leaderboard) ensureProfile(user models.Principal, role models.UserRole) *models.UserProfile {
	if profile, exists := l.profiles[user]; exists {
		return profile
	}
	return l.createProfile(user, role)
}

// grantAchievement 授予成就
func (l *Leaderboard) grantAchievement(recipient models.Principal, achievementType models.AchievementType, challengeID *uint64) {
	id := l.nextAchievementID
	l.nextAchievementID++

	l.achievements[id] = &models.Achievement{
		ID:          id,
		Type:        achievementType,
		Recipient:   recipient,
		Timestamp:   l.clock.Now(),
		Description: achievementDescriptions[achievementType],
		ChallengeID: challengeID,
	}

	l.logger.Infof("成就已授予: %s -> %s", achievementType, recipient.String())
}

// leaderboardByRole 按角色生成排行榜
func (l *Leaderboard) leaderboardByRole(role models.UserRole, limit uint64) []*models.LeaderboardEntry {
	if limit == 0 || limit > models.MaxPaginationLimit {
		limit = models.MaxPaginationLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	filtered := make([]*models.UserProfile, 0)
	for _, profile := range l.profiles {
		if profile.Role == role {
			filtered = append(filtered, profile)
		}
	}

	// 声誉降序，并列时按加入时间升序
	sort.Slice(filtered, func(i, k int) bool {
		if filtered[i].Reputation != filtered[k].Reputation {
			return filtered[i].Reputation > filtered[k].Reputation
		}
		return filtered[i].JoinedAt < filtered[k].JoinedAt
	})

	count := int(limit)
	if count > len(filtered) {
		count = len(filtered)
	}

	entries := make([]*models.LeaderboardEntry, 0, count)
	for i, profile := range filtered[:count] {
		entry := &models.LeaderboardEntry{
			Rank:              uint64(i + 1),
			Principal:         profile.Principal,
			Reputation:        profile.Reputation,
			SuccessfulAttacks: profile.SuccessfulAttacks,
			CreatedChallenges: profile.CreatedChallenges,
			TotalEarned:       profile.TotalEarned,
			TotalOffered:      profile.TotalOffered,
			JoinedAt:          profile.JoinedAt,
		}
		if name, exists := l.displayNames[profile.Principal]; exists {
			nameCopy := name
			entry.DisplayName = &nameCopy
		}
		entries = append(entries, entry)
	}
	return entries
}

// reputationGain 按赏金计算声誉增量
func reputationGain(bounty uint64) uint64 {
	// 基础分加赏金加成，每100基础单位1分
	return 50 + bounty/100
}
