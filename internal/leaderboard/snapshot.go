package leaderboard

import (
	"encoding/json"
	"fmt"

	"zerolock/internal/store"
	"zerolock/pkg/models"
)

// Snapshot 把声誉观察者状态写入快照存储
func (l *Leaderboard) Snapshot(s *store.Store) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	profiles := make(map[string][]byte, len(l.profiles))
	for user, profile := range l.profiles {
		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("序列化档案失败: %w", err)
		}
		profiles[string(user)] = data
	}
	if err := s.ReplaceAll(store.LeaderboardProfilesBucket, profiles); err != nil {
		return err
	}

	names := make(map[string][]byte, len(l.displayNames))
	for user, name := range l.displayNames {
		data, err := json.Marshal(name)
		if err != nil {
			return fmt.Errorf("序列化显示名失败: %w", err)
		}
		names[string(user)] = data
	}
	if err := s.ReplaceAll(store.LeaderboardNamesBucket, names); err != nil {
		return err
	}

	achievements := make(map[string][]byte, len(l.achievements))
	for id, achievement := range l.achievements {
		data, err := json.Marshal(achievement)
		if err != nil {
			return fmt.Errorf("序列化成就失败: %w", err)
		}
		achievements[store.IDKey(id)] = data
	}
	if err := s.ReplaceAll(store.LeaderboardAchievementsBucket, achievements); err != nil {
		return err
	}

	history := make(map[string][]byte, len(l.challengeHistory))
	for user, ids := range l.challengeHistory {
		data, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("序列化挑战历史失败: %w", err)
		}
		history[string(user)] = data
	}
	if err := s.ReplaceAll(store.LeaderboardHistoryBucket, history); err != nil {
		return err
	}

	if err := s.PutCounter("leaderboard_next_achievement_id", l.nextAchievementID); err != nil {
		return err
	}
	if err := s.PutJSON(store.MetaBucket, "leaderboard_stats", &l.stats); err != nil {
		return err
	}

	l.logger.Infof("声誉快照已保存: %d 档案, %d 成就", len(l.profiles), len(l.achievements))
	return nil
}

// Restore 从快照存储恢复声誉观察者状态
func (l *Leaderboard) Restore(s *store.Store) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	profiles := make(map[models.Principal]*models.UserProfile)
	err := s.ForEach(store.LeaderboardProfilesBucket, func(key, value []byte) error {
		var profile models.UserProfile
		if err := json.Unmarshal(value, &profile); err != nil {
			return fmt.Errorf("反序列化档案失败: %w", err)
		}
		profiles[models.Principal(key)] = &profile
		return nil
	})
	if err != nil {
		return err
	}

	names := make(map[models.Principal]string)
	err = s.ForEach(store.LeaderboardNamesBucket, func(key, value []byte) error {
		var name string
		if err := json.Unmarshal(value, &name); err != nil {
			return fmt.Errorf("反序列化显示名失败: %w", err)
		}
		names[models.Principal(key)] = name
		return nil
	})
	if err != nil {
		return err
	}

	achievements := make(map[uint64]*models.Achievement)
	err = s.ForEach(store.LeaderboardAchievementsBucket, func(key, value []byte) error {
		var achievement models.Achievement
		if err := json.Unmarshal(value, &achievement); err != nil {
			return fmt.Errorf("反序列化成就失败: %w", err)
		}
		achievements[achievement.ID] = &achievement
		return nil
	})
	if err != nil {
		return err
	}

	history := make(map[models.Principal][]uint64)
	err = s.ForEach(store.LeaderboardHistoryBucket, func(key, value []byte) error {
		var ids []uint64
		if err := json.Unmarshal(value, &ids); err != nil {
			return fmt.Errorf("反序列化挑战历史失败: %w", err)
		}
		history[models.Principal(key)] = ids
		return nil
	})
	if err != nil {
		return err
	}

	var stats models.PlatformStats
	if _, err := s.GetJSON(store.MetaBucket, "leaderboard_stats", &stats); err != nil {
		return err
	}

	l.profiles = profiles
	l.displayNames = names
	l.achievements = achievements
	l.challengeHistory = history
	l.stats = stats
	l.nextAchievementID = s.GetCounter("leaderboard_next_achievement_id", 1)

	l.logger.Infof("声誉状态已恢复: %d 档案, %d 成就", len(l.profiles), len(l.achievements))
	return nil
}
