package vault

import (
	"encoding/json"
	"fmt"

	"zerolock/internal/store"
	"zerolock/pkg/models"
)

// vaultMeta 随快照保存的单例状态
type vaultMeta struct {
	AuthorizedCallers []models.Principal `json:"authorized_callers"`
	Admins            []models.Principal `json:"admins"`
	FeeRecipient      models.Principal   `json:"fee_recipient"`
	Paused            bool               `json:"paused"`
}

// Snapshot 把金库状态写入快照存储
func (v *Vault) Snapshot(s *store.Store) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	balances := make(map[string][]byte, len(v.balances))
	for key, balance := range v.balances {
		data, err := json.Marshal(balance)
		if err != nil {
			return fmt.Errorf("序列化余额行失败: %w", err)
		}
		balances[key] = data
	}
	if err := s.ReplaceAll(store.VaultBalancesBucket, balances); err != nil {
		return err
	}

	locks := make(map[string][]byte, len(v.locks))
	for id, lock := range v.locks {
		data, err := json.Marshal(lock)
		if err != nil {
			return fmt.Errorf("序列化锁定记录失败: %w", err)
		}
		locks[store.IDKey(id)] = data
	}
	if err := s.ReplaceAll(store.VaultLocksBucket, locks); err != nil {
		return err
	}

	transactions := make(map[string][]byte, len(v.transactions))
	for _, tx := range v.transactions {
		data, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("序列化交易失败: %w", err)
		}
		transactions[store.IDKey(tx.ID)] = data
	}
	if err := s.ReplaceAll(store.VaultTransactionsBucket, transactions); err != nil {
		return err
	}

	if err := s.PutCounter("vault_next_tx_id", v.nextTxID); err != nil {
		return err
	}

	meta := &vaultMeta{
		AuthorizedCallers: principalSet(v.authorizedCallers),
		Admins:            principalSet(v.admins),
		FeeRecipient:      v.feeRecipient,
		Paused:            v.paused,
	}
	if err := s.PutJSON(store.MetaBucket, "vault_meta", meta); err != nil {
		return err
	}

	v.logger.Infof("金库快照已保存: %d 余额行, %d 锁定, %d 交易",
		len(v.balances), len(v.locks), len(v.transactions))
	return nil
}

// Restore 从快照存储恢复金库状态
func (v *Vault) Restore(s *store.Store) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	balances := make(map[string]*models.Balance)
	err := s.ForEach(store.VaultBalancesBucket, func(key, value []byte) error {
		var balance models.Balance
		if err := json.Unmarshal(value, &balance); err != nil {
			return fmt.Errorf("反序列化余额行失败: %w", err)
		}
		balances[string(key)] = &balance
		return nil
	})
	if err != nil {
		return err
	}

	locks := make(map[uint64]*models.LockInfo)
	err = s.ForEach(store.VaultLocksBucket, func(key, value []byte) error {
		var lock models.LockInfo
		if err := json.Unmarshal(value, &lock); err != nil {
			return fmt.Errorf("反序列化锁定记录失败: %w", err)
		}
		locks[lock.ChallengeID] = &lock
		return nil
	})
	if err != nil {
		return err
	}

	transactions := make([]*models.Transaction, 0)
	err = s.ForEach(store.VaultTransactionsBucket, func(key, value []byte) error {
		var tx models.Transaction
		if err := json.Unmarshal(value, &tx); err != nil {
			return fmt.Errorf("反序列化交易失败: %w", err)
		}
		transactions = append(transactions, &tx)
		return nil
	})
	if err != nil {
		return err
	}

	var meta vaultMeta
	found, err := s.GetJSON(store.MetaBucket, "vault_meta", &meta)
	if err != nil {
		return err
	}

	v.balances = balances
	v.locks = locks
	v.transactions = transactions
	v.nextTxID = s.GetCounter("vault_next_tx_id", 1)

	if found {
		v.authorizedCallers = make(map[models.Principal]bool, len(meta.AuthorizedCallers))
		for _, p := range meta.AuthorizedCallers {
			v.authorizedCallers[p] = true
		}
		v.admins = make(map[models.Principal]bool, len(meta.Admins))
		for _, p := range meta.Admins {
			v.admins[p] = true
		}
		if meta.FeeRecipient != "" {
			v.feeRecipient = meta.FeeRecipient
		}
		v.paused = meta.Paused
	}

	v.logger.Infof("金库状态已恢复: %d 余额行, %d 锁定, %d 交易",
		len(v.balances), len(v.locks), len(v.transactions))
	return nil
}
