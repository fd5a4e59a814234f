package ports

import (
	"context"
	"fmt"
	"sync"

	"zerolock/internal/errors"
	"zerolock/pkg/models"
)

// LocalBalanceProbe 进程内余额探针
// 本地模式与测试使用，余额由部署端口或测试用例直接设定
type LocalBalanceProbe struct {
	mu       sync.RWMutex
	balances map[models.Principal]uint64
	failing  bool
}

// NewLocalBalanceProbe 创建进程内探针
func NewLocalBalanceProbe() *LocalBalanceProbe {
	return &LocalBalanceProbe{
		balances: make(map[models.Principal]uint64),
	}
}

// Probe 返回目标的当前余额
func (p *LocalBalanceProbe) Probe(ctx context.Context, target models.Principal) (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.failing {
		return 0, errors.NetworkError("探针不可用", nil)
	}

	balance, exists := p.balances[target]
	if !exists {
		return 0, errors.NotFound(fmt.Sprintf("目标 %s 不存在", target))
	}
	return balance, nil
}

// SetBalance 设定目标余额
func (p *LocalBalanceProbe) SetBalance(target models.Principal, balance uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[target] = balance
}

// SetFailing 切换探针故障模式，测试用
func (p *LocalBalanceProbe) SetFailing(failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = failing
}

// LocalDeployPort 进程内部署端口
// 按序生成目标程序标识，并在探针中登记初始余额
type LocalDeployPort struct {
	mu             sync.Mutex
	nextID         uint64
	probe          *LocalBalanceProbe
	initialBalance uint64
	failing        bool
}

// NewLocalDeployPort 创建进程内部署端口
// initialBalance 为新目标在探针中的起始余额
func NewLocalDeployPort(probe *LocalBalanceProbe, initialBalance uint64) *LocalDeployPort {
	return &LocalDeployPort{
		nextID:         1,
		probe:          probe,
		initialBalance: initialBalance,
	}
}

// Deploy 部署目标程序并返回其标识
func (d *LocalDeployPort) Deploy(ctx context.Context, wasmImage []byte, initArg []byte) (models.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failing {
		return "", errors.NetworkError("部署端口不可用", nil)
	}
	if len(wasmImage) == 0 {
		return "", errors.InvalidInput("目标程序镜像不能为空")
	}

	id := models.Principal(fmt.Sprintf("target-program-%d", d.nextID))
	d.nextID++

	if d.probe != nil {
		d.probe.SetBalance(id, d.initialBalance)
	}
	return id, nil
}

// SetFailing 切换部署故障模式，测试用
func (d *LocalDeployPort) SetFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = failing
}

// NoopTransferPort 空操作转账轨道
// 核心账本即唯一资金轨道时使用
type NoopTransferPort struct{}

// Transfer 空操作，始终成功
func (NoopTransferPort) Transfer(ctx context.Context, from, to models.Principal, token models.TokenType, amount uint64) error {
	return nil
}
