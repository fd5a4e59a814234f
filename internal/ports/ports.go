package ports

import (
	"context"

	"zerolock/pkg/models"
)

// 核心消费的外部能力端口
// 所有端口调用都是声明过的挂起点，组件不得在持有自身锁时调用

// Clock 单调纳秒时钟
type Clock interface {
	Now() int64
}

// BalanceProbe 目标程序余额探针
// 返回目标在挑战代币基础单位下的可观测余额
type BalanceProbe interface {
	Probe(ctx context.Context, target models.Principal) (uint64, error)
}

// DeployPort 目标程序部署能力
// 创建新的目标程序、安装镜像并返回其身份标识
type DeployPort interface {
	Deploy(ctx context.Context, wasmImage []byte, initArg []byte) (models.Principal, error)
}

// TransferPort 外部转账轨道
// 最简模式下核心自身的账本就是唯一轨道，此端口为空操作
type TransferPort interface {
	Transfer(ctx context.Context, from, to models.Principal, token models.TokenType, amount uint64) error
}
