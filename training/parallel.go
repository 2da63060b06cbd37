package training

import (
	"sync"

	"github.com/emersonmde/eqprop/network"
)

// BatchGradients 并行评估一批互相独立样本的梯度。
// Network只读可安全共享，每次求解的电压状态都是调用私有的，
// 权重按值传入各goroutine，无共享可变状态。
// 参数:
//
//	net - 网络拓扑（只读）
//	patterns - 样本批
//	weights - 连接电阻（所有样本共用同一权重快照）
//	beta - 推动强度
//	opts - 每样本选项（nil或长度不符时全部用默认）
//
// 返回:
//
//	与样本对齐的结果和错误切片；失败样本的结果为nil，
//	错误不会被吞掉，由调用方决定重试或跳过
func BatchGradients(net *network.Network, patterns []Pattern, weights []float64,
	beta float64, opts []*Options) ([]*GradientResult, []error) {

	results := make([]*GradientResult, len(patterns))
	errs := make([]error, len(patterns))
	if len(opts) != len(patterns) {
		opts = make([]*Options, len(patterns))
	}

	var wg sync.WaitGroup
	for i := range patterns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Gradient(net, patterns[i].Inputs, weights, patterns[i].Target, beta, opts[i])
		}(i)
	}
	wg.Wait()
	return results, errs
}
