// Package eqprop 平衡传播模拟电路训练器。
//
// 电阻/二极管网络的KCL稳态求解、平衡传播梯度、电导空间有界
// 梯度下降训练，以及SPICE交叉验证与可视化协作方的统一入口。
// 各子包可独立使用，本包只做组装。
package eqprop

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/emersonmde/eqprop/debug"
	"github.com/emersonmde/eqprop/kcl"
	"github.com/emersonmde/eqprop/network"
	"github.com/emersonmde/eqprop/spice"
	"github.com/emersonmde/eqprop/training"
)

// Experiment 一次完整的训练实验
type Experiment struct {
	Net     *network.Network
	Dataset []training.Pattern
	Config  training.Config

	// Record 训练历史（Train自动接管日志回调填充）。
	Record debug.Charts
}

// NewExperiment 初始化
func NewExperiment(net *network.Network, dataset []training.Pattern, cfg training.Config) *Experiment {
	e := &Experiment{Net: net, Dataset: dataset, Config: cfg}
	e.Record.Init(net, dataset)
	return e
}

// Train 运行训练循环并记录历史
// 外部LogFn仍然生效，记录回调在其之前执行。
func (e *Experiment) Train() (*training.Result, error) {
	cfg := e.Config
	record := e.Record.LogFn()
	outer := cfg.LogFn
	cfg.LogFn = func(epoch int, loss float64, preds []float64) {
		record(epoch, loss, preds)
		if outer != nil {
			outer(epoch, loss, preds)
		}
	}
	res, err := training.Train(e.Net, e.Dataset, cfg)
	if res != nil {
		e.Record.Snapshot(res.Weights)
	}
	return res, err
}

// Evaluate 不训练，逐样本求自由相并返回预测
// 参数:
//
//	weights - 权重电阻 (Ω)
//
// 返回:
//
//	每样本差分输出电压
func (e *Experiment) Evaluate(weights []float64) ([]float64, error) {
	preds := make([]float64, len(e.Dataset))
	for i, p := range e.Dataset {
		res, err := kcl.Solve(e.Net, p.Inputs, weights, nil)
		if err != nil {
			return nil, fmt.Errorf("样本 %s 求解失败: %w", p.Label, err)
		}
		preds[i] = e.Net.Prediction(res.Voltages)
	}
	return preds, nil
}

// CrossValidate 用ngspice逐样本交叉验证KCL求解器。
func (e *Experiment) CrossValidate(ctx context.Context, weights []float64, tolPct float64) (*spice.Report, error) {
	return spice.CrossValidate(ctx, e.Net, weights, e.Dataset, tolPct)
}

// Dashboard 把训练历史仪表盘渲染成HTML。
func (e *Experiment) Dashboard(w io.Writer) error {
	return e.Record.Render(w)
}

// Handler 训练历史仪表盘的HTTP处理器。
func (e *Experiment) Handler(w http.ResponseWriter, r *http.Request) {
	e.Record.Handler(w, r)
}
