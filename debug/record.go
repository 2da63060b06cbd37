// Package debug 训练过程可视化。
//
// 记录每epoch的损失/预测/权重快照，输出go-echarts网页仪表盘
// 或gonum/plot静态PNG。仅供调试与报告，核心训练路径不依赖本包。
package debug

import (
	"encoding/json"
	"io"
	"log"

	"github.com/emersonmde/eqprop/network"
	"github.com/emersonmde/eqprop/training"
)

// Record 记录训练历史状态
type Record struct {
	Net      *network.Network // 网络拓扑（绘制连接图）
	Labels   []string         // 样本标签
	Epoch    []int            // 记录点epoch序号
	Loss     []float64        // 损失列
	Preds    [][]float64      // 预测列（每记录点 × 每样本）
	Weights  [][]float64      // 权重快照 (kΩ)
}

// Init 初始化
func (list *Record) Init(net *network.Network, dataset []training.Pattern) {
	list.Net = net
	list.Labels = make([]string, len(dataset))
	for i, p := range dataset {
		list.Labels[i] = p.Label
	}
}

// LogFn 适配训练配置的日志回调，每次调用追加一个记录点。
// 权重快照由调用方经Snapshot另行提交（回调不携带权重）。
func (list *Record) LogFn() func(epoch int, loss float64, preds []float64) {
	return func(epoch int, loss float64, preds []float64) {
		list.Epoch = append(list.Epoch, epoch)
		list.Loss = append(list.Loss, loss)
		list.Preds = append(list.Preds, append([]float64{}, preds...))
	}
}

// Snapshot 追加一份权重快照 (Ω输入，kΩ存储)。
func (list *Record) Snapshot(weights []float64) {
	kw := make([]float64, len(weights))
	for i, w := range weights {
		kw[i] = w / 1000.0
	}
	list.Weights = append(list.Weights, kw)
}

// Render 格式和输出内容
func (list *Record) Render(w io.Writer) error { return json.NewEncoder(w).Encode(list) }

func (list *Record) Error(err error) { log.Println(err) }
