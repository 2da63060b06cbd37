package network

import (
	"fmt"

	"github.com/emersonmde/eqprop/diode"
)

// InvalidTopologyError 拓扑构造错误。
// 自由节点没有到任何固定节点的通路、或连接引用越界索引时，
// KCL方程组奇异，在构造期致命报错，不可恢复。
type InvalidTopologyError struct {
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	return fmt.Sprintf("无效网络拓扑: %s", e.Reason)
}

// Network 电阻网络拓扑描述（构造后不可变）。
// 全局节点编号: 固定节点在前 [0, NumFixed)，
// 自由节点在后 [NumFixed, NumFixed+NumFree)。求解器只返回自由节点电压。
//
// Connections 的顺序即权重的规范编号 W1..Wn，
// 训练更新、SPICE导出和显示全部沿用该顺序。
// 连接无方向，符号约定为电流从 [0] 流向 [1]。
type Network struct {
	NumFixed int // 钳位（输入/偏置）节点数量
	NumFree  int // 自由（求解）节点数量

	// Connections 权重拓扑，每条目一个权重电阻，(全局源, 全局目标)。
	Connections [][2]int

	// DiodeNodes 自由节点索引（0基，自由数组内） -> 反并联二极管对的参考轨电压。
	DiodeNodes map[int]float64

	OutputPos int // 正输出的自由节点索引
	OutputNeg int // 负输出的自由节点索引

	// NudgeSigns 自由节点索引 -> 推动符号（±1）。
	// 推动电流 = 符号 * beta * 误差。
	NudgeSigns map[int]float64

	// SpiceNames 每个全局节点的SPICE节点名（导出用，可空）。
	SpiceNames []string

	Diode   diode.Params // 二极管模型参数
	Weights WeightParams // 权重电阻物理约束
}

// New 构造并校验网络拓扑
// 参数:
//
//	numFixed, numFree - 固定/自由节点数量
//	connections - 权重连接列表（规范顺序）
//
// 返回:
//
//	校验通过的Network（默认BAT42二极管和MCP4251权重参数），
//	或 InvalidTopologyError
func New(numFixed, numFree int, connections [][2]int) (*Network, error) {
	net := &Network{
		NumFixed:    numFixed,
		NumFree:     numFree,
		Connections: connections,
		DiodeNodes:  map[int]float64{},
		NudgeSigns:  map[int]float64{},
		OutputPos:   0,
		OutputNeg:   1,
		Diode:       diode.BAT42,
		Weights:     MCP4251,
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	return net, nil
}

// NumNodes 全局节点总数。
func (net *Network) NumNodes() int { return net.NumFixed + net.NumFree }

// NumWeights 权重数量。
func (net *Network) NumWeights() int { return len(net.Connections) }

// Validate 校验拓扑
// 检查节点计数、连接索引范围、输出节点索引，
// 以及每个自由节点经连接（或二极管对）可达某个固定节点。
func (net *Network) Validate() error {
	if net.NumFixed < 1 {
		return &InvalidTopologyError{Reason: "至少需要一个固定节点"}
	}
	if net.NumFree < 1 {
		return &InvalidTopologyError{Reason: "至少需要一个自由节点"}
	}
	n := net.NumNodes()
	for w, c := range net.Connections {
		for _, idx := range c {
			if idx < 0 || idx >= n {
				return &InvalidTopologyError{
					Reason: fmt.Sprintf("连接W%d引用越界节点索引 %d（节点总数 %d）", w+1, idx, n),
				}
			}
		}
		if c[0] == c[1] {
			return &InvalidTopologyError{
				Reason: fmt.Sprintf("连接W%d为自环（节点 %d）", w+1, c[0]),
			}
		}
	}
	for freeIdx := range net.DiodeNodes {
		if freeIdx < 0 || freeIdx >= net.NumFree {
			return &InvalidTopologyError{
				Reason: fmt.Sprintf("二极管对引用越界自由节点索引 %d", freeIdx),
			}
		}
	}
	for freeIdx := range net.NudgeSigns {
		if freeIdx < 0 || freeIdx >= net.NumFree {
			return &InvalidTopologyError{
				Reason: fmt.Sprintf("推动符号引用越界自由节点索引 %d", freeIdx),
			}
		}
	}
	for _, idx := range []int{net.OutputPos, net.OutputNeg} {
		if idx < 0 || idx >= net.NumFree {
			return &InvalidTopologyError{
				Reason: fmt.Sprintf("输出节点索引 %d 越界", idx),
			}
		}
	}
	if len(net.SpiceNames) != 0 && len(net.SpiceNames) != n {
		return &InvalidTopologyError{
			Reason: fmt.Sprintf("SPICE节点名数量 %d 与节点总数 %d 不符", len(net.SpiceNames), n),
		}
	}
	return net.checkReachability()
}

// checkReachability 自由节点连通性检查。
// 从全部固定节点（含二极管参考轨所锚定的自由节点）做一次遍历，
// 存在孤立自由节点则KCL矩阵奇异。
func (net *Network) checkReachability() error {
	reached := make([]bool, net.NumNodes())
	for i := 0; i < net.NumFixed; i++ {
		reached[i] = true
	}
	// 二极管对是到固定参考轨的并联支路，锚定其所在自由节点
	for freeIdx := range net.DiodeNodes {
		reached[net.NumFixed+freeIdx] = true
	}
	// 沿连接传播可达性，直到不动点
	for changed := true; changed; {
		changed = false
		for _, c := range net.Connections {
			a, b := c[0], c[1]
			if reached[a] != reached[b] {
				reached[a], reached[b] = true, true
				changed = true
			}
		}
	}
	for i := 0; i < net.NumFree; i++ {
		if !reached[net.NumFixed+i] {
			return &InvalidTopologyError{
				Reason: fmt.Sprintf("自由节点 %d 没有到固定节点的通路", i),
			}
		}
	}
	return nil
}

// Prediction 从自由节点电压计算输出预测（差分电压）。
func (net *Network) Prediction(freeVoltages []float64) float64 {
	return freeVoltages[net.OutputPos] - freeVoltages[net.OutputNeg]
}

// NudgeCurrents 构造自由节点的推动电流向量
// 参数:
//
//	beta - 推动强度
//	err - 预测误差 target - prediction
//
// 返回:
//
//	长度NumFree的注入电流向量（正值流入节点）
func (net *Network) NudgeCurrents(beta, err float64) []float64 {
	nudge := make([]float64, net.NumFree)
	for freeIdx, sign := range net.NudgeSigns {
		nudge[freeIdx] = sign * beta * err
	}
	return nudge
}
