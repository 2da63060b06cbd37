// Package xor XOR拓扑定义、数据集和验证。
//
// 第一个验证性拓扑: 6输入、2隐藏、2输出、16个权重电阻。
// 更大的分类器拓扑应作为同模式的兄弟包出现，
// 核心求解器只消费Network和数值向量，不知道XOR的存在。
package xor

import (
	"fmt"
	"io"

	"github.com/emersonmde/eqprop/kcl"
	"github.com/emersonmde/eqprop/network"
	"github.com/emersonmde/eqprop/training"
)

// 电压轨。
const (
	VMid  = 2.5 // 二极管返回轨 (V)
	VLow  = 1.0 // 低偏置输入 (V)
	VHigh = 4.0 // 高偏置输入 (V)
	VRail = 5.0 // 互补输入满轨 (V)
)

// New 创建16权重互补输入XOR网络。
//
// 全局节点编号:
//
//	0=X1, 1=X1_comp, 2=X2, 3=X2_comp, 4=V_LOW, 5=V_HIGH,
//	6=H1, 7=H2, 8=YP, 9=YN
//
// 自由节点（自由数组内0基）: 0=H1, 1=H2, 2=YP, 3=YN
func New() *network.Network {
	connections := [][2]int{
		{0, 6}, // W1:  X1 -> H1
		{0, 7}, // W2:  X1 -> H2
		{1, 6}, // W3:  X1_comp -> H1
		{1, 7}, // W4:  X1_comp -> H2
		{2, 6}, // W5:  X2 -> H1
		{2, 7}, // W6:  X2 -> H2
		{3, 6}, // W7:  X2_comp -> H1
		{3, 7}, // W8:  X2_comp -> H2
		{4, 6}, // W9:  V_LOW -> H1
		{4, 7}, // W10: V_LOW -> H2
		{5, 6}, // W11: V_HIGH -> H1
		{5, 7}, // W12: V_HIGH -> H2
		{6, 8}, // W13: H1 -> YP
		{6, 9}, // W14: H1 -> YN
		{7, 8}, // W15: H2 -> YP
		{7, 9}, // W16: H2 -> YN
	}

	net, err := network.New(6, 4, connections)
	if err != nil {
		// 拓扑是编译期常量，构造失败属于程序缺陷
		panic(err)
	}
	net.DiodeNodes = map[int]float64{0: VMid, 1: VMid} // H1, H2 带二极管对
	net.OutputPos = 2                                  // YP
	net.OutputNeg = 3                                  // YN
	net.NudgeSigns = map[int]float64{2: +1.0, 3: -1.0} // 注入YP、抽出YN
	net.SpiceNames = []string{
		"x1", "x1c", "x2", "x2c", "vlow", "vhigh",
		"h1", "h2", "yp", "yn",
	}
	if err := net.Validate(); err != nil {
		panic(err)
	}
	return net
}

// Inputs 由X1、X2电压构造6元输入向量。
// 互补输入让等效负权重成为可能: w_eff = g(X1->H) - g(X1_comp->H)。
func Inputs(vX1, vX2 float64) []float64 {
	return []float64{vX1, VRail - vX1, vX2, VRail - vX2, VLow, VHigh}
}

// Dataset XOR真值表（目标0.3V: 二极管把隐藏节点钳在约2.2-2.8V，
// 最大输出差分约0.4V，0.3V是可达目标）。
func Dataset() []training.Pattern {
	return []training.Pattern{
		{Inputs: Inputs(1.0, 1.0), Target: 0.0, Label: "(0,0)"},
		{Inputs: Inputs(1.0, 4.0), Target: 0.3, Label: "(0,1)"},
		{Inputs: Inputs(4.0, 1.0), Target: 0.3, Label: "(1,0)"},
		{Inputs: Inputs(4.0, 4.0), Target: 0.0, Label: "(1,1)"},
	}
}

// Verify 验证权重是否实现XOR
// 参数:
//
//	net - XOR网络
//	weights - 训练后的电阻
//	threshold - 判决阈值 (V)
//	w - 报告输出，nil则不打印
//
// 返回:
//
//	4个样本全部判决正确时为true
func Verify(net *network.Network, weights []float64, threshold float64, w io.Writer) (bool, error) {
	if w == nil {
		w = io.Discard
	}
	ok := true
	for _, p := range Dataset() {
		res, err := kcl.Solve(net, p.Inputs, weights, nil)
		if err != nil {
			return false, fmt.Errorf("样本 %s 求解失败: %w", p.Label, err)
		}
		pred := net.Prediction(res.Voltages)
		var correct bool
		if p.Target > 0.1 {
			correct = pred > threshold
		} else {
			correct = pred < threshold && pred > -threshold
		}
		status := "PASS"
		if !correct {
			status = "FAIL"
			ok = false
		}
		fmt.Fprintf(w, "  %s: pred=%+.4fV  target=%.1fV  [%s]\n", p.Label, pred, p.Target, status)
	}
	fmt.Fprintln(w, "\n  最终权重:")
	for i, r := range weights {
		tap := net.Weights.ResistanceToTap(r)
		fmt.Fprintf(w, "    W%-2d: R=%8.0f ohm  (tap=%3d)\n", i+1, r, tap)
	}
	return ok, nil
}
