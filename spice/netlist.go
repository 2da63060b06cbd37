// Package spice SPICE网表导出与ngspice交叉验证。
//
// 由Network定义生成网表、批处理模式运行ngspice、解析.raw输出，
// 并与KCL求解器的节点电压比对。属于测试/验证协作方，
// 不在核心运行路径上，核心包不得反向引用。
package spice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emersonmde/eqprop/network"
)

// Netlist 由Network定义生成SPICE网表
// 参数:
//
//	net - 带SpiceNames的网络拓扑
//	weights - 每连接电阻 (Ω)
//	inputs - 固定节点钳位电压
//	nudge - 自由节点注入电流（nil表示无）
//
// 返回:
//
//	网表文本
func Netlist(net *network.Network, weights, inputs, nudge []float64) (string, error) {
	if len(net.SpiceNames) != net.NumNodes() {
		return "", fmt.Errorf("网络缺少SPICE节点名（%d/%d）", len(net.SpiceNames), net.NumNodes())
	}
	if len(weights) != net.NumWeights() {
		return "", fmt.Errorf("权重数量 %d 与连接数 %d 不符", len(weights), net.NumWeights())
	}
	names := net.SpiceNames
	rSeries := net.Weights.RSeries
	d := net.Diode

	var b strings.Builder
	fmt.Fprintf(&b, "* Auto-generated EqProp network\n")
	fmt.Fprintf(&b, ".model BAT42 D(Is=%g Rs=12 N=%g Cjo=15p Vj=0.25 M=0.5)\n", d.Is, d.N)
	fmt.Fprintf(&b, "\n* Input voltages\n")

	// 固定节点电压源
	for idx := 0; idx < net.NumFixed; idx++ {
		fmt.Fprintf(&b, "V_%s %s 0 %g\n", strings.ToUpper(names[idx]), names[idx], inputs[idx])
	}

	// 二极管对的参考轨电压源
	fmt.Fprintf(&b, "\n* Reference voltages\n")
	for _, freeIdx := range sortedDiodeNodes(net) {
		node := names[net.NumFixed+freeIdx]
		fmt.Fprintf(&b, "V_MID_%s vmid_%s 0 %g\n", strings.ToUpper(node), node, net.DiodeNodes[freeIdx])
	}

	// 权重电阻: 串联保护电阻 + 可变电位器
	fmt.Fprintf(&b, "\n* Weight resistors (series protection + variable pot)\n")
	for i, c := range net.Connections {
		src, dst := names[c[0]], names[c[1]]
		rPot := weights[i] - rSeries
		mid := fmt.Sprintf("w%dm", i+1)
		fmt.Fprintf(&b, "R_s%d %s %s %g\n", i+1, src, mid, rSeries)
		fmt.Fprintf(&b, "R_W%d %s %s %.1f\n", i+1, mid, dst, rPot)
	}

	// 反并联二极管对
	fmt.Fprintf(&b, "\n* Activation functions (antiparallel BAT42 pairs)\n")
	for dCount, freeIdx := range sortedDiodeNodes(net) {
		node := names[net.NumFixed+freeIdx]
		fmt.Fprintf(&b, "D%da %s vmid_%s BAT42\n", dCount+1, node, node)
		fmt.Fprintf(&b, "D%db vmid_%s %s BAT42\n", dCount+1, node, node)
	}

	// 推动电流源
	if hasNudge(nudge) {
		fmt.Fprintf(&b, "\n* Nudge current sources\n")
		for freeIdx, i := range nudge {
			if i != 0 {
				node := names[net.NumFixed+freeIdx]
				fmt.Fprintf(&b, "I_nudge_%s 0 %s %g\n", node, node, i)
			}
		}
	}

	// 保存自由节点电压
	saves := make([]string, net.NumFree)
	for i := 0; i < net.NumFree; i++ {
		saves[i] = fmt.Sprintf("v(%s)", names[net.NumFixed+i])
	}
	fmt.Fprintf(&b, "\n.op\n\n.save %s\n\n.end\n", strings.Join(saves, " "))

	return b.String(), nil
}

// sortedDiodeNodes 二极管节点索引升序（map遍历顺序不确定，导出须可复现）。
func sortedDiodeNodes(net *network.Network) []int {
	idx := make([]int, 0, len(net.DiodeNodes))
	for i := range net.DiodeNodes {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func hasNudge(nudge []float64) bool {
	for _, v := range nudge {
		if v != 0 {
			return true
		}
	}
	return false
}
