package spice

import (
	"context"
	"fmt"
	"math"

	"github.com/emersonmde/eqprop/kcl"
	"github.com/emersonmde/eqprop/network"
	"github.com/emersonmde/eqprop/training"
)

// NodeComparison 单个自由节点的求解器/SPICE电压比对。
type NodeComparison struct {
	Name   string  // SPICE节点名
	Solver float64 // KCL求解器电压 (V)
	Spice  float64 // ngspice工作点电压 (V)
	ErrPct float64 // 相对误差百分比
}

// PatternReport 单个输入模式的交叉验证结果。
type PatternReport struct {
	Label string
	Nodes []NodeComparison
	Pass  bool
}

// Report 整个数据集的交叉验证结果。
type Report struct {
	Patterns []PatternReport
	Pass     bool // 所有模式所有节点都在容差内
}

// CrossValidate 用ngspice交叉验证KCL求解器
// 对每个输入模式: 求解自由相、导出网表、运行ngspice、
// 逐节点比对电压相对误差。
// 参数:
//
//	tolPct - 允许的最大相对误差（百分比，典型1.0）
func CrossValidate(ctx context.Context, net *network.Network, weights []float64, patterns []training.Pattern, tolPct float64) (*Report, error) {
	if !Available() {
		return nil, fmt.Errorf("ngspice不在PATH中")
	}
	report := &Report{Pass: true}
	for _, p := range patterns {
		res, err := kcl.Solve(net, p.Inputs, weights, nil)
		if err != nil {
			return nil, fmt.Errorf("模式 %s 求解失败: %w", p.Label, err)
		}
		netlist, err := Netlist(net, weights, p.Inputs, nil)
		if err != nil {
			return nil, err
		}
		vals, err := Run(ctx, netlist)
		if err != nil {
			return nil, fmt.Errorf("模式 %s ngspice失败: %w", p.Label, err)
		}

		pr := PatternReport{Label: p.Label, Pass: true}
		for i := 0; i < net.NumFree; i++ {
			name := net.SpiceNames[net.NumFixed+i]
			sv, ok := vals["v("+name+")"]
			if !ok {
				return nil, fmt.Errorf("ngspice输出缺少节点 v(%s)", name)
			}
			kv := res.Voltages[i]
			errPct := relErrPct(kv, sv)
			nc := NodeComparison{Name: name, Solver: kv, Spice: sv, ErrPct: errPct}
			if errPct > tolPct {
				pr.Pass = false
				report.Pass = false
			}
			pr.Nodes = append(pr.Nodes, nc)
		}
		report.Patterns = append(report.Patterns, pr)
	}
	return report, nil
}

// relErrPct 相对误差百分比，参考值接近零时退化为绝对误差。
func relErrPct(ref, val float64) float64 {
	denom := math.Abs(ref)
	if denom < 1e-6 {
		denom = 1.0
	}
	return math.Abs(val-ref) / denom * 100.0
}
