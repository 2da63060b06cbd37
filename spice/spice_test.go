package spice_test

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/emersonmde/eqprop/network"
	"github.com/emersonmde/eqprop/spice"
	"github.com/emersonmde/eqprop/xor"
)

func TestNetlistContent(t *testing.T) {
	net := xor.New()
	weights := network.UniformWeights(net.NumWeights(), 50000.0)
	inputs := xor.Inputs(xor.VLow, xor.VHigh)

	nl, err := spice.Netlist(net, weights, inputs, nil)
	if err != nil {
		t.Fatalf("网表生成失败: %v", err)
	}

	want := []string{
		".model BAT42 D(Is=1e-07 Rs=12 N=1.1 Cjo=15p Vj=0.25 M=0.5)",
		"V_X1 x1 0 1",
		"V_X2 x2 0 4",
		"V_VHIGH vhigh 0 4",
		"R_s1 x1 w1m 1200",
		"R_W1 w1m h1 48800.0",
		"D1a h1 vmid_h1 BAT42",
		"D1b vmid_h1 h1 BAT42",
		"V_MID_H1 vmid_h1 0 2.5",
		".op",
		".save v(h1) v(h2) v(yp) v(yn)",
		".end",
	}
	for _, w := range want {
		if !strings.Contains(nl, w) {
			t.Errorf("网表缺少 %q", w)
		}
	}
	if strings.Contains(nl, "I_nudge") {
		t.Error("无推动时不应出现电流源")
	}
}

func TestNetlistNudgeSources(t *testing.T) {
	net := xor.New()
	weights := network.UniformWeights(net.NumWeights(), 50000.0)
	inputs := xor.Inputs(xor.VLow, xor.VLow)
	nudge := net.NudgeCurrents(1e-5, 0.2)

	nl, err := spice.Netlist(net, weights, inputs, nudge)
	if err != nil {
		t.Fatalf("网表生成失败: %v", err)
	}
	if !strings.Contains(nl, "I_nudge_yp 0 yp") {
		t.Error("缺少YP推动电流源")
	}
	if !strings.Contains(nl, "I_nudge_yn 0 yn") {
		t.Error("缺少YN推动电流源")
	}
}

func TestNetlistRequiresSpiceNames(t *testing.T) {
	net, err := network.New(1, 1, [][2]int{{0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = spice.Netlist(net, []float64{50000.0}, []float64{1.0}, nil)
	if err == nil {
		t.Error("缺少SPICE节点名应该报错")
	}
}

func TestParseRawASCII(t *testing.T) {
	raw := "Title: * Auto-generated EqProp network\n" +
		"Date: Sun Aug 31 12:00:00 2025\n" +
		"Plotname: Operating Point\n" +
		"Flags: real\n" +
		"No. Variables: 2\n" +
		"No. Points: 1\n" +
		"Variables:\n" +
		"\t0\tv(h1)\tvoltage\n" +
		"\t1\tv(h2)\tvoltage\n" +
		"Values:\n" +
		"0\t2.70137e+00\n" +
		"\t2.29863e+00\n"

	vals, err := spice.ParseRaw([]byte(raw))
	if err != nil {
		t.Fatalf("ASCII解析失败: %v", err)
	}
	if math.Abs(vals["v(h1)"]-2.70137) > 1e-9 {
		t.Errorf("v(h1) = %g, 期望 2.70137", vals["v(h1)"])
	}
	if math.Abs(vals["v(h2)"]-2.29863) > 1e-9 {
		t.Errorf("v(h2) = %g, 期望 2.29863", vals["v(h2)"])
	}
}

func TestParseRawBinary(t *testing.T) {
	header := "Title: op\n" +
		"Plotname: Operating Point\n" +
		"Flags: real\n" +
		"No. Variables: 2\n" +
		"No. Points: 1\n" +
		"Variables:\n" +
		"\t0\tv(yp)\tvoltage\n" +
		"\t1\tv(yn)\tvoltage\n" +
		"Binary:\n"
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:8], math.Float64bits(2.8))
	binary.LittleEndian.PutUint64(payload[8:16], math.Float64bits(2.2))

	vals, err := spice.ParseRaw(append([]byte(header), payload...))
	if err != nil {
		t.Fatalf("二进制解析失败: %v", err)
	}
	if vals["v(yp)"] != 2.8 || vals["v(yn)"] != 2.2 {
		t.Errorf("解析值错误: %v", vals)
	}
}

func TestParseRawTruncated(t *testing.T) {
	header := "No. Variables: 2\nVariables:\n\t0\tv(a)\tvoltage\n\t1\tv(b)\tvoltage\nBinary:\n"
	_, err := spice.ParseRaw(append([]byte(header), 1, 2, 3))
	if err == nil {
		t.Error("截断的二进制数据应该报错")
	}
}

func TestCrossValidateXOR(t *testing.T) {
	if testing.Short() {
		t.Skip("短模式跳过ngspice交叉验证")
	}
	if !spice.Available() {
		t.Skip("ngspice不在PATH中")
	}

	net := xor.New()
	weights := network.UniformWeights(net.NumWeights(), 50000.0)
	report, err := spice.CrossValidate(context.Background(), net, weights, xor.Dataset(), 1.0)
	if err != nil {
		t.Fatalf("交叉验证失败: %v", err)
	}
	if !report.Pass {
		for _, pr := range report.Patterns {
			for _, nc := range pr.Nodes {
				if nc.ErrPct > 1.0 {
					t.Errorf("模式 %s 节点 %s: 求解器 %.5fV vs SPICE %.5fV (误差 %.2f%%)",
						pr.Label, nc.Name, nc.Solver, nc.Spice, nc.ErrPct)
				}
			}
		}
	}
}
