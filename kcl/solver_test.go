package kcl_test

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/emersonmde/eqprop/kcl"
	"github.com/emersonmde/eqprop/network"
	"github.com/emersonmde/eqprop/xor"
)

// legacyNet 早期3输入拓扑（sim2_full_network.cir）。
// 节点: 0=X1, 1=X2, 2=XBIAS, 3=H1, 4=H2, 5=YP, 6=YN
func legacyNet(t *testing.T) *network.Network {
	t.Helper()
	connections := [][2]int{
		{0, 3}, {0, 4}, // X1 -> H1, H2
		{1, 3}, {1, 4}, // X2 -> H1, H2
		{2, 3}, {2, 4}, // XBIAS -> H1, H2
		{3, 5}, {3, 6}, // H1 -> YP, YN
		{4, 5}, {4, 6}, // H2 -> YP, YN
	}
	net, err := network.New(3, 4, connections)
	if err != nil {
		t.Fatalf("构造3输入拓扑失败: %v", err)
	}
	net.DiodeNodes = map[int]float64{0: xor.VMid, 1: xor.VMid} // H1, H2
	net.OutputPos, net.OutputNeg = 2, 3
	net.NudgeSigns = map[int]float64{2: +1.0, 3: -1.0}
	return net
}

func solve(t *testing.T, net *network.Network, inputs, weights []float64, opt *kcl.Options) *kcl.Result {
	t.Helper()
	res, err := kcl.Solve(net, inputs, weights, opt)
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	return res
}

// ─── 分压器解析解 ───

func TestDividerEqualResistors(t *testing.T) {
	// 等阻值时自由节点电压为两源平均
	net, err := network.New(2, 1, [][2]int{{0, 2}, {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	res := solve(t, net, []float64{1.0, 3.0}, []float64{10000.0, 10000.0}, nil)
	if math.Abs(res.Voltages[0]-2.0) > 1e-6 {
		t.Errorf("期望 2.0V, 实际 %v", res.Voltages[0])
	}
}

func TestDividerUnequalResistors(t *testing.T) {
	// 加权平均: V = (V1/R1 + V2/R2) / (1/R1 + 1/R2)
	net, err := network.New(2, 1, [][2]int{{0, 2}, {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	res := solve(t, net, []float64{0.0, 5.0}, []float64{10000.0, 40000.0}, nil)
	expected := (0.0/10000 + 5.0/40000) / (1.0/10000 + 1.0/40000)
	if math.Abs(res.Voltages[0]-expected) > 1e-6 {
		t.Errorf("期望 %v, 实际 %v", expected, res.Voltages[0])
	}
}

func TestDividerThreeSources(t *testing.T) {
	net, err := network.New(3, 1, [][2]int{{0, 3}, {1, 3}, {2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	R := []float64{5000.0, 10000.0, 20000.0}
	V := []float64{1.0, 3.0, 5.0}
	res := solve(t, net, V, R, nil)
	var num, den float64
	for i := range R {
		num += V[i] / R[i]
		den += 1.0 / R[i]
	}
	if math.Abs(res.Voltages[0]-num/den) > 1e-6 {
		t.Errorf("期望 %v, 实际 %v", num/den, res.Voltages[0])
	}
}

// ─── 纯电阻一致性 ───

func TestResistiveMatchesDirectLinearSolve(t *testing.T) {
	// 无二极管时，解必须与同一KCL系统的精确线性代数解一致（1e-9相对误差）
	net, err := network.New(3, 3, [][2]int{
		{0, 3}, {1, 3}, {2, 4}, {3, 4}, {4, 5}, {0, 5}, {1, 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	inputs := []float64{1.0, 4.0, 2.5}
	weights := []float64{5000, 21200, 33000, 12000, 47000, 8200, 15000}

	res := solve(t, net, inputs, weights, nil)

	// 直接装配并求解 G*v = b
	nf := net.NumFree
	G := mat.NewDense(nf, nf, nil)
	b := mat.NewVecDense(nf, nil)
	for w, c := range net.Connections {
		g := 1.0 / weights[w]
		iF, jF := c[0]-net.NumFixed, c[1]-net.NumFixed
		switch {
		case iF >= 0 && jF >= 0:
			G.Set(iF, iF, G.At(iF, iF)+g)
			G.Set(jF, jF, G.At(jF, jF)+g)
			G.Set(iF, jF, G.At(iF, jF)-g)
			G.Set(jF, iF, G.At(jF, iF)-g)
		case iF >= 0:
			G.Set(iF, iF, G.At(iF, iF)+g)
			b.SetVec(iF, b.AtVec(iF)+g*inputs[c[1]])
		case jF >= 0:
			G.Set(jF, jF, G.At(jF, jF)+g)
			b.SetVec(jF, b.AtVec(jF)+g*inputs[c[0]])
		}
	}
	exact := mat.NewVecDense(nf, nil)
	if err := exact.SolveVec(G, b); err != nil {
		t.Fatalf("参考线性求解失败: %v", err)
	}
	for i := 0; i < nf; i++ {
		rel := math.Abs(res.Voltages[i]-exact.AtVec(i)) / math.Abs(exact.AtVec(i))
		if rel > 1e-9 {
			t.Errorf("自由节点 %d: 解 %v 与精确解 %v 相对误差 %.2e", i, res.Voltages[i], exact.AtVec(i), rel)
		}
	}
}

// ─── XOR网络对称性 ───

func TestUniformWeightsSymmetry(t *testing.T) {
	// 均匀权重下，任何输入样本 H1==H2 且 YP==YN（零预测）
	net := xor.New()
	weights := network.UniformWeights(16, 21200.0)
	for _, p := range [][2]float64{{1, 1}, {1, 4}, {4, 1}, {4, 4}} {
		res := solve(t, net, xor.Inputs(p[0], p[1]), weights, nil)
		v := res.Voltages
		if math.Abs(v[0]-v[1]) > 1e-6 {
			t.Errorf("样本 (%v,%v): H1=%v != H2=%v", p[0], p[1], v[0], v[1])
		}
		if math.Abs(v[2]-v[3]) > 1e-6 {
			t.Errorf("样本 (%v,%v): YP=%v != YN=%v", p[0], p[1], v[2], v[3])
		}
	}
}

func TestDiodeClampsHiddenNodes(t *testing.T) {
	// 低阻值（强权重）下隐藏节点被二极管钳在1.8-3.2V
	net := xor.New()
	weights := network.UniformWeights(16, 5000.0)
	for _, p := range [][2]float64{{1, 1}, {4, 4}, {1, 4}} {
		res := solve(t, net, xor.Inputs(p[0], p[1]), weights, nil)
		for h := 0; h < 2; h++ {
			if res.Voltages[h] <= 1.8 || res.Voltages[h] >= 3.2 {
				t.Errorf("样本 (%v,%v): H%d=%.3fV 超出钳位范围", p[0], p[1], h+1, res.Voltages[h])
			}
		}
	}
}

// ─── LTspice参考电压 ───

func TestLTspiceReference(t *testing.T) {
	// 3输入拓扑、均匀21.2k权重的已知LTspice结果，
	// 通用求解器喂入同一拓扑必须吻合——不允许复制求解器代码
	net := legacyNet(t)
	weights := network.UniformWeights(10, 21200.0)
	cases := []struct {
		name   string
		inputs []float64
		wantH1 float64
	}{
		{"(1,1)", []float64{4.0, 4.0, 2.5}, 2.70137},
		{"(0,0)", []float64{1.0, 1.0, 2.5}, 2.29863},
		{"(1,0)", []float64{4.0, 1.0, 2.5}, 2.50000},
	}
	for _, c := range cases {
		res := solve(t, net, c.inputs, weights, nil)
		errPct := math.Abs(res.Voltages[0]-c.wantH1) / c.wantH1 * 100
		if errPct >= 1.0 {
			t.Errorf("样本 %s: V(h1)=%.5f vs LTspice %.5f (%.3f%%)", c.name, res.Voltages[0], c.wantH1, errPct)
		}
	}
}

// ─── 推动电流传播 ───

func TestNudgeSlopeRatio(t *testing.T) {
	// 输出推动向隐藏节点传播的比值约4倍
	net := legacyNet(t)
	weights := network.UniformWeights(10, 21200.0)
	inputs := []float64{1.0, 4.0, 2.5}

	v0 := solve(t, net, inputs, weights, nil)
	nudge := make([]float64, 4)
	nudge[2] = 10e-6 // 10uA注入YP
	vn := solve(t, net, inputs, weights, &kcl.Options{Nudge: nudge})

	ratio := (vn.Voltages[2] - v0.Voltages[2]) / (vn.Voltages[0] - v0.Voltages[0])
	if math.Abs(ratio-4.0) > 0.5 {
		t.Errorf("推动比值 %.2f, 期望约4.0", ratio)
	}
}

// ─── 热启动 ───

func TestWarmStartFewerIterations(t *testing.T) {
	// 从自由相解热启动的推动相求解，迭代次数应明显少于从参考轨冷启动
	net := xor.New()
	weights := net.Weights.RandomWeights(16, 42)
	inputs := xor.Inputs(1.0, 4.0)

	free := solve(t, net, inputs, weights, nil)
	nudge := net.NudgeCurrents(1e-5, 0.3-net.Prediction(free.Voltages))

	warm := solve(t, net, inputs, weights, &kcl.Options{Nudge: nudge, InitialGuess: free.Voltages})
	cold := solve(t, net, inputs, weights, &kcl.Options{
		Nudge:        nudge,
		InitialGuess: []float64{xor.VMid, xor.VMid, xor.VMid, xor.VMid},
	})

	if warm.Iterations > cold.Iterations {
		t.Errorf("热启动 %d 次迭代多于冷启动 %d 次", warm.Iterations, cold.Iterations)
	}
	if warm.Iterations > 4 {
		t.Errorf("热启动迭代次数 %d 过多", warm.Iterations)
	}
}

// ─── 失败路径 ───

func TestConvergenceError(t *testing.T) {
	net := xor.New()
	weights := network.UniformWeights(16, 21200.0)
	// 1次迭代预算加远端初值必然不收敛
	_, err := kcl.Solve(net, xor.Inputs(1, 4), weights, &kcl.Options{
		MaxIterations: 1,
		InitialGuess:  []float64{50, -50, 50, -50},
	})
	var convErr *kcl.ConvergenceError
	if !errors.As(err, &convErr) {
		t.Fatalf("应返回ConvergenceError, 实际 %v", err)
	}
	if convErr.Iterations != 1 {
		t.Errorf("错误应记录迭代次数: %d", convErr.Iterations)
	}
}

func TestSolverInputValidation(t *testing.T) {
	net := xor.New()
	if _, err := kcl.Solve(net, []float64{1, 2}, network.UniformWeights(16, 21200.0), nil); err == nil {
		t.Error("固定电压数量不符应报错")
	}
	if _, err := kcl.Solve(net, xor.Inputs(1, 1), []float64{1000}, nil); err == nil {
		t.Error("权重数量不符应报错")
	}
}
