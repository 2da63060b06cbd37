package network

import (
	"errors"
	"math"
	"testing"
)

func TestNewValidTopology(t *testing.T) {
	// 两个固定节点经电阻汇入一个自由节点
	net, err := New(2, 1, [][2]int{{0, 2}, {1, 2}})
	if err != nil {
		t.Fatalf("合法拓扑构造失败: %v", err)
	}
	if net.NumNodes() != 3 || net.NumWeights() != 2 {
		t.Errorf("节点/权重计数错误: %d, %d", net.NumNodes(), net.NumWeights())
	}
}

func TestNewRejectsOutOfRangeIndex(t *testing.T) {
	_, err := New(2, 1, [][2]int{{0, 5}})
	var topoErr *InvalidTopologyError
	if !errors.As(err, &topoErr) {
		t.Fatalf("越界索引应返回InvalidTopologyError, 实际 %v", err)
	}
}

func TestNewRejectsIsolatedFreeNode(t *testing.T) {
	// 自由节点1（全局3）没有任何连接, KCL矩阵奇异
	_, err := New(2, 2, [][2]int{{0, 2}, {1, 2}})
	var topoErr *InvalidTopologyError
	if !errors.As(err, &topoErr) {
		t.Fatalf("孤立自由节点应返回InvalidTopologyError, 实际 %v", err)
	}
}

func TestDiodeAnchorsFreeNode(t *testing.T) {
	// 孤立自由节点若带二极管对（到固定参考轨的并联支路）则合法
	net := &Network{
		NumFixed:    2,
		NumFree:     2,
		Connections: [][2]int{{0, 2}, {1, 2}},
		DiodeNodes:  map[int]float64{1: 2.5},
		NudgeSigns:  map[int]float64{},
		OutputPos:   0,
		OutputNeg:   1,
	}
	if err := net.Validate(); err != nil {
		t.Fatalf("二极管锚定的自由节点应合法: %v", err)
	}
}

func TestValidateRejectsNudgeSignOutOfRange(t *testing.T) {
	// 越界的推动符号索引必须在构造期报错，
	// 而不是在第一个推动相让NudgeCurrents越界崩溃
	net, err := New(2, 1, [][2]int{{0, 2}, {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	net.NudgeSigns = map[int]float64{5: +1.0}
	var topoErr *InvalidTopologyError
	if err := net.Validate(); !errors.As(err, &topoErr) {
		t.Fatalf("越界推动符号应返回InvalidTopologyError, 实际 %v", err)
	}
}

func TestNewRejectsSelfLoop(t *testing.T) {
	_, err := New(2, 1, [][2]int{{2, 2}, {0, 2}, {1, 2}})
	var topoErr *InvalidTopologyError
	if !errors.As(err, &topoErr) {
		t.Fatalf("自环连接应返回InvalidTopologyError, 实际 %v", err)
	}
}

func TestPredictionAndNudge(t *testing.T) {
	net, err := New(1, 2, [][2]int{{0, 1}, {0, 2}})
	if err != nil {
		t.Fatal(err)
	}
	net.OutputPos, net.OutputNeg = 0, 1
	net.NudgeSigns = map[int]float64{0: +1, 1: -1}

	if got := net.Prediction([]float64{2.8, 2.5}); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("预测值错误: %v", got)
	}
	nudge := net.NudgeCurrents(1e-5, 0.2)
	if math.Abs(nudge[0]-2e-6) > 1e-18 || math.Abs(nudge[1]+2e-6) > 1e-18 {
		t.Errorf("推动电流错误: %v", nudge)
	}
}

func TestClampConductance(t *testing.T) {
	wp := MCP4251
	cases := []struct{ g, want float64 }{
		{wp.GMax() * 10, wp.GMax()}, // 越上界截到上界
		{-1.0, wp.GMin()},           // 负电导截到下界
		{0.0, wp.GMin()},
		{wp.GMin() / 2, wp.GMin()},
		{(wp.GMin() + wp.GMax()) / 2, (wp.GMin() + wp.GMax()) / 2}, // 界内不变
	}
	for _, c := range cases {
		if got := wp.ClampConductance(c.g); got != c.want {
			t.Errorf("ClampConductance(%v) = %v, 期望 %v", c.g, got, c.want)
		}
	}
}

func TestTapRoundTrip(t *testing.T) {
	wp := MCP4251
	// 抽头 -> 电阻 -> 抽头 往返一致
	for _, tap := range []int{1, 2, 64, 128, 200, 255, 256} {
		r := wp.TapToResistance(tap)
		if got := wp.ResistanceToTap(r); got != tap {
			t.Errorf("抽头往返不一致: %d -> %.1fΩ -> %d", tap, r, got)
		}
	}
	// 边界电阻映射进合法抽头范围
	if tap := wp.ResistanceToTap(wp.RMax); tap != 1 {
		t.Errorf("RMax应映射到抽头1, 实际 %d", tap)
	}
	if tap := wp.ResistanceToTap(wp.RMin); tap < 1 || tap > wp.NTaps {
		t.Errorf("RMin映射越界: %d", tap)
	}
}

func TestCheckBounds(t *testing.T) {
	wp := MCP4251
	if err := wp.Check(0, 50000.0); err != nil {
		t.Errorf("界内电阻不应报错: %v", err)
	}
	var boundsErr *WeightBoundsError
	if err := wp.Check(3, 1e6); !errors.As(err, &boundsErr) {
		t.Errorf("越界电阻应返回WeightBoundsError, 实际 %v", err)
	} else if boundsErr.Index != 3 {
		t.Errorf("错误应携带权重索引: %d", boundsErr.Index)
	}
}

func TestRandomWeightsWithinBounds(t *testing.T) {
	wp := MCP4251
	weights := wp.RandomWeights(64, 42)
	for i, r := range weights {
		if r < wp.RMin-1e-9 || r > wp.RMax+1e-9 {
			t.Errorf("W%d=%.1fΩ 超出 [%.1f, %.1f]", i+1, r, wp.RMin, wp.RMax)
		}
	}
	// 同种子可复现
	again := wp.RandomWeights(64, 42)
	for i := range weights {
		if weights[i] != again[i] {
			t.Fatal("同种子初始化不可复现")
		}
	}
}
