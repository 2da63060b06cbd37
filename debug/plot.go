package debug

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/emersonmde/eqprop/diode"
)

// SaveLossPNG 把损失曲线保存成PNG静态图。
func (list *Record) SaveLossPNG(path string) error {
	if len(list.Loss) == 0 {
		return fmt.Errorf("没有可绘制的损失记录")
	}
	p := plot.New()
	p.Title.Text = "训练损失"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(list.Loss))
	for i := range xys {
		xys[i].X = float64(list.Epoch[i])
		xys[i].Y = list.Loss[i]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("损失曲线构建失败: %w", err)
	}
	p.Add(line)
	p.Legend.Add("loss", line)
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// SaveDiodeIV 把反并联二极管对的I-V特性保存成PNG静态图
// 参数:
//
//	d - 二极管模型参数
//	vref - 参考轨电压
//	span - 扫描半径 (V)，围绕vref对称扫描
func SaveDiodeIV(d diode.Params, vref, span float64, path string) error {
	const steps = 400
	p := plot.New()
	p.Title.Text = "反并联二极管对 I-V"
	p.X.Label.Text = "v (V)"
	p.Y.Label.Text = "i (mA)"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, steps+1)
	for i := 0; i <= steps; i++ {
		v := vref - span + 2*span*float64(i)/steps
		cur, _ := d.PairCurrent(v - vref)
		xys[i].X = v
		xys[i].Y = cur * 1000.0
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("I-V曲线构建失败: %w", err)
	}
	p.Add(line)
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
