package debug

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// Charts 曲线绘制
type Charts struct {
	Record
}

// Render 格式化
func (c *Charts) Render(w io.Writer) error {
	// 初始化界面
	graph := charts.NewGraph()
	graph.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "电路节点信息",
			Subtitle: "权重电阻连接网络图",
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
	)
	graph.SetSeriesOptions(
		charts.WithEmphasisOpts(opts.Emphasis{
			Label: &opts.Label{
				Show:     opts.Bool(true),
				Color:    "black",
				Position: "left",
			},
		}),
		charts.WithLineStyleOpts(opts.LineStyle{
			Curveness: 0.3,
		}),
	)
	lineL := charts.NewLine()
	lineL.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "损失曲线",
			Subtitle: "epoch总损失变化曲线",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(true),
	)
	lineP := charts.NewLine()
	lineP.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "预测曲线",
			Subtitle: "各样本差分输出电压变化曲线",
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(true),
	)
	lineW := charts.NewLine()
	lineW.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "权重曲线",
			Subtitle: "各权重电阻变化曲线 (kΩ)",
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(true),
	)
	// 处理数据
	{
		// 初始化电路节点: 固定/自由两类
		net := c.Net
		graphNodes := make([]opts.GraphNode, net.NumNodes())
		for i := range graphNodes {
			name := fmt.Sprintf("Node(%d)", i)
			if len(net.SpiceNames) == net.NumNodes() {
				name = net.SpiceNames[i]
			}
			graphNodes[i] = opts.GraphNode{
				Name:    name,
				Tooltip: &opts.Tooltip{Show: opts.Bool(true)},
			}
			if i >= net.NumFixed {
				graphNodes[i].Category = 1
			}
		}
		graphLink := make([]opts.GraphLink, 0, net.NumWeights())
		for w, conn := range net.Connections {
			graphLink = append(graphLink, opts.GraphLink{
				Source: graphNodes[conn[0]].Name,
				Target: graphNodes[conn[1]].Name,
				Value:  float32(w + 1),
			})
		}
		graph.AddSeries("电路列表", graphNodes, graphLink,
			charts.WithGraphChartOpts(opts.GraphChart{
				Categories: []*opts.GraphCategory{
					{Name: "固定节点", ItemStyle: &opts.ItemStyle{Color: "#c71979b7"}},
					{Name: "自由节点", ItemStyle: &opts.ItemStyle{Color: "#1987c7b7"}},
				},
				Roam:               opts.Bool(true),
				Force:              &opts.GraphForce{Repulsion: 80},
				EdgeLabel:          &opts.EdgeLabel{Show: opts.Bool(true)},
				FocusNodeAdjacency: opts.Bool(true),
			}))
		// 损失信息
		{
			lineL.SetXAxis(c.Epoch)
			items := make([]opts.LineData, len(c.Loss))
			for i, v := range c.Loss {
				items[i].Value = v
			}
			lineL.AddSeries("损失", items)
		}
		// 预测信息
		if len(c.Preds) > 0 {
			lineP.SetXAxis(c.Epoch)
			itemsP := make([][]opts.LineData, len(c.Preds[0]))
			seriesP := make([]charts.SingleSeries, len(c.Preds[0]))
			for i := range itemsP {
				itemsP[i] = make([]opts.LineData, len(c.Epoch))
				name := fmt.Sprintf("样本(%d)", i)
				if i < len(c.Labels) {
					name = c.Labels[i]
				}
				seriesP[i] = charts.SingleSeries{
					Name: name,
					Data: itemsP[i],
					Type: types.ChartLine,
				}
				seriesP[i].InitSeriesDefaultOpts(lineP.BaseConfiguration)
			}
			for i, v := range c.Preds {
				for x, t := range v {
					itemsP[x][i].Value = t
				}
			}
			lineP.MultiSeries = seriesP
		}
		// 权重信息
		if len(c.Weights) > 0 {
			xs := make([]int, len(c.Weights))
			for i := range xs {
				xs[i] = i
			}
			lineW.SetXAxis(xs)
			itemsW := make([][]opts.LineData, len(c.Weights[0]))
			seriesW := make([]charts.SingleSeries, len(c.Weights[0]))
			for i := range itemsW {
				itemsW[i] = make([]opts.LineData, len(c.Weights))
				seriesW[i] = charts.SingleSeries{
					Name: fmt.Sprintf("W%d", i+1),
					Data: itemsW[i],
					Type: types.ChartLine,
				}
				seriesW[i].InitSeriesDefaultOpts(lineW.BaseConfiguration)
			}
			for i, v := range c.Weights {
				for x, t := range v {
					itemsW[x][i].Value = t
				}
			}
			lineW.MultiSeries = seriesW
		}
	}
	// 构建界面
	page := components.NewPage()
	page.AddCharts(
		graph,
		lineL,
		lineP,
		lineW,
	)
	return page.Render(w)
}

// Handler 发布到网页面
func (c *Charts) Handler(w http.ResponseWriter, _ *http.Request) {
	c.Render(w)
}
