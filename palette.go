package floodtiles

// 分类代码对应的颜色，未列出的代码为黑色
var ClassPalette = [256][3]uint8{
	0: {0, 0, 0},       // 无数据/背景
	1: {200, 200, 200}, // 陆地
	2: {100, 149, 237}, // 水体
	3: {255, 255, 255}, // 云
	4: {255, 99, 71},   // 洪水
}

// 分类代码数组映射为RGB三个波段
func ClassToRGB(codes []uint8) (r, g, b []uint8) {
	r = make([]uint8, len(codes))
	g = make([]uint8, len(codes))
	b = make([]uint8, len(codes))
	for i, c := range codes {
		rgb := ClassPalette[c]
		r[i], g[i], b[i] = rgb[0], rgb[1], rgb[2]
	}
	return
}

// 不确定度到透明度的阶梯映射：低于low为0，[low,high)为mid，不低于high为hi。NaN为0。
func AlphaStep(u, low, high float64, mid, hi uint8) uint8 {
	switch {
	case u >= high:
		return hi
	case u >= low:
		return mid
	}
	return 0
}

func (g *Toolbox) alphaMask(unc []float64) (alpha []uint8) {
	th, al := g.opts.Thresholds, g.opts.Alphas
	alpha = make([]uint8, len(unc))
	for i, u := range unc {
		alpha[i] = AlphaStep(u, th[0], th[1], al[0], al[1])
	}
	return
}
