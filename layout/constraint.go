package layout

import "strconv"

// 未提供任何尺寸时使用的画布大小。
const (
	DefaultWidth  = 1200.0
	DefaultHeight = 630.0
)

// Constraint 是画布尺寸约束，只有三种形态：宽高、仅宽、仅高。
// 零值等价于默认的 1200x630。
type Constraint struct {
	width, height       float64
	hasWidth, hasHeight bool
}

// ResolveDimensions 根据可选的宽高生成约束：
// 两者都有取两者；只有一个取那一个；都没有取 1200x630。
// 不做截断，也不校验正负，非法值交给布局引擎报错。
func ResolveDimensions(width, height *float64) Constraint {
	switch {
	case width != nil && height != nil:
		return Fixed(*width, *height)
	case width != nil:
		return WidthOnly(*width)
	case height != nil:
		return HeightOnly(*height)
	default:
		return Fixed(DefaultWidth, DefaultHeight)
	}
}

// Fixed 返回同时约束宽高的约束。
func Fixed(width, height float64) Constraint {
	return Constraint{width: width, height: height, hasWidth: true, hasHeight: true}
}

// WidthOnly 返回只约束宽度的约束，高度由内容决定。
func WidthOnly(width float64) Constraint {
	return Constraint{width: width, hasWidth: true}
}

// HeightOnly 返回只约束高度的约束，宽度由内容决定。
func HeightOnly(height float64) Constraint {
	return Constraint{height: height, hasHeight: true}
}

// Width 返回宽度以及约束是否包含宽度。
func (c Constraint) Width() (float64, bool) {
	if c.IsZero() {
		return DefaultWidth, true
	}
	return c.width, c.hasWidth
}

// Height 返回高度以及约束是否包含高度。
func (c Constraint) Height() (float64, bool) {
	if c.IsZero() {
		return DefaultHeight, true
	}
	return c.height, c.hasHeight
}

// IsZero 判断是否为未设置的零值约束。
func (c Constraint) IsZero() bool { return !c.hasWidth && !c.hasHeight }

// String 以 {width:400} 的形式输出约束，便于日志与测试。
func (c Constraint) String() string {
	w, hasW := c.Width()
	h, hasH := c.Height()
	out := "{"
	if hasW {
		out += "width:" + strconv.FormatFloat(w, 'f', -1, 64)
	}
	if hasH {
		if hasW {
			out += ", "
		}
		out += "height:" + strconv.FormatFloat(h, 'f', -1, 64)
	}
	return out + "}"
}
