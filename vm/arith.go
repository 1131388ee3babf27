package vm

import "math"

// ---------------------------------------------------------------------------
// Arithmetic with JVM semantics
// ---------------------------------------------------------------------------

// Integer arithmetic wraps in two's complement. Float results are rounded
// to their own precision after every operation; explicit conversions keep
// the compiler from fusing multiply-add pairs.

func idiv(a, b int32) int32 {
	if b == -1 {
		return -a // MinInt32 / -1 wraps to MinInt32
	}
	return a / b
}

func irem(a, b int32) int32 {
	if b == -1 {
		return 0
	}
	return a % b
}

func ldiv(a, b int64) int64 {
	if b == -1 {
		return -a
	}
	return a / b
}

func lrem(a, b int64) int64 {
	if b == -1 {
		return 0
	}
	return a % b
}

func ishl(a, n int32) int32  { return a << (uint32(n) & 0x1f) }
func ishr(a, n int32) int32  { return a >> (uint32(n) & 0x1f) }
func iushr(a, n int32) int32 { return int32(uint32(a) >> (uint32(n) & 0x1f)) }

func lshl(a int64, n int32) int64  { return a << (uint32(n) & 0x3f) }
func lshr(a int64, n int32) int64  { return a >> (uint32(n) & 0x3f) }
func lushr(a int64, n int32) int64 { return int64(uint64(a) >> (uint32(n) & 0x3f)) }

func fadd(a, b float32) float32 { return float32(a + b) }
func fsub(a, b float32) float32 { return float32(a - b) }
func fmul(a, b float32) float32 { return float32(a * b) }
func fdiv(a, b float32) float32 { return float32(a / b) }

// frem is the truncating remainder (C fmod), not IEEE remainder. The
// result of fmod on widened operands is exact, so narrowing is lossless.
func frem(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) }

func dadd(a, b float64) float64 { return float64(a + b) }
func dsub(a, b float64) float64 { return float64(a - b) }
func dmul(a, b float64) float64 { return float64(a * b) }
func ddiv(a, b float64) float64 { return float64(a / b) }
func drem(a, b float64) float64 { return math.Mod(a, b) }

// fneg flips the sign bit, so -0.0 and NaN payloads behave.
func fneg(a float32) float32 { return math.Float32frombits(math.Float32bits(a) ^ 0x80000000) }
func dneg(a float64) float64 { return math.Float64frombits(math.Float64bits(a) ^ (1 << 63)) }

// d2i rounds to the nearest integer, half away from zero, then
// saturates: NaN becomes 0, out-of-range values clamp.
func d2i(d float64) int32 {
	d = math.Round(d)
	switch {
	case d != d:
		return 0
	case d >= math.MaxInt32:
		return math.MaxInt32
	case d <= math.MinInt32:
		return math.MinInt32
	}
	return int32(d)
}

func d2l(d float64) int64 {
	d = math.Round(d)
	switch {
	case d != d:
		return 0
	case d >= 0x1p63:
		return math.MaxInt64
	case d <= -0x1p63:
		return math.MinInt64
	}
	return int64(d)
}

func f2i(f float32) int32 { return d2i(float64(f)) }
func f2l(f float32) int64 { return d2l(float64(f)) }

func i2b(v int32) int32 { return int32(int8(v)) }
func i2c(v int32) int32 { return int32(uint16(v)) }
func i2s(v int32) int32 { return int32(int16(v)) }

func lcmp(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// fcmp compares with nan as the result when either operand is NaN:
// -1 for fcmpl/dcmpl, 1 for fcmpg/dcmpg.
func fcmp(a, b float64, nan int32) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	case a == b:
		return 0
	}
	return nan
}
