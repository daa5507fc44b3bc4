package utils

import (
	"fmt"
	"strconv"
	"strings"
)

func Min(x, y int) int {
	if x > y {
		return y
	}
	return x
}

// CeilDiv returns x/y rounded up. Exact multiples are not rounded.
// y must be greater than zero.
func CeilDiv(x, y uint64) uint64 {
	res := x / y
	if x%y != 0 {
		return res + 1
	}
	return res
}

func ByteCountSI(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(b)/float64(div), "kMGTPE"[exp])
}

// IncreasePortInAddress returns addr with its port moved by inc.
// Works for "host:port" as well as SCION "ia,[host]:port" addresses.
func IncreasePortInAddress(addr string, inc int) (string, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", fmt.Errorf("missing port in address %s", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return "", err
	}
	return addr[:i+1] + strconv.Itoa(port+inc), nil
}
