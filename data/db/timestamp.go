package db

import "time"

// UnixNano 将时间编码为整数列值（UTC 纳秒）
func UnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// FromUnixNano 解码整数列值为 UTC 时间
func FromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
