package cache

import (
	"fmt"
	"strings"
	"time"
)

// Key builders. Every cache entry touched by the reservation core goes
// through these so that write paths and invalidation paths cannot drift.

// WindowKey is the cache key for a single pickup window.
func WindowKey(windowID string) string {
	return "window:" + windowID
}

// PointWindowsPattern matches every cached window list for a pickup point.
func PointWindowsPattern(pointID string) string {
	return "windows:point:" + pointID + ":*"
}

// WindowListKey is the cache key for an availability listing of one point
// over a date range.
func WindowListKey(pointID string, from, to time.Time) string {
	return fmt.Sprintf("windows:point:%s:%d:%d", pointID, from.Unix(), to.Unix())
}

// CouponKey is the cache key for a coupon rule. Codes are case-insensitive.
// Entries under this key are written by the storefront's coupon read path;
// this service only invalidates them when it mutates a rule's usage counter.
func CouponKey(code string) string {
	return "coupon:" + strings.ToUpper(code)
}
