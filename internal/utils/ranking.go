package utils

import (
	"math"
	"time"
)

type RankConfig struct {
	Gravity       float64 // 时间重力 (1.5)
	WeightScore   float64 // 1.0
	WeightComment float64 // 2.0
	WeightView    float64 // 0.01，浏览量数量级太大
	ScaleFactor   float64 // 放大系数 (100)
}

var DefaultRankConfig = RankConfig{
	Gravity:       1.5,
	WeightScore:   1.0,
	WeightComment: 2.0,
	WeightView:    0.01,
	ScaleFactor:   100.0,
}

// HotRank is a gravity-decayed popularity value. Negative engagement is
// clamped to zero so it never outranks an untouched post.
func (cfg RankConfig) HotRank(createdAt, now time.Time, score, comments, views int) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}

	weighted := float64(score)*cfg.WeightScore +
		float64(comments)*cfg.WeightComment +
		float64(views)*cfg.WeightView
	if weighted < 0 {
		weighted = 0
	}

	// log10(sum + 1) -> sum=0 时结果为 0
	numerator := math.Log10(weighted+1) * cfg.ScaleFactor
	decay := math.Pow(hours+2, cfg.Gravity)
	return numerator / decay
}
