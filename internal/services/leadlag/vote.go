package leadlag

import (
	"fmt"
	"math"

	"LagScope/internal/domain/models"
)

const (
	voteMaxLag = 10
	voteMinN   = 10
	voteMinWin = 20
)

// VoteResult summarises a sliding-window lag vote. Lag is signed (positive:
// a leads b) and never zero; Decided == 0 means no window produced a lag.
type VoteResult struct {
	Lag           int
	Votes         int
	Decided       int
	ConfidencePct float64
	MeanR         float64
}

// VoteLag slides a window over the series, picks the best non-zero lag per
// window and returns the lag that won most often.
func VoteLag(a, b []float64) (VoteResult, error) {
	if len(a) != len(b) {
		return VoteResult{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	T := len(a)
	win := voteWindow(T)
	res := VoteResult{MeanR: math.NaN()}
	if win <= 0 {
		return res, nil
	}

	lags := voteLagOrder()
	votes := make(map[int]int, len(lags))
	sumR := make(map[int]float64, len(lags))
	var xs, ys []float64
	for t := win - 1 + voteMaxLag; t <= T-1-voteMaxLag; t++ {
		found := false
		bestLag, bestR := 0, 0.0
		for _, lag := range lags {
			xs, ys = pairsAt(a, b, t-win+1, t, lag, xs[:0], ys[:0])
			if len(xs) < voteMinN {
				continue
			}
			r := pearson(xs, ys)
			if !models.IsFinite(r) {
				continue
			}
			// lags are visited by increasing |lag|, positive first, so a
			// strict comparison keeps the preferred lag on ties
			if !found || math.Abs(r) > math.Abs(bestR) {
				found, bestLag, bestR = true, lag, r
			}
		}
		if !found {
			continue
		}
		res.Decided++
		votes[bestLag]++
		sumR[bestLag] += bestR
	}
	if res.Decided == 0 {
		return res, nil
	}

	res.Lag, res.Votes = winningLag(votes)
	res.ConfidencePct = round1(float64(res.Votes) / float64(res.Decided) * 100)
	res.MeanR = sumR[res.Lag] / float64(res.Votes)
	return res, nil
}

// winningLag returns the most voted lag. Ties go to the smaller |lag|, then
// to the positive one.
func winningLag(votes map[int]int) (lag, n int) {
	for _, l := range voteLagOrder() {
		if votes[l] > n {
			lag, n = l, votes[l]
		}
	}
	return lag, n
}

// voteWindow is min(max(20, 3*MAX_LAG, 10), T-MAX_LAG).
func voteWindow(T int) int {
	win := voteMinWin
	if 3*voteMaxLag > win {
		win = 3 * voteMaxLag
	}
	if win < voteMinN {
		win = voteMinN
	}
	if T-voteMaxLag < win {
		win = T - voteMaxLag
	}
	return win
}

// voteLagOrder is 1, -1, 2, -2, ... MAX_LAG, -MAX_LAG.
func voteLagOrder() []int {
	out := make([]int, 0, 2*voteMaxLag)
	for l := 1; l <= voteMaxLag; l++ {
		out = append(out, l, -l)
	}
	return out
}
