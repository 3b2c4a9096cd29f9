package models

// TokenUsage is the token accounting for a single LLM call. Providers
// sometimes return only Total; see §4.5 "Usage reconciliation" for how the
// missing fields get estimated.
type TokenUsage struct {
	Input  uint64 `json:"input"`
	Output uint64 `json:"output"`
	Total  uint64 `json:"total"`
}

// Reconcile fills in zero Input/Output from Total by prorating against an
// independently estimated usage, per §4.5. No-op if Input or Output is
// already non-zero, or if Total is zero.
func (u TokenUsage) Reconcile(estimated TokenUsage) TokenUsage {
	if u.Total == 0 || (u.Input != 0 || u.Output != 0) {
		return u
	}
	estTotal := estimated.Input + estimated.Output
	if estTotal == 0 {
		return u
	}
	input := u.Total * estimated.Input / estTotal
	if input > u.Total {
		input = u.Total
	}
	return TokenUsage{Input: input, Output: u.Total - input, Total: u.Total}
}

// UserQuotaStatus reports a user's daily LLM call allowance after a
// consume_user_quota attempt.
type UserQuotaStatus struct {
	DailyQuota uint64
	Used       uint64
	Remaining  uint64
	Date       string // YYYY-MM-DD
	Allowed    bool
}

// RoundInfo is carried on every emitted event so clients can group by turn.
// ModelRound is nil before the round loop has produced its first assistant
// message for the current user round (§ Supplemented Features, "Round info
// propagation").
type RoundInfo struct {
	UserRound  *int64
	ModelRound *int64
}

// UserOnly builds a RoundInfo for a request that has been accepted but whose
// round loop has not yet started.
func UserOnly(userRound int64) RoundInfo {
	return RoundInfo{UserRound: &userRound}
}

// NewRoundInfo builds a RoundInfo mid-loop, once a model round is underway.
func NewRoundInfo(userRound, modelRound int64) RoundInfo {
	return RoundInfo{UserRound: &userRound, ModelRound: &modelRound}
}

// ModelRoundInt narrows ModelRound to *int for embedding in a
// StreamDeltaSegment, whose round field is informational only.
func (r RoundInfo) ModelRoundInt() *int {
	if r.ModelRound == nil {
		return nil
	}
	v := int(*r.ModelRound)
	return &v
}
