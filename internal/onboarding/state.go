// Package onboarding はログイン前に鑑定を見せてから認証へ進む
// オンボーディングの状態遷移を提供する。
//
// 遷移は純粋関数Transitionで表し、Flowがサーバー呼び出しを伴う操作を順に実行する。
package onboarding

import (
	"slices"

	"github.com/hitoshi/horo/internal/model"
)

// Step はオンボーディングの段階。
type Step string

const (
	StepWelcome   Step = "welcome"
	StepName      Step = "name"
	StepBirthDate Step = "birthDate"
	StepGender    Step = "gender"
	StepBirthTime Step = "birthTime"
	StepTeaser    Step = "teaser"
	StepAuth      Step = "auth"
	StepDone      Step = "done"
)

// Steps は前進する順序。
var Steps = []Step{
	StepWelcome, StepName, StepBirthDate, StepGender, StepBirthTime, StepTeaser, StepAuth, StepDone,
}

// State はオンボーディングの状態。値として扱い、Transitionは新しい値を返す。
type State struct {
	Step        Step
	Draft       model.BirthProfile
	Teaser      *model.Teaser
	InviteToken string

	// 以下はStepDoneで確定する
	UserID        string
	Guest         bool
	InviterID     string
	InviteFailure error

	history []Step
}

// NewState は初期状態を返す。
func NewState() State {
	return State{Step: StepWelcome}
}

// NewInviteState は招待トークンを持った初期状態を返す。
func NewInviteState(token string) State {
	s := NewState()
	s.InviteToken = token
	return s
}

// History は戻る操作で辿る段階の履歴を返す。
func (s State) History() []Step {
	return slices.Clone(s.history)
}

// CanGoBack はBackが受け付けられるかを返す。
func (s State) CanGoBack() bool {
	switch s.Step {
	case StepWelcome, StepAuth, StepDone:
		return false
	default:
		return len(s.history) > 0
	}
}

// HasInvite は招待経由のフローかを返す。
func (s State) HasInvite() bool {
	return s.InviteToken != ""
}

// advance は履歴に現在の段階を積んで次の段階へ進めた状態を返す。
func (s State) advance(to Step) State {
	next := s
	next.history = append(slices.Clone(s.history), s.Step)
	next.Step = to
	return next
}
