package onboarding

import (
	"fmt"
	"strings"

	"github.com/hitoshi/horo/internal/model"
)

// 遷移エラー。いずれもmodel.ErrInvalidRequestをラップする。
var (
	// ErrTeaserRequired は簡易鑑定の結果がないまま認証へ進もうとした。
	ErrTeaserRequired = model.NewKindError(model.ErrInvalidRequest, "teaser result is required before authentication")
	// ErrInvalidTransition は現在の段階で受け付けないイベント。
	ErrInvalidTransition = model.NewKindError(model.ErrInvalidRequest, "invalid onboarding transition")
	// ErrBackNotAllowed は戻れない段階でBackを受けた。
	ErrBackNotAllowed = model.NewKindError(model.ErrInvalidRequest, "back is not allowed at this step")
	// ErrInvalidAnswer は回答の値が不正。
	ErrInvalidAnswer = model.NewKindError(model.ErrInvalidRequest, "invalid onboarding answer")
)

// Event は状態遷移を起こすイベント。
type Event interface {
	eventName() string
}

type (
	// Start はwelcomeから入力を始める。
	Start struct{}
	// SubmitName は名前を回答する。
	SubmitName struct{ Name string }
	// SubmitBirthDate は生年月日（YYYY-MM-DD）を回答する。
	SubmitBirthDate struct{ BirthDate string }
	// SubmitGender は性別を回答する。
	SubmitGender struct{ Gender model.Gender }
	// SubmitBirthTime は出生時刻を回答する。
	SubmitBirthTime struct {
		Period      string
		ChineseHour int
		Unknown     bool
	}
	// TeaserReady は簡易鑑定の結果が得られた。
	TeaserReady struct{ Teaser model.Teaser }
	// Continue は簡易鑑定から認証へ進む。
	Continue struct{}
	// AuthCompleted は認証が完了した。
	AuthCompleted struct{ UserID string }
	// SkipAsGuest はゲストのまま終了する。
	SkipAsGuest struct{}
	// Back は直前の段階に戻る。
	Back struct{}
	// Reset は最初からやり直す。
	Reset struct{}
)

func (Start) eventName() string           { return "start" }
func (SubmitName) eventName() string      { return "submitName" }
func (SubmitBirthDate) eventName() string { return "submitBirthDate" }
func (SubmitGender) eventName() string    { return "submitGender" }
func (SubmitBirthTime) eventName() string { return "submitBirthTime" }
func (TeaserReady) eventName() string     { return "teaserReady" }
func (Continue) eventName() string        { return "continue" }
func (AuthCompleted) eventName() string   { return "authCompleted" }
func (SkipAsGuest) eventName() string     { return "skipAsGuest" }
func (Back) eventName() string            { return "back" }
func (Reset) eventName() string           { return "reset" }

// Transition はイベントを適用した新しい状態を返す。
// エラーの場合は元の状態をそのまま返す。
func Transition(s State, e Event) (State, error) {
	if _, ok := e.(Reset); ok {
		return NewState(), nil
	}
	if _, ok := e.(Back); ok {
		return back(s)
	}

	switch s.Step {
	case StepWelcome:
		if _, ok := e.(Start); ok {
			return s.advance(StepName), nil
		}

	case StepName:
		if ev, ok := e.(SubmitName); ok {
			name := strings.TrimSpace(ev.Name)
			if name == "" {
				return s, fmt.Errorf("%w: name is empty", ErrInvalidAnswer)
			}
			next := s.advance(StepBirthDate)
			next.Draft = s.Draft.Merge(model.BirthProfile{Name: name})
			return next, nil
		}

	case StepBirthDate:
		if ev, ok := e.(SubmitBirthDate); ok {
			p := model.BirthProfile{BirthDate: strings.TrimSpace(ev.BirthDate)}
			if _, err := p.ParsedBirthDate(); err != nil {
				return s, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
			}
			next := s.advance(StepGender)
			next.Draft = s.Draft.Merge(p)
			return next, nil
		}

	case StepGender:
		if ev, ok := e.(SubmitGender); ok {
			if !ev.Gender.Valid() {
				return s, fmt.Errorf("%w: gender %q", ErrInvalidAnswer, ev.Gender)
			}
			next := s.advance(StepBirthTime)
			next.Draft = s.Draft.Merge(model.BirthProfile{Gender: ev.Gender})
			return next, nil
		}

	case StepBirthTime:
		if ev, ok := e.(SubmitBirthTime); ok {
			if !ev.Unknown && (ev.ChineseHour < 0 || ev.ChineseHour > 23) {
				return s, fmt.Errorf("%w: hour %d", ErrInvalidAnswer, ev.ChineseHour)
			}
			bt := model.BirthTime{Period: ev.Period, ChineseHour: ev.ChineseHour, Unknown: ev.Unknown}
			if bt.Unknown {
				bt.ChineseHour = 0
			}
			next := s.advance(StepTeaser)
			next.Draft = s.Draft.Merge(model.BirthProfile{BirthTime: &bt})
			next.Teaser = nil
			return next, nil
		}

	case StepTeaser:
		switch ev := e.(type) {
		case TeaserReady:
			next := s
			t := ev.Teaser
			next.Teaser = &t
			return next, nil
		case Continue:
			if s.Teaser == nil {
				return s, ErrTeaserRequired
			}
			return s.advance(StepAuth), nil
		}

	case StepAuth:
		switch ev := e.(type) {
		case AuthCompleted:
			if ev.UserID == "" {
				return s, fmt.Errorf("%w: empty user id", ErrInvalidAnswer)
			}
			next := s.advance(StepDone)
			next.UserID = ev.UserID
			next.Guest = false
			return next, nil
		case SkipAsGuest:
			// ゲストは永続化できないため回答と鑑定結果を破棄する
			next := s.advance(StepDone)
			next.Guest = true
			next.UserID = ""
			next.Draft = model.BirthProfile{}
			next.Teaser = nil
			return next, nil
		}
	}

	return s, fmt.Errorf("%w: %s at %s", ErrInvalidTransition, e.eventName(), s.Step)
}

// back は直前の前進を取り消す。
// 簡易鑑定から戻る場合、鑑定結果は現在の回答に対応しなくなるため破棄する。
func back(s State) (State, error) {
	if !s.CanGoBack() {
		return s, fmt.Errorf("%w: %s", ErrBackNotAllowed, s.Step)
	}
	next := s
	n := len(s.history)
	next.Step = s.history[n-1]
	next.history = s.history[:n-1:n-1]
	if s.Step == StepTeaser {
		next.Teaser = nil
	}
	return next, nil
}
