package model

import (
	"fmt"
	"time"
)

// BirthDateLayout は生年月日の入出力フォーマット。
const BirthDateLayout = "2006-01-02"

// Gender は性別を表す。
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid は定義済みの値かどうかを返す。
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

// BirthTime は出生時刻の帯を表す。
// Unknownの場合ChineseHourは無視される。
type BirthTime struct {
	Period      string
	ChineseHour int
	Unknown     bool
}

// Hour は占星計算に渡す時刻を返す。不明の場合はnil。
func (t BirthTime) Hour() *int {
	if t.Unknown {
		return nil
	}
	h := t.ChineseHour
	return &h
}

// BirthProfile はオンボーディングで収集する回答。
// 各フィールドはステップごとに追加され、途中の段階では空でもよい。
type BirthProfile struct {
	Name      string
	BirthDate string
	Gender    Gender
	BirthTime *BirthTime
}

// ParsedBirthDate は生年月日をtime.Timeに変換する。
func (p BirthProfile) ParsedBirthDate() (time.Time, error) {
	if p.BirthDate == "" {
		return time.Time{}, fmt.Errorf("birth date is required")
	}
	d, err := time.Parse(BirthDateLayout, p.BirthDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid birth date %q: %w", p.BirthDate, err)
	}
	return d, nil
}

// BirthHour は占星計算に渡す時刻を返す。未回答または不明の場合はnil。
func (p BirthProfile) BirthHour() *int {
	if p.BirthTime == nil {
		return nil
	}
	return p.BirthTime.Hour()
}

// Merge はpatchの非ゼロ値で上書きした新しいBirthProfileを返す。
// 既存の回答を空値で消すことはない。
func (p BirthProfile) Merge(patch BirthProfile) BirthProfile {
	out := p
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if patch.BirthDate != "" {
		out.BirthDate = patch.BirthDate
	}
	if patch.Gender != "" {
		out.Gender = patch.Gender
	}
	if patch.BirthTime != nil {
		bt := *patch.BirthTime
		out.BirthTime = &bt
	}
	return out
}

// Teaser はログイン前に表示する簡易鑑定結果。
type Teaser struct {
	ElementType  string
	Personality  string
	TodaySnippet string
	LuckyColor   string
	LuckyNumber  int
}

// StoredProfile は認証後に永続化された出生プロフィール。
type StoredProfile struct {
	ID          string
	UserID      string
	Profile     BirthProfile
	ElementType string
	DayMaster   string
	ThaiDay     string
	CreatedAt   time.Time
}
