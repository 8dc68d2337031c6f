// Package astrology は生年月日から四柱とタイの曜日占星を計算する。
package astrology

import (
	"fmt"
	"time"

	"github.com/hitoshi/horo/internal/model"
)

// Element は五行。
type Element string

const (
	ElementWood  Element = "wood"
	ElementFire  Element = "fire"
	ElementEarth Element = "earth"
	ElementMetal Element = "metal"
	ElementWater Element = "water"
)

var (
	heavenlyStems   = [10]string{"甲", "乙", "丙", "丁", "戊", "己", "庚", "辛", "壬", "癸"}
	earthlyBranches = [12]string{"子", "丑", "寅", "卯", "辰", "巳", "午", "未", "申", "酉", "戌", "亥"}
	stemElements    = [10]Element{
		ElementWood, ElementWood, ElementFire, ElementFire, ElementEarth,
		ElementEarth, ElementMetal, ElementMetal, ElementWater, ElementWater,
	}
)

// dayPillarEpoch は甲子の日。日柱はここからの経過日数で求める。
var dayPillarEpoch = time.Date(1949, 10, 1, 0, 0, 0, 0, time.UTC)

// Pillar は干支の組。
type Pillar struct {
	Stem   string `json:"stem"`
	Branch string `json:"branch"`
}

func (p Pillar) String() string {
	return p.Stem + p.Branch
}

func newPillar(stem, branch int) Pillar {
	return Pillar{Stem: heavenlyStems[mod(stem, 10)], Branch: earthlyBranches[mod(branch, 12)]}
}

// Chart は命式の計算結果。
type Chart struct {
	YearPillar  Pillar
	MonthPillar Pillar
	DayPillar   Pillar
	// HourPillar は出生時刻が不明ならnil。
	HourPillar  *Pillar
	DayMaster   string
	Element     Element
	Gender      model.Gender
	Thai        ThaiDay
}

// Engine は占星計算のインターフェース。
type Engine interface {
	Calculate(birthDate time.Time, birthHour *int, gender model.Gender) (*Chart, error)
}

// BasicEngine は節入りを固定日で近似した計算を行う。
type BasicEngine struct{}

// NewBasicEngine はBasicEngineを生成する。
func NewBasicEngine() *BasicEngine {
	return &BasicEngine{}
}

// Calculate は命式を計算する。birthHourは0〜23、不明ならnil。
func (e *BasicEngine) Calculate(birthDate time.Time, birthHour *int, gender model.Gender) (*Chart, error) {
	if birthDate.IsZero() {
		return nil, fmt.Errorf("birth date is required")
	}
	if birthHour != nil && (*birthHour < 0 || *birthHour > 23) {
		return nil, fmt.Errorf("birth hour out of range: %d", *birthHour)
	}

	date := time.Date(birthDate.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, time.UTC)

	yearStem, yearBranch := yearIndex(date)
	monthOffset := solarMonthOffset(date)
	// 寅月の天干は年干で決まる（甲・己年は丙寅から）
	monthStem := mod(yearStem, 5)*2 + 2 + monthOffset
	monthBranch := 2 + monthOffset

	days := int(date.Sub(dayPillarEpoch).Hours() / 24)
	dayStem, dayBranch := mod(days, 10), mod(days, 12)

	chart := &Chart{
		YearPillar:  newPillar(yearStem, yearBranch),
		MonthPillar: newPillar(monthStem, monthBranch),
		DayPillar:   newPillar(dayStem, dayBranch),
		DayMaster:   heavenlyStems[dayStem],
		Element:     stemElements[dayStem],
		Gender:      gender,
		Thai:        ThaiDayOf(date.Weekday()),
	}

	if birthHour != nil {
		branch := ((*birthHour + 1) / 2) % 12
		// 子刻の天干は日干で決まる（甲・己日は甲子から）
		p := newPillar(mod(dayStem, 5)*2+branch, branch)
		chart.HourPillar = &p
	}

	return chart, nil
}

// yearIndex は立春（2月4日で近似）を年の境として年柱の干支番号を返す。
func yearIndex(date time.Time) (stem, branch int) {
	year := date.Year()
	if date.Month() < time.February || (date.Month() == time.February && date.Day() < 4) {
		year--
	}
	return mod(year-4, 10), mod(year-4, 12)
}

// solarMonthStart は各月の節入り日の近似値（1月〜12月）。
var solarMonthStart = [12]int{6, 4, 6, 5, 6, 6, 7, 8, 8, 8, 7, 7}

// solarMonthOffset は寅月を0とした節月の番号を返す。
func solarMonthOffset(date time.Time) int {
	m := int(date.Month()) // 1..12
	if date.Day() < solarMonthStart[m-1] {
		m--
	}
	// 2月の節入り後が寅月
	return mod(m-2, 12)
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

// compile-time interface check
var _ Engine = (*BasicEngine)(nil)
