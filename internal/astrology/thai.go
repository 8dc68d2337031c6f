package astrology

import "time"

// ThaiDay はタイの曜日占星の結果。
type ThaiDay struct {
	Day            string
	Color          string
	Planet         string
	BuddhaPosition string
	Personality    string
	LuckyNumber    int
	LuckyDirection string
}

var thaiDays = [7]ThaiDay{
	time.Sunday: {
		Day:            "Sunday",
		Color:          "red",
		Planet:         "Sun",
		BuddhaPosition: "contemplating the Bodhi tree",
		Personality:    "Dignified and generous, a natural leader who earns respect easily",
		LuckyNumber:    1,
		LuckyDirection: "northeast",
	},
	time.Monday: {
		Day:            "Monday",
		Color:          "yellow",
		Planet:         "Moon",
		BuddhaPosition: "pacifying the relatives",
		Personality:    "Gentle and intuitive, with a calm charm that draws people close",
		LuckyNumber:    2,
		LuckyDirection: "east",
	},
	time.Tuesday: {
		Day:            "Tuesday",
		Color:          "pink",
		Planet:         "Mars",
		BuddhaPosition: "reclining",
		Personality:    "Brave and determined, quick to act and hard to discourage",
		LuckyNumber:    3,
		LuckyDirection: "southeast",
	},
	time.Wednesday: {
		Day:            "Wednesday",
		Color:          "green",
		Planet:         "Mercury",
		BuddhaPosition: "holding the alms bowl",
		Personality:    "Eloquent and clever, a gifted speaker with a curious mind",
		LuckyNumber:    4,
		LuckyDirection: "south",
	},
	time.Thursday: {
		Day:            "Thursday",
		Color:          "orange",
		Planet:         "Jupiter",
		BuddhaPosition: "meditating",
		Personality:    "Wise and principled, a patient teacher whom others seek for advice",
		LuckyNumber:    5,
		LuckyDirection: "west",
	},
	time.Friday: {
		Day:            "Friday",
		Color:          "light blue",
		Planet:         "Venus",
		BuddhaPosition: "contemplating",
		Personality:    "Warm and artistic, with a love of beauty and harmony",
		LuckyNumber:    6,
		LuckyDirection: "north",
	},
	time.Saturday: {
		Day:            "Saturday",
		Color:          "purple",
		Planet:         "Saturn",
		BuddhaPosition: "sheltered by the Naga",
		Personality:    "Steady and resilient, patient through hardship and loyal to the end",
		LuckyNumber:    7,
		LuckyDirection: "southwest",
	},
}

// ThaiDayOf は曜日に対応するタイ占星の属性を返す。
func ThaiDayOf(d time.Weekday) ThaiDay {
	return thaiDays[d]
}
