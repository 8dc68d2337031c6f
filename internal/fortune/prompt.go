package fortune

import (
	"fmt"
	"time"

	"github.com/hitoshi/horo/internal/astrology"
)

func teaserPrompt(birthDate time.Time, chart *astrology.Chart) string {
	return fmt.Sprintf(`You are a mystical Thai fortune teller. Based on this person's astrology:

Birth Date: %s
Element: %s
Day Master: %s
Thai Day: %s

Write a 3-4 sentence teaser fortune reading in Thai. Use the respectful "เจ้า" (thou) form.
Make it feel sacred and slightly mysterious. Focus on their personality and today's fortune.
Do NOT use emojis. Be poetic but clear.`,
		birthDate.Format(time.RFC3339),
		chart.Element,
		chart.DayMaster,
		chart.Thai.Day,
	)
}
