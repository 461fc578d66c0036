package banner

import (
	"github.com/charmbracelet/lipgloss"

	"wsramp/internal/tui/styles"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `

 _      _______ _________ _____ ___  ____
| | /| / / ___// ___/ __ '/ __ '__ \/ __ \
| |/ |/ (__  )/ /  / /_/ / / / / / / /_/ /
|__/|__/____//_/   \__,_/_/ /_/ /_/ .___/
                                 /_/      `

	return "\n" + style.Render(ascii) + "\n"
}
