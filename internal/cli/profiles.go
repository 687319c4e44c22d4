package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// profileNotes gives the CLI listing a one-line hint per profile.
var profileNotes = map[core.Profile]string{
	core.ProfileRadioReady: "loud, bright, competitive streaming level",
	core.ProfileWarmVinyl:  "softer top end, gentle saturation",
	core.ProfileBassHeavy:  "emphasized low end",
	core.ProfileVocalFocus: "midrange lift around the vocal",
	core.ProfileBrightPop:  "airy top end, modern pop sheen",
	core.ProfileLoFi:       "rounded highs, relaxed dynamics",
	core.ProfileClarity:    "transparent, minimal coloration",
	core.ProfileFlat:       "no tonal shaping, level match only",
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the available mastering profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range core.Profiles() {
				fmt.Printf("%-12s %s\n", p, profileNotes[p])
			}
			return nil
		},
	}
}
