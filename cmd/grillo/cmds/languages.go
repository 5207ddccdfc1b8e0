package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/grillo/pkg/language"
)

func NewLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the supported response languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			for _, l := range language.Supported() {
				marker := " "
				if l.Code == s.Chat.DefaultLanguage {
					marker = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %-6s %s %s\n", marker, l.Code, l.Flag, l.Name)
			}
			return nil
		},
	}
}
