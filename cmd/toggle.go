package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediadupfinder/internal/models"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <group> <asset>",
	Short: "Flip whether a group member is removed by clean",
	Long: `Flip the deletion selection of one member of a duplicate group.

The group may be given by an ID prefix as shown by list; the asset by its
ID or path.

Example:
  mediadupfinder toggle 3f2a9c1e /photos/IMG_0001.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runToggle,
}

func init() {
	addClassFlag(toggleCmd, string(models.ClassPhoto))
	rootCmd.AddCommand(toggleCmd)
}

func runToggle(cmd *cobra.Command, args []string) error {
	classes, err := selectedClasses(cmd)
	if err != nil {
		return err
	}
	if len(classes) != 1 {
		return fmt.Errorf("toggle needs exactly one class")
	}
	class := classes[0]

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	groups := filterGroups(a.engine.Status(class).Groups, []string{args[0]})
	switch len(groups) {
	case 0:
		return fmt.Errorf("no %s group matches %q", class, args[0])
	case 1:
	default:
		return fmt.Errorf("%q matches %d groups, use a longer prefix", args[0], len(groups))
	}

	assetID := args[1]
	for _, m := range groups[0].Members {
		if m.Asset.Path == assetID {
			assetID = m.Asset.ID
			break
		}
	}

	selected, err := a.engine.Toggle(class, groups[0].ID, assetID)
	if err != nil {
		return err
	}
	if selected {
		fmt.Printf("%s will be removed by clean\n", args[1])
	} else {
		fmt.Printf("%s will be kept\n", args[1])
	}
	return nil
}
