package main

import (
	"fmt"

	"github.com/fgeck/homelab-remote/internal/catalog"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the built-in preset commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load()
		if err != nil {
			return err
		}

		for i, c := range cat.Categories {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s:\n", c.Name)
			for _, p := range c.Commands {
				fmt.Printf("  %-20s %s\n", p.ID, p.Command)
			}
		}
		return nil
	},
}
