package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"tandem/shm"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List registered slot segments and their owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Shm.RegistryPath
			if path == "" {
				path = filepath.Join(cfg.Shm.Dir, "tandem-segments.json")
			}
			registry, err := shm.OpenRegistry(path)
			if err != nil {
				return err
			}
			entries, err := registry.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no registered segments")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				owner := "dead"
				if shm.PidAlive(e.Owner) {
					owner = "alive"
				}
				rows = append(rows, []string{
					e.Name,
					strconv.Itoa(e.Size),
					strconv.Itoa(e.Owner),
					owner,
					e.Created.Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Println(renderTable(
				[]string{"SEGMENT", "BYTES", "OWNER PID", "OWNER", "CREATED"},
				rows, 1, 2))
			return nil
		},
	}
}
