package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "photoctl",
	Short: "Инспекция и перенос состояния бота модерации фото",
	Long: `photoctl читает состояние бота из хранилища, заданного STORAGE_BACKEND
(и остальными переменными окружения бота), и умеет переносить его между бэкендами.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(scheduledCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(schemaCmd)
}
