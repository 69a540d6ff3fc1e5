package main

import (
	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/sources"
)

var (
	parseOut    string
	parseAuthor string
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Convert auxiliary sources into the files extract reads",
}

var parseTelegramCmd = &cobra.Command{
	Use:   "telegram <messages.html>",
	Short: "Parse a group-chat HTML export into telegram_parsed.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		export, err := sources.ParseChatExportFile(args[0], sources.DefaultSenders)
		if err != nil {
			return err
		}
		out := parseOut
		if out == "" {
			out = cfg.ChatPath()
		}
		return withLock("parse telegram", func(string) error {
			if err := entity.WriteJSON(out, export); err != nil {
				return err
			}
			logging.Info("sources", "%s: %d messages from %d authors (%s to %s)",
				out, export.Total, len(export.Authors), export.Period.From, export.Period.To)
			return nil
		})
	},
}

var parseStimmeCmd = &cobra.Command{
	Use:   "stimme <dir>",
	Short: "Parse a directory of reflections into stimme_parsed.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refl, err := sources.ParseReflectionsDir(args[0], parseAuthor)
		if err != nil {
			return err
		}
		out := parseOut
		if out == "" {
			out = cfg.ReflectionsPath()
		}
		return withLock("parse stimme", func(string) error {
			if err := entity.WriteJSON(out, refl); err != nil {
				return err
			}
			logging.Info("sources", "%s: %d documents, %d characters", out, refl.Total, refl.TotalChars)
			return nil
		})
	},
}

func init() {
	parseCmd.PersistentFlags().StringVar(&parseOut, "out", "", "Output file (default: in the data directory)")
	parseStimmeCmd.Flags().StringVar(&parseAuthor, "author", "eli", "Participant id of the author")
	parseCmd.AddCommand(parseTelegramCmd, parseStimmeCmd)
	rootCmd.AddCommand(parseCmd)
}
