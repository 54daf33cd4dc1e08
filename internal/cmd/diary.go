package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/types"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validateDate(date string) error {
	_, err := types.ParseDate(date)
	return err
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user> <date>",
		Short: "Print the saved diary of a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateDate(args[1]); err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Store.Fetch(cmd.Context(), args[0], args[1])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no diary for %s on %s", args[0], args[1])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <user> <date> <text>...",
		Short: "Enrich and save diary text (manual save)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateDate(args[1]); err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args[2:], " ")
			rec, err := a.Orchestrator.NewSession(args[0], args[1], nil).ManualSave(cmd.Context(), text)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <user> <date> <audio-file>",
		Short: "Run the full recording pipeline on an audio file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateDate(args[1]); err != nil {
				return err
			}
			f, err := os.Open(args[2])
			if err != nil {
				return fmt.Errorf("open audio: %w", err)
			}
			defer f.Close()

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sess := a.Orchestrator.NewSession(args[0], args[1], recorder.NewFileRecorder(a.Config.AudioDir, true))
			if err := sess.Start(cmd.Context()); err != nil {
				return err
			}
			if _, err := sess.AppendAudio(f); err != nil {
				// a truncated recording is dropped, never processed
				sess.Cancel(err)
				return fmt.Errorf("buffer audio: %w", err)
			}
			rec, err := sess.Stop(cmd.Context())
			if err != nil {
				if st := sess.Status(); st.Notice != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), st.Notice)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <user> <date>",
		Short: "Delete every record of a user's day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Store.DeleteAll(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d record(s)\n", n)
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user>",
		Short: "Mint an API token for a user (development)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Issuer == nil {
				return fmt.Errorf("JWT_SECRET not set")
			}
			tok, err := a.Issuer.Generate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
