package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quill/internal/quill"
	"quill/internal/remote"
)

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and delete backups",
}

var backupCreateCmd = &cobra.Command{
	Use:       "create [snapshot|stage|archive]",
	Short:     "Run one backup now (default: stage)",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"snapshot", "stage", "archive"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := quill.KindStage
		if len(args) == 1 {
			k, err := quill.ParseKind(args[0])
			if err != nil {
				return err
			}
			kind = k
		}

		a, err := newApp("backup create")
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Manager().RunBackup(kind)
		fmt.Println(res.Message)
		if !res.Success {
			return fmt.Errorf("%s backup failed", kind)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup list")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Manager().ListBackups()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("No backups in %s.\n", a.Manager().BackupDir())
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-8s  %-45s  %10d  %s\n", e.Type, e.Filename, e.Size, e.Modified.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete FILENAME",
	Short: "Delete a local backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Manager().DeleteBackup(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply retention to every backup kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		var errs []error
		for _, kind := range quill.Kinds {
			removed, err := a.Manager().Cleanup(kind)
			for _, name := range removed {
				fmt.Printf("Removed %s\n", name)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore FILENAME",
	Short: "Restore from a backup",
	Long: `Restore from a backup in the backup directory.

A stage, archive or .bcb backup replaces every book, chapter, material,
timeline and inspiration entry with the backup's content. The current
database is copied next to itself with a .backup suffix first and copied
back if the restore fails.

A snapshot only rewrites the content of the chapters it contains.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		filename := args[0]

		typ, ok := quill.ClassifyArtifact(filename)
		if !ok {
			return fmt.Errorf("%s is not a backup file", filename)
		}
		if typ != quill.ArtifactSnapshot && !yes {
			if !confirm(fmt.Sprintf("Replace ALL writing data with the content of %s?", filename)) {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp("restore")
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Manager().RestoreFromBackup(filename)
		fmt.Println(res.Message)
		if !res.Success {
			if res.Rollback != quill.RollbackNone && res.Rollback != "" {
				fmt.Fprintf(os.Stderr, "Rollback: %s\n", res.Rollback)
			}
			return fmt.Errorf("restore failed")
		}
		return nil
	},
}

// remote command
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage off-site copies",
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remote backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remote list")
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.Manager().ListRemote()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No remote backups.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%-45s  %10d  %s\n", f.Name, f.Size, f.Modified.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var remotePushCmd = &cobra.Command{
	Use:   "push FILENAME",
	Short: "Upload a local backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remote push")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Manager().PushBackup(args[0]); err != nil {
			return err
		}
		fmt.Printf("Uploaded %s\n", args[0])
		return nil
	},
}

var remotePullCmd = &cobra.Command{
	Use:   "pull FILENAME",
	Short: "Download a remote backup into the backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remote pull")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.RemoteEncrypted() {
			pass, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			if err := a.UnlockRemote(pass); err != nil {
				return err
			}
		}

		path, err := a.Manager().PullBackup(args[0])
		if errors.Is(err, remote.ErrRemoteUnavailable) {
			return fmt.Errorf("%w: try again later", err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Downloaded %s\n", path)
		return nil
	},
}

var remoteDeleteCmd = &cobra.Command{
	Use:   "delete FILENAME",
	Short: "Delete a remote backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remote delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Manager().DeleteRemote(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted remote %s\n", args[0])
		return nil
	},
}
