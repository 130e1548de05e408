package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

// book command
var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Manage books",
}

var bookAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Create a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		group, _ := cmd.Flags().GetString("group")

		a, err := newApp("book add")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Store().AddBook(args[0], description, "", group)
		if err != nil {
			return fmt.Errorf("adding book: %w", err)
		}
		fmt.Printf("Book %d created: %s\n", id, args[0])
		return nil
	},
}

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("book list")
		if err != nil {
			return err
		}
		defer a.Close()

		books, err := a.Store().GetAllBooks()
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Println("No books.")
			return nil
		}
		for _, b := range books {
			fmt.Printf("%4d  %-30s  %-12s  edited %s\n", b.ID, b.Title, b.Group, formatMillis(b.LastEditedAt))
		}
		return nil
	},
}

var bookDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Move a book and its chapters to the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp("book delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store().DeleteBook(id); err != nil {
			return err
		}
		fmt.Printf("Book %d moved to the recycle bin.\n", id)
		return nil
	},
}

// chapter command
var chapterCmd = &cobra.Command{
	Use:   "chapter",
	Short: "Manage chapters",
}

var chapterAddCmd = &cobra.Command{
	Use:   "add BOOK_ID TITLE",
	Short: "Add a chapter to a book",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		volume, _ := cmd.Flags().GetString("volume")
		bookID, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("chapter add")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Store().AddChapter(bookID, volume, args[1])
		if err != nil {
			return fmt.Errorf("adding chapter: %w", err)
		}
		fmt.Printf("Chapter %d created: %s\n", id, args[1])
		return nil
	},
}

var chapterListCmd = &cobra.Command{
	Use:   "list BOOK_ID",
	Short: "List the chapters of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp("chapter list")
		if err != nil {
			return err
		}
		defer a.Close()

		chapters, err := a.Store().GetChaptersForBook(bookID)
		if err != nil {
			return err
		}
		if len(chapters) == 0 {
			fmt.Println("No chapters.")
			return nil
		}
		for _, ch := range chapters {
			fmt.Printf("%4d  %-16s  %-30s  %6d  %s\n", ch.ID, ch.Volume, ch.Title, ch.WordCount, formatMillis(ch.LastEditedAt))
		}
		return nil
	},
}

var chapterWriteCmd = &cobra.Command{
	Use:   "write CHAPTER_ID",
	Short: "Replace a chapter's content from stdin or a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		var content []byte
		if file != "" {
			content, err = os.ReadFile(file)
		} else {
			content, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading content: %w", err)
		}

		a, err := newApp("chapter write")
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := a.Store().GetChapter(id)
		if err != nil {
			return err
		}
		if ch == nil {
			return fmt.Errorf("chapter %d not found", id)
		}
		if err := a.Store().UpdateChapterContent(id, string(content)); err != nil {
			return err
		}
		_, count, err := a.Store().GetChapterContent(id)
		if err != nil {
			return err
		}
		fmt.Printf("Chapter %d saved (%d characters).\n", id, count)
		return nil
	},
}

var chapterShowCmd = &cobra.Command{
	Use:   "show CHAPTER_ID",
	Short: "Print a chapter's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp("chapter show")
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := a.Store().GetChapter(id)
		if err != nil {
			return err
		}
		if ch == nil {
			return fmt.Errorf("chapter %d not found", id)
		}
		fmt.Println(ch.Content)
		return nil
	},
}

// recycle command
var recycleCmd = &cobra.Command{
	Use:   "recycle",
	Short: "Inspect and restore deleted books and chapters",
}

var recycleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the recycle bin",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("recycle list")
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.Store().GetRecycleBinItems()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Recycle bin is empty.")
			return nil
		}
		for _, it := range items {
			fmt.Printf("%4d  %-8s  item %-6d  deleted %s\n", it.ID, it.ItemType, it.ItemID, formatMillis(it.DeletedAt))
		}
		return nil
	},
}

var recycleRestoreCmd = &cobra.Command{
	Use:   "restore ENTRY_ID",
	Short: "Put a deleted book or chapter back",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp("recycle restore")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store().RestoreRecycleItem(id); err != nil {
			return err
		}
		fmt.Printf("Entry %d restored.\n", id)
		return nil
	},
}

var recycleEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently delete everything in the recycle bin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("Permanently delete everything in the recycle bin?") {
			fmt.Println("Aborted.")
			return nil
		}
		a, err := newApp("recycle empty")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Store().EmptyRecycleBin()
	},
}
