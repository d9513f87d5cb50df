package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"pamana/notes/internal/gateway"
	"pamana/notes/internal/model"
	"pamana/notes/internal/moderation"
	"pamana/notes/internal/notes"
	"pamana/notes/internal/visibility"
)

func (a *app) library() *notes.Library {
	return notes.New(a.gw, notes.WithLogger(a.logger), notes.WithLive(a.cfg.APIURL, a.store))
}

func subjectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "List subjects notes can be filed under",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subjects, err := a.library().Subjects(cmd.Context())
			if err != nil {
				return err
			}
			w := a.table()
			defer w.Flush()
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCOURSE")
			for _, s := range subjects {
				course := s.Course
				if course == "" {
					course = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Name, s.Type(), course)
			}
			return nil
		},
	}
}

func findSubject(ctx context.Context, lib *notes.Library, id int64) (*model.Subject, error) {
	subjects, err := lib.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range subjects {
		if subjects[i].ID == id {
			return &subjects[i], nil
		}
	}
	return nil, errors.Errorf("unknown subject %d", id)
}

func openFile(path string) (*gateway.FilePart, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open file")
	}
	return &gateway.FilePart{Name: path, Contents: f}, func() { _ = f.Close() }, nil
}

func uploadCmd(a *app) *cobra.Command {
	var (
		title, description, scope, file string
		subjectID                       int64
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a note for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := a.library()
			subject, err := findSubject(cmd.Context(), lib, subjectID)
			if err != nil {
				return err
			}
			part, closeFile, err := openFile(file)
			if err != nil {
				return err
			}
			defer closeFile()

			up := notes.Upload{Title: title, Description: description, Subject: subject, File: part}
			if scope != "" {
				parsed, ok := model.ParseScope(scope)
				if !ok {
					return errors.Errorf("unknown visibility %q", scope)
				}
				up.Visibility = parsed
			}
			var note model.Note
			err = a.await(func() bool { return true }, func() (err error) {
				note, err = lib.Upload(cmd.Context(), up)
				return err
			})
			if err != nil {
				return err
			}
			a.printf("uploaded note %d as %s, waiting for review\n", note.ID, note.Visibility)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Note title")
	cmd.Flags().StringVar(&description, "description", "", "Short description")
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "Subject id (see pamana subjects)")
	cmd.Flags().StringVar(&scope, "visibility", "", "public, school or course")
	cmd.Flags().StringVarP(&file, "file", "f", "", "File to upload")
	return cmd
}

func resubmitCmd(a *app) *cobra.Command {
	var title, description, file string
	cmd := &cobra.Command{
		Use:   "resubmit <note-id>",
		Short: "Edit one of your notes and send it back to review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			author, err := a.author(cmd.Context())
			if err != nil {
				return err
			}
			mine, err := a.library().MyNotes(cmd.Context())
			if err != nil {
				return err
			}
			var note *model.Note
			for i := range mine {
				if mine[i].ID == id {
					note = &mine[i]
				}
			}
			if note == nil {
				return moderation.ErrNotAuthor
			}

			changes := moderation.Resubmission{}
			if cmd.Flags().Changed("title") {
				changes.Title = &title
			}
			if cmd.Flags().Changed("description") {
				changes.Description = &description
			}
			part, closeFile, err := openFile(file)
			if err != nil {
				return err
			}
			defer closeFile()
			changes.File = part

			updated, err := moderation.New(a.gw, moderation.WithLogger(a.logger)).Resubmit(cmd.Context(), author.SchoolID, *note, changes)
			if err != nil {
				return err
			}
			a.printf("note %d is %s again\n", updated.ID, updated.Status())
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Replacement file")
	return cmd
}

func myNotesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "my-notes",
		Short: "List notes you uploaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mine, err := a.library().MyNotes(cmd.Context())
			if err != nil {
				return err
			}
			a.printNotes(mine)
			return nil
		},
	}
}

func deleteNoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-note <note-id>",
		Short: "Delete one of your notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			author, err := a.author(cmd.Context())
			if err != nil {
				return err
			}
			lib := a.library()
			mine, err := lib.MyNotes(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range mine {
				if n.ID == id {
					if err := lib.DeleteNote(cmd.Context(), author.SchoolID, n); err != nil {
						return err
					}
					a.printf("deleted note %d\n", id)
					return nil
				}
			}
			return model.ErrNotAuthor
		},
	}
}

func likeNoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "like-note <note-id>",
		Short: "Like or unlike a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			state, err := a.library().ToggleLike(cmd.Context(), id)
			if err != nil {
				return err
			}
			verb := "unliked"
			if state.Liked {
				verb = "liked"
			}
			a.printf("%s note %d (%d likes)\n", verb, id, state.LikesCount)
			return nil
		},
	}
}

func publicCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "public",
		Short: "List approved public notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			public, err := a.library().Public(cmd.Context())
			if err != nil {
				return err
			}
			a.printNotes(public)
			return nil
		},
	}
}

func dashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Count your notes by review status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash, err := a.library().Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("%d notes: %d approved, %d pending, %d rejected\n", dash.MyNotes, dash.Approved, dash.Pending, dash.Rejected)
			return nil
		},
	}
}

func saveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <note-id>",
		Short: "Save or unsave a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			lib := a.library()
			if _, err := lib.Saved(cmd.Context()); err != nil {
				return err
			}
			saved, err := lib.ToggleSave(cmd.Context(), id)
			if err != nil {
				return err
			}
			if saved {
				a.printf("saved note %d\n", id)
			} else {
				a.printf("removed note %d from saved\n", id)
			}
			return nil
		},
	}
}

func savedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List your saved notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := a.library().Saved(cmd.Context())
			if err != nil {
				return err
			}
			a.printNotes(saved)
			return nil
		},
	}
}

func (a *app) printComments(comments []model.Comment, indent string) {
	for _, c := range comments {
		a.printf("%s#%d %s: %s\n", indent, c.ID, c.Author.SchoolID, c.Content)
		a.printComments(c.Replies, indent+"    ")
	}
}

func commentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <note-id>",
		Short: "Show the comment thread of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			comments, err := a.library().Comments(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(comments) == 0 {
				a.printf("no comments\n")
			}
			a.printComments(comments, "")
			return nil
		},
	}
}

func commentNoteCmd(a *app) *cobra.Command {
	var parent int64
	cmd := &cobra.Command{
		Use:   "comment-note <note-id> <text>",
		Short: "Comment on a note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			author, err := a.author(cmd.Context())
			if err != nil {
				return err
			}
			lib := a.library()
			if _, err := lib.Comments(cmd.Context(), id); err != nil {
				return err
			}
			var parentID *int64
			if parent > 0 {
				parentID = &parent
			}
			created, err := lib.AddComment(cmd.Context(), author, id, strings.Join(args[1:], " "), parentID)
			if err != nil {
				return err
			}
			a.printf("comment %d added\n", created.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&parent, "parent", 0, "Reply to this comment id")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <note-id>",
		Short: "Follow new comments on a note until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lib := a.library()
			comments, err := lib.Comments(ctx, id)
			if err != nil {
				return err
			}
			a.printComments(comments, "")
			err = lib.Live(ctx, id, func(ev notes.Event) {
				switch ev.Kind {
				case notes.EventCreated:
					if ev.Comment != nil {
						a.printf("+ #%d %s: %s\n", ev.Comment.ID, ev.Comment.Author.SchoolID, ev.Comment.Content)
					}
				case notes.EventDeleted:
					a.printf("- #%d removed\n", ev.CommentID)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func scopesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes <General|Major>",
		Short: "Show the visibility scopes allowed for a subject type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := model.ParseSubjectType(args[0])
			if !ok {
				return errors.Errorf("unknown subject type %q", args[0])
			}
			scopes, _ := visibility.AllowedScopes(&t)
			names := make([]string, len(scopes))
			for i, s := range scopes {
				names[i] = string(s)
			}
			a.printf("%s: %s (default %s)\n", t, strings.Join(names, ", "), visibility.DefaultScope(&t))
			return nil
		},
	}
}
