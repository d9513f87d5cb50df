package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"pamana/notes/internal/gateway"
	"pamana/notes/internal/model"
	"pamana/notes/internal/moderation"
)

var errNotSignedIn = errors.New("not signed in, run pamana login first")

func (a *app) reviewer(ctx context.Context) (model.Role, string, error) {
	role, ok := a.session.Role(ctx)
	if !ok {
		return model.RoleUnknown, "", errNotSignedIn
	}
	course, _ := a.session.Course(ctx)
	return role, course, nil
}

func (a *app) printNotes(notes []model.Note) {
	if len(notes) == 0 {
		a.printf("no notes\n")
		return
	}
	w := a.table()
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTITLE\tCOURSE\tSCOPE\tSTATUS\tAUTHOR\tUPLOADED")
	for _, n := range notes {
		course := n.Course()
		if course == "" {
			course = "-"
		}
		status := string(n.Status())
		if n.RejectionReason != "" {
			status += ": " + n.RejectionReason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", n.ID, n.Title, course, n.Visibility, status, n.Author, since(n.UploadedAt))
	}
}

func queueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List notes waiting for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, course, err := a.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			engine := moderation.New(a.gw, moderation.WithLogger(a.logger))
			var notes []model.Note
			err = a.await(engine.Loading, func() (err error) {
				notes, err = engine.LoadQueue(cmd.Context(), role, course)
				return err
			})
			if err != nil {
				return err
			}
			a.printNotes(notes)
			return nil
		},
	}
}

func moderatedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "moderated",
		Short: "List approved and rejected notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, course, err := a.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			engine := moderation.New(a.gw, moderation.WithLogger(a.logger))
			notes, err := engine.LoadModerated(cmd.Context(), role, course)
			if err != nil {
				return err
			}
			a.printNotes(notes)
			stats := engine.Stats()
			a.printf("\napproved %d, rejected %d\n", stats.Approved, stats.Rejected)
			return nil
		},
	}
}

func approveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <note-id>...",
		Short: "Approve one or more pending notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := a.reviewer(cmd.Context()); err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			engine := moderation.New(a.gw, moderation.WithLogger(a.logger))
			if len(ids) == 1 {
				if err := engine.Approve(cmd.Context(), ids[0]); err != nil {
					return err
				}
				a.printf("approved %d\n", ids[0])
				return nil
			}

			result := engine.BulkApprove(cmd.Context(), ids)
			for _, id := range result.Approved {
				a.printf("approved %d\n", id)
			}
			failed := result.FailedIDs()
			for _, id := range failed {
				a.printf("failed %d: %s\n", id, gateway.UserMessage(result.Failed[id]))
			}
			if len(failed) > 0 {
				return errors.Errorf("%d of %d approvals failed", len(failed), len(ids))
			}
			return nil
		},
	}
}

func rejectCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <note-id>",
		Short: "Reject a pending note with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := a.reviewer(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := moderation.New(a.gw, moderation.WithLogger(a.logger)).Reject(cmd.Context(), id, reason); err != nil {
				return err
			}
			a.printf("rejected %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the note is rejected (required)")
	return cmd
}
