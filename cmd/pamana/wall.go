package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"pamana/notes/internal/feed"
	"pamana/notes/internal/model"
)

// loadedFeed returns a feed engine with the wall already fetched, since
// replies, likes and deletes act on what the engine has seen.
func (a *app) loadedFeed(ctx context.Context) (*feed.Engine, []model.Post, error) {
	engine := feed.New(a.gw, feed.WithLogger(a.logger))
	posts, err := engine.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return engine, posts, nil
}

func (a *app) printPosts(posts []model.Post) {
	if len(posts) == 0 {
		a.printf("no posts\n")
		return
	}
	for _, p := range posts {
		liked := ""
		if p.Liked {
			liked = ", liked"
		}
		a.printf("[%d] %s  %s  (%d likes%s, %d comments)\n", p.ID, p.Author.SchoolID, since(p.CreatedAt), p.LikesCount, liked, p.CommentsCount)
		a.printf("    %s\n", p.Content)
		a.printComments(p.Comments, "    ")
		a.printf("\n")
	}
}

func wallCmd(a *app) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "wall",
		Short: "Show the wall",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := feed.New(a.gw, feed.WithLogger(a.logger))
			var posts []model.Post
			err := a.await(engine.Loading, func() (err error) {
				posts, err = engine.Load(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			a.printPosts(feed.Filter(posts, search))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only posts whose text or author contains this")
	return cmd
}

func postCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Write on the wall",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			author, err := a.author(cmd.Context())
			if err != nil {
				return err
			}
			post, err := feed.New(a.gw, feed.WithLogger(a.logger)).CreatePost(cmd.Context(), author, strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.printf("posted %d\n", post.ID)
			return nil
		},
	}
}

func commentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a wall post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID(args[0])
			if err != nil {
				return err
			}
			author, err := a.author(cmd.Context())
			if err != nil {
				return err
			}
			engine, _, err := a.loadedFeed(cmd.Context())
			if err != nil {
				return err
			}
			created, err := engine.CreateComment(cmd.Context(), author, postID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			a.printf("comment %d added\n", created.ID)
			return nil
		},
	}
}

func replyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <post-id> <comment-id> <text>",
		Short: "Reply to a comment",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:2])
			if err != nil {
				return err
			}
			author, err := a.author(cmd.Context())
			if err != nil {
				return err
			}
			engine, _, err := a.loadedFeed(cmd.Context())
			if err != nil {
				return err
			}
			created, err := engine.CreateReply(cmd.Context(), author, ids[0], ids[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			a.printf("reply %d added\n", created.ID)
			return nil
		},
	}
}

func likeCmd(a *app) *cobra.Command {
	var onComment bool
	cmd := &cobra.Command{
		Use:   "like <id>",
		Short: "Like or unlike a post (or a comment with --comment)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			target := feed.Post(id)
			if onComment {
				target = feed.Comment(id)
			}
			state, err := feed.New(a.gw, feed.WithLogger(a.logger)).ToggleLike(cmd.Context(), target)
			if err != nil {
				return err
			}
			verb := "unliked"
			if state.Liked {
				verb = "liked"
			}
			a.printf("%s %d (%d likes)\n", verb, id, state.LikesCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onComment, "comment", false, "The id is a comment or reply")
	return cmd
}

func reportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <comment-id> <spam|abusive|inappropriate>",
		Short: "Report a comment to the moderators",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := feed.New(a.gw, feed.WithLogger(a.logger)).Report(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			a.printf("reported comment %d\n", id)
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	var onComment bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete your post (or a comment with --comment)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			engine, _, err := a.loadedFeed(cmd.Context())
			if err != nil {
				return err
			}
			if onComment {
				err = engine.DeleteComment(cmd.Context(), id)
			} else {
				err = engine.DeletePost(cmd.Context(), id)
			}
			if errors.Is(err, feed.ErrNotDeletable) {
				return errors.Errorf("you cannot delete %d", id)
			}
			if err != nil {
				return err
			}
			a.printf("deleted %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onComment, "comment", false, "The id is a comment or reply")
	return cmd
}
