package devserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pamana/notes/internal/crypto"
	"pamana/notes/internal/model"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "pamana-demo"

type demoUser struct {
	schoolID string
	role     model.Role
	course   string
}

var demoUsers = []demoUser{
	{"0000-00001", model.RoleAdmin, ""},
	{"2020-00101", model.RoleModerator, "BSIT"},
	{"2020-00102", model.RoleModerator, "BSCS"},
	{"2021-00042", model.RoleStudent, "BSIT"},
	{"2021-00077", model.RoleStudent, "BSCS"},
}

// Seed fills an empty repository with demo accounts, subjects, notes and a
// wall post. It does nothing when the admin account already exists.
func Seed(ctx context.Context, repo Repository, logger *slog.Logger) error {
	if _, err := repo.GetUserBySchoolID(ctx, demoUsers[0].schoolID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	hash, err := crypto.HashPassword(DemoPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, u := range demoUsers {
		err := repo.CreateUser(ctx, User{
			ID:           uuid.NewString(),
			SchoolID:     u.schoolID,
			PasswordHash: hash,
			Role:         u.role,
			Course:       u.course,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
	}

	general, err := repo.CreateSubject(ctx, model.Subject{Name: "Purposive Communication", IsGeneral: true})
	if err != nil {
		return err
	}
	dsa, err := repo.CreateSubject(ctx, model.Subject{Name: "Data Structures and Algorithms", IsMajor: true, Course: "BSIT"})
	if err != nil {
		return err
	}
	discrete, err := repo.CreateSubject(ctx, model.Subject{Name: "Discrete Mathematics", IsMajor: true, Course: "BSCS"})
	if err != nil {
		return err
	}

	notes := []model.Note{
		{Title: "Linked lists cheat sheet", Visibility: model.ScopeCourse, Subject: &dsa, Author: "2021-00042"},
		{Title: "Graph traversal walkthrough", Visibility: model.ScopeCourse, Subject: &dsa, Author: "2021-00042", IsApproved: true},
		{Title: "Set theory reviewer", Visibility: model.ScopeCourse, Subject: &discrete, Author: "2021-00077"},
		{Title: "Essay structure guide", Visibility: model.ScopePublic, Subject: &general, Author: "2021-00077", IsApproved: true},
	}
	for i, n := range notes {
		n.Description = "Seeded demo note."
		n.File = "notes/demo-" + uuid.NewString() + ".pdf"
		n.UploadedAt = now.Add(time.Duration(i) * time.Minute)
		if _, err := repo.CreateNote(ctx, n); err != nil {
			return err
		}
	}

	post, err := repo.CreatePost(ctx, model.Post{
		Author:    model.Author{SchoolID: "0000-00001"},
		Content:   "Welcome to the notes wall. Be kind and share what helped you.",
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	if _, err := repo.CreateWallComment(ctx, model.Comment{
		PostID:    post.ID,
		Author:    model.Author{SchoolID: "2021-00042"},
		Content:   "Glad to be here!",
		CreatedAt: now,
	}); err != nil {
		return err
	}

	logger.Info("demo data seeded", "users", len(demoUsers), "notes", len(notes))
	return nil
}
