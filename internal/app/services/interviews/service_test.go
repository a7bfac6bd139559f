package interviews

import (
	"context"
	"testing"

	"github.com/classforge/enrollment/internal/app/apperr"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/identity"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/storage/memory"
)

var (
	candidate = identity.Actor{UserID: "u1", Role: identity.RoleUser}
	admin     = identity.Actor{UserID: "adm", Role: identity.RoleAdmin}
	teacher   = identity.Actor{UserID: "t1", Role: identity.RoleUser}
)

func seed(t *testing.T, status application.Status) (*Service, *memory.Store, application.Application) {
	t.Helper()
	store := memory.New()
	store.AddGroup(group.Group{
		ID:               "g1",
		ProgramID:        "p1",
		IsOpen:           true,
		ProgramPublished: true,
		Teachers:         []string{teacher.UserID},
	})
	app, err := store.CreateApplication(context.Background(), application.Application{
		UserID:  candidate.UserID,
		GroupID: "g1",
		Status:  status,
	})
	if err != nil {
		t.Fatalf("seed application: %v", err)
	}
	return New(store, store, store, nil), store, app
}

func TestRecordByAssignedTeacher(t *testing.T) {
	svc, _, app := seed(t, application.StatusInReview)

	in, err := svc.Record(context.Background(), teacher, app.ID, interview.ResultRecommended, "solid candidate")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if in.Result != interview.ResultRecommended || in.InterviewerUserID != teacher.UserID {
		t.Fatalf("unexpected interview: %+v", in)
	}
	if in.CandidateUserID != candidate.UserID || in.GroupID != "g1" {
		t.Fatalf("interview not linked to application: %+v", in)
	}
}

func TestStaffCannotRecordButCanRead(t *testing.T) {
	svc, _, app := seed(t, application.StatusInReview)
	ctx := context.Background()

	if _, err := svc.Record(ctx, admin, app.ID, interview.ResultRecommended, ""); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden for staff record, got %v", err)
	}

	if _, err := svc.Record(ctx, teacher, app.ID, interview.ResultNeedsMore, ""); err != nil {
		t.Fatalf("teacher record: %v", err)
	}

	in, err := svc.Get(ctx, admin, app.ID)
	if err != nil {
		t.Fatalf("staff read: %v", err)
	}
	if in.Result != interview.ResultNeedsMore {
		t.Fatalf("expected needs_more, got %s", in.Result)
	}

	if _, err := svc.Get(ctx, candidate, app.ID); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden read for candidate, got %v", err)
	}
}

func TestRecordRequiresInReview(t *testing.T) {
	for _, status := range []application.Status{
		application.StatusSubmitted,
		application.StatusApproved,
		application.StatusRejected,
		application.StatusCancelled,
	} {
		svc, _, app := seed(t, status)
		if _, err := svc.Record(context.Background(), teacher, app.ID, interview.ResultRecommended, ""); apperr.CodeOf(err) != apperr.CodeInvalidState {
			t.Fatalf("status %s: expected invalid_state, got %v", status, err)
		}
	}
}

func TestRecordRejectsUnknownResult(t *testing.T) {
	svc, _, app := seed(t, application.StatusInReview)

	if _, err := svc.Record(context.Background(), teacher, app.ID, interview.Result("excellent"), ""); apperr.CodeOf(err) != apperr.CodeInvalidState {
		t.Fatalf("expected invalid_state, got %v", err)
	}
}

func TestLastWriteWins(t *testing.T) {
	svc, store, app := seed(t, application.StatusInReview)
	ctx := context.Background()

	first, err := svc.Record(ctx, teacher, app.ID, interview.ResultNeedsMore, "come back")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, err := svc.Record(ctx, teacher, app.ID, interview.ResultRecommended, "much better")
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("overwrite should keep the single slot, got new id %s", second.ID)
	}

	in, found, err := store.GetInterviewByApplication(ctx, app.ID)
	if err != nil || !found {
		t.Fatalf("lookup: %v found=%v", err, found)
	}
	if in.Result != interview.ResultRecommended || in.Comment != "much better" {
		t.Fatalf("expected last write to win, got %+v", in)
	}
}

func TestUnassignedTeacherForbidden(t *testing.T) {
	svc, _, app := seed(t, application.StatusInReview)

	outsider := identity.Actor{UserID: "t9", Role: identity.RoleUser}
	if _, err := svc.Record(context.Background(), outsider, app.ID, interview.ResultRecommended, ""); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
