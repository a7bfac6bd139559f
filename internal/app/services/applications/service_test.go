package applications

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/classforge/enrollment/internal/app/apperr"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/identity"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/storage/memory"
)

var (
	student = identity.Actor{UserID: "u1", Role: identity.RoleUser}
	staff   = identity.Actor{UserID: "mod1", Role: identity.RoleModerator}
	teacher = identity.Actor{UserID: "t1", Role: identity.RoleUser}
)

func newFixture(t *testing.T) (*Service, *memory.Store, group.Group) {
	t.Helper()
	store := memory.New()
	g := store.AddGroup(group.Group{
		ID:               "g1",
		ProgramID:        "p1",
		Title:            "Evening group",
		ProgramTitle:     "Robotics",
		Capacity:         10,
		IsOpen:           true,
		ProgramPublished: true,
		Teachers:         []string{teacher.UserID},
	})
	return New(store, store, store, store, store, nil), store, g
}

func recordInterview(t *testing.T, store *memory.Store, appID string, result interview.Result) {
	t.Helper()
	if _, err := store.UpsertInterview(context.Background(), interview.Interview{
		ApplicationID: appID,
		Result:        result,
	}); err != nil {
		t.Fatalf("seed interview: %v", err)
	}
}

func TestApprovalRequiresRecommendedInterview(t *testing.T) {
	// Scenario: submit, review, approval blocked until a recommended
	// interview exists, then approval succeeds.
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "please")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if app.Status != application.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", app.Status)
	}

	app, err = svc.Transition(ctx, staff, app.ID, application.StatusInReview, "screening")
	if err != nil {
		t.Fatalf("to in_review: %v", err)
	}

	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusApproved, ""); apperr.CodeOf(err) != apperr.CodeInterviewRequired {
		t.Fatalf("expected interview_required, got %v", err)
	}

	recordInterview(t, store, app.ID, interview.ResultRecommended)

	app, err = svc.Transition(ctx, staff, app.ID, application.StatusApproved, "welcome")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if app.Status != application.StatusApproved {
		t.Fatalf("expected approved, got %s", app.Status)
	}

	students, err := svc.GroupStudents(ctx, staff, "g1")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(students) != 1 || students[0] != student.UserID {
		t.Fatalf("expected enrolled student, got %v", students)
	}
}

func TestNotRecommendedBlocksApprovalButNotRejection(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusInReview, ""); err != nil {
		t.Fatalf("to in_review: %v", err)
	}
	recordInterview(t, store, app.ID, interview.ResultNotRecommended)

	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusApproved, ""); apperr.CodeOf(err) != apperr.CodeInterviewRejected {
		t.Fatalf("expected interview_rejected, got %v", err)
	}

	app, err = svc.Transition(ctx, staff, app.ID, application.StatusRejected, "not a fit")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if app.Status != application.StatusRejected {
		t.Fatalf("expected rejected, got %s", app.Status)
	}
}

func TestDuplicateActiveAndReapplyAfterCancel(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, student, "g1", "again"); apperr.CodeOf(err) != apperr.CodeDuplicateActive {
		t.Fatalf("expected duplicate_active, got %v", err)
	}

	if _, err := svc.Cancel(ctx, student, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Create(ctx, student, "g1", "take two"); err != nil {
		t.Fatalf("re-apply after cancel: %v", err)
	}
}

func TestConcurrentCreatesYieldOneWinner(t *testing.T) {
	svc, _, _ := newFixture(t)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), student, "g1", "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case apperr.CodeOf(err) == apperr.CodeDuplicateActive:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful create, got %d", winners)
	}
}

func TestCancelIsOwnerOnlyRegardlessOfRole(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, actor := range []identity.Actor{staff, teacher, {UserID: "other", Role: identity.RoleAdmin}} {
		if _, err := svc.Cancel(ctx, actor, app.ID); apperr.CodeOf(err) != apperr.CodeForbidden {
			t.Fatalf("expected forbidden for %s, got %v", actor.UserID, err)
		}
	}

	app, err = svc.Cancel(ctx, student, app.ID)
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if app.Status != application.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", app.Status)
	}
}

func TestCancelAllowedFromReviewButNotFromTerminal(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusInReview, ""); err != nil {
		t.Fatalf("to in_review: %v", err)
	}
	if _, err := svc.Cancel(ctx, student, app.ID); err != nil {
		t.Fatalf("cancel from in_review: %v", err)
	}

	second, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if _, err := svc.Transition(ctx, staff, second.ID, application.StatusInReview, ""); err != nil {
		t.Fatalf("to in_review: %v", err)
	}
	recordInterview(t, store, second.ID, interview.ResultRecommended)
	if _, err := svc.Transition(ctx, staff, second.ID, application.StatusApproved, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Cancel(ctx, student, second.ID); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}

func TestTransitionAuthorization(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The owner cannot move their own application into review.
	if _, err := svc.Transition(ctx, student, app.ID, application.StatusInReview, ""); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// An assigned teacher can, even with a plain user role.
	if _, err := svc.Transition(ctx, teacher, app.ID, application.StatusInReview, ""); err != nil {
		t.Fatalf("teacher to in_review: %v", err)
	}
}

func TestInvalidTransitionEdges(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// submitted -> approved skips review.
	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusApproved, ""); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	// Unknown target status.
	if _, err := svc.Transition(ctx, staff, app.ID, application.Status("archived"), ""); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition for unknown status, got %v", err)
	}
}

func TestConcurrentApproveRejectOneWins(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusInReview, ""); err != nil {
		t.Fatalf("to in_review: %v", err)
	}
	recordInterview(t, store, app.ID, interview.ResultRecommended)

	var wg sync.WaitGroup
	results := make([]error, 2)
	targets := []application.Status{application.StatusApproved, application.StatusRejected}
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target application.Status) {
			defer wg.Done()
			_, results[i] = svc.Transition(ctx, staff, app.ID, target, "race")
		}(i, target)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		code := apperr.CodeOf(err)
		if code != apperr.CodeConflict && code != apperr.CodeInvalidTransition {
			t.Fatalf("unexpected racing error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d", succeeded)
	}
}

func TestConflictRetryWithFreshStatusSucceeds(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A stale writer loses the compare-and-set.
	if _, err := store.TransitionStatus(ctx, app.ID, application.StatusInReview, application.StatusRejected); !errors.Is(err, apperr.Conflict()) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Re-reading and retrying through the lifecycle succeeds.
	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusInReview, ""); err != nil {
		t.Fatalf("retry with fresh status: %v", err)
	}
}

func TestCreateGuards(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	store.AddGroup(group.Group{ID: "closed", ProgramID: "p1", IsOpen: false, ProgramPublished: true})
	if _, err := svc.Create(ctx, student, "closed", ""); apperr.CodeOf(err) != apperr.CodeGroupNotOpen {
		t.Fatalf("expected group_not_open for closed group, got %v", err)
	}

	store.AddGroup(group.Group{ID: "draft", ProgramID: "p2", IsOpen: true, ProgramPublished: false})
	if _, err := svc.Create(ctx, student, "draft", ""); apperr.CodeOf(err) != apperr.CodeGroupNotOpen {
		t.Fatalf("expected group_not_open for unpublished program, got %v", err)
	}

	// A teacher assigned in the program cannot apply to it.
	if _, err := svc.Create(ctx, teacher, "g1", ""); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden for own-program teacher, got %v", err)
	}

	if _, err := svc.Create(ctx, student, "missing", ""); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestApprovalStopsAtCapacity(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	tiny := store.AddGroup(group.Group{
		ID:               "tiny",
		ProgramID:        "p3",
		Capacity:         1,
		IsOpen:           true,
		ProgramPublished: true,
		Teachers:         []string{teacher.UserID},
	})

	approve := func(u identity.Actor) error {
		app, err := svc.Create(ctx, u, tiny.ID, "")
		if err != nil {
			return err
		}
		if _, err := svc.Transition(ctx, staff, app.ID, application.StatusInReview, ""); err != nil {
			return err
		}
		recordInterview(t, store, app.ID, interview.ResultRecommended)
		_, err = svc.Transition(ctx, staff, app.ID, application.StatusApproved, "")
		return err
	}

	if err := approve(identity.Actor{UserID: "s1", Role: identity.RoleUser}); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if err := approve(identity.Actor{UserID: "s2", Role: identity.RoleUser}); apperr.CodeOf(err) != apperr.CodeGroupFull {
		t.Fatalf("expected group_full, got %v", err)
	}
}

func TestAuditTrailRecordsTransitions(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	app, err := svc.Create(ctx, student, "g1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Transition(ctx, staff, app.ID, application.StatusInReview, "looks promising"); err != nil {
		t.Fatalf("to in_review: %v", err)
	}

	if _, err := svc.History(ctx, student, app.ID); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden history for non-staff, got %v", err)
	}

	trail, err := svc.History(ctx, staff, app.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(trail))
	}
	entry := trail[0]
	if entry.From != application.StatusSubmitted || entry.To != application.StatusInReview {
		t.Fatalf("unexpected audit edge: %s -> %s", entry.From, entry.To)
	}
	if entry.Reason != "looks promising" || entry.ActorUserID != staff.UserID {
		t.Fatalf("audit entry not recorded faithfully: %+v", entry)
	}
}

func TestListScoping(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, student, "g1", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	views, err := svc.List(ctx, staff, application.Filter{GroupID: "g1"})
	if err != nil {
		t.Fatalf("staff list: %v", err)
	}
	if len(views) != 1 || views[0].GroupTitle != "Evening group" || views[0].ProgramTitle != "Robotics" {
		t.Fatalf("expected joined titles, got %+v", views)
	}

	if _, err := svc.List(ctx, teacher, application.Filter{GroupID: "g1"}); err != nil {
		t.Fatalf("assigned teacher list: %v", err)
	}
	outsider := identity.Actor{UserID: "t2", Role: identity.RoleUser}
	if _, err := svc.List(ctx, outsider, application.Filter{GroupID: "g1"}); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden for unassigned teacher, got %v", err)
	}
	if _, err := svc.List(ctx, outsider, application.Filter{}); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected forbidden for unscoped non-staff list, got %v", err)
	}

	// Program-scoped teacher listing narrows to assigned groups.
	views, err = svc.List(ctx, teacher, application.Filter{ProgramID: "p1"})
	if err != nil {
		t.Fatalf("teacher program list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one view, got %d", len(views))
	}

	mine, err := svc.ListMine(ctx, student)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected one own application, got %d", len(mine))
	}
}

func TestTeacherProgramAccess(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	ok, err := svc.TeacherProgramAccess(ctx, teacher, "p1")
	if err != nil {
		t.Fatalf("access check: %v", err)
	}
	if !ok {
		t.Fatalf("expected assigned teacher to have access")
	}

	ok, err = svc.TeacherProgramAccess(ctx, student, "p1")
	if err != nil {
		t.Fatalf("access check: %v", err)
	}
	if ok {
		t.Fatalf("expected unassigned user to lack access")
	}
}
