package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/sermonhub/internal/model"
)

func strPtr(s string) *string { return &s }

func graceChapel() *model.Church {
	return &model.Church{
		ID:           "c1",
		Name:         "Grace Chapel",
		Slug:         "grace-chapel",
		ContactEmail: "pastor@grace.example.org",
	}
}

func TestList_OrderedByName(t *testing.T) {
	repo := newMemoryChurchRepo(
		&model.Church{ID: "2", Name: "Zion"},
		&model.Church{ID: "1", Name: "Bethel"},
	)
	list, err := NewService(repo, nil).List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Bethel" || list[1].Name != "Zion" {
		t.Errorf("unexpected order: %v, %v", list[0].Name, list[1].Name)
	}
}

func TestCreate_ReturnsRefreshedList(t *testing.T) {
	repo := newMemoryChurchRepo()
	svc := NewService(repo, nil)

	list, err := svc.Create(context.Background(), ChurchInput{
		Name:          " Grace Chapel ",
		Slug:          "grace-chapel",
		ContactEmail:  "pastor@grace.example.org",
		NotionPageURL: strPtr(""),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
	got := list[0]
	if got.ID == "" || got.Name != "Grace Chapel" {
		t.Errorf("unexpected church: %+v", got)
	}
	if got.NotionPageURL != nil {
		t.Errorf("empty notion URL must be stored as nil, got %q", *got.NotionPageURL)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCreate_DuplicateSlug_ReturnsConflict(t *testing.T) {
	repo := newMemoryChurchRepo(graceChapel())
	_, err := NewService(repo, nil).Create(context.Background(), ChurchInput{
		Name: "Another", Slug: "grace-chapel", ContactEmail: "a@example.org",
	})
	if !model.IsKind(err, model.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if model.Normalize(err).Code != model.ErrCodeDuplicateSlug {
		t.Errorf("Code = %s", model.Normalize(err).Code)
	}
}

func TestValidateChurch(t *testing.T) {
	valid := ChurchInput{Name: "Grace", Slug: "grace-2", ContactEmail: "a@example.org"}
	if err := ValidateChurch(valid); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ChurchInput)
	}{
		{"name missing", func(in *ChurchInput) { in.Name = "" }},
		{"slug missing", func(in *ChurchInput) { in.Slug = "" }},
		{"slug uppercase", func(in *ChurchInput) { in.Slug = "Grace" }},
		{"slug with space", func(in *ChurchInput) { in.Slug = "grace chapel" }},
		{"email missing", func(in *ChurchInput) { in.ContactEmail = "" }},
		{"email malformed", func(in *ChurchInput) { in.ContactEmail = "pastor" }},
		{"notion url malformed", func(in *ChurchInput) { in.NotionPageURL = strPtr("notion.so/page") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if err := ValidateChurch(in); !model.IsKind(err, model.KindValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestUpdate_PartialAndClearNotionURL(t *testing.T) {
	church := graceChapel()
	church.NotionPageURL = strPtr("https://www.notion.so/grace")
	repo := newMemoryChurchRepo(church)
	svc := NewService(repo, nil)

	list, err := svc.Update(context.Background(), "c1", ChurchUpdate{
		Name:          strPtr("Grace Community"),
		NotionPageURL: strPtr(""),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	got := list[0]
	if got.Name != "Grace Community" || got.Slug != "grace-chapel" {
		t.Errorf("unexpected church: %+v", got)
	}
	if got.NotionPageURL != nil {
		t.Errorf("NotionPageURL = %q, want nil", *got.NotionPageURL)
	}
}

func TestUpdate_Errors(t *testing.T) {
	other := &model.Church{ID: "c2", Name: "Zion", Slug: "zion", ContactEmail: "z@example.org"}
	repo := newMemoryChurchRepo(graceChapel(), other)
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), "missing", ChurchUpdate{Name: strPtr("x")})
	if !model.IsKind(err, model.KindNotFound) {
		t.Errorf("unknown id err = %v, want not found", err)
	}

	_, err = svc.Update(context.Background(), "c2", ChurchUpdate{Slug: strPtr("grace-chapel")})
	if !model.IsKind(err, model.KindConflict) {
		t.Errorf("duplicate slug err = %v, want conflict", err)
	}
}

func TestDelete(t *testing.T) {
	repo := newMemoryChurchRepo(graceChapel())
	svc := NewService(repo, nil)

	if _, err := svc.Delete(context.Background(), "missing"); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	list, err := svc.Delete(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len(list) = %d, want 0", len(list))
	}
}

func TestSendPasswordReset_UsesContactEmail(t *testing.T) {
	var sentTo string
	svc := NewService(newMemoryChurchRepo(graceChapel()), &mockResetter{
		resetFn: func(_ context.Context, email string) error {
			sentTo = email
			return nil
		},
	})

	if err := svc.SendPasswordReset(context.Background(), "c1"); err != nil {
		t.Fatalf("SendPasswordReset returned error: %v", err)
	}
	if sentTo != "pastor@grace.example.org" {
		t.Errorf("reset sent to %q, want contact email", sentTo)
	}
}

func TestSendPasswordReset_Errors(t *testing.T) {
	resetErr := errors.New("smtp down")
	svc := NewService(newMemoryChurchRepo(graceChapel()), &mockResetter{
		resetFn: func(context.Context, string) error { return resetErr },
	})

	if err := svc.SendPasswordReset(context.Background(), "missing"); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("unknown church err = %v, want not found", err)
	}
	if err := svc.SendPasswordReset(context.Background(), "c1"); !errors.Is(err, resetErr) {
		t.Errorf("err = %v, want %v", err, resetErr)
	}
}

func TestUnconfigured_ReturnsConfigurationMissing(t *testing.T) {
	svc := NewService(nil, nil)
	ctx := context.Background()

	errs := map[string]error{}
	_, errs["list"] = svc.List(ctx)
	_, errs["create"] = svc.Create(ctx, ChurchInput{})
	_, errs["update"] = svc.Update(ctx, "c1", ChurchUpdate{})
	_, errs["delete"] = svc.Delete(ctx, "c1")
	errs["reset"] = svc.SendPasswordReset(ctx, "c1")

	for name, err := range errs {
		if !model.IsKind(err, model.KindConfigurationMissing) {
			t.Errorf("%s: err = %v, want configuration missing", name, err)
		}
	}
}
