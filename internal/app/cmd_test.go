package app

import (
	"errors"
	"io"
	"testing"

	"github.com/hitoshi/sermonhub/internal/admin"
	"github.com/hitoshi/sermonhub/internal/model"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{nil, CommandServe},
		{[]string{"serve"}, CommandServe},
		{[]string{"worker"}, CommandWorker},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"grant", "--email", "a@b.c"}, CommandGrant},
		{[]string{"unknown"}, CommandServe},
		{[]string{"worker", "--env-file", ".env.worker"}, CommandWorker},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseOptions_EnvFile(t *testing.T) {
	opts, err := ParseOptions(CommandServe, []string{"--env-file", "/etc/sermonhub.env"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.EnvFile != "/etc/sermonhub.env" {
		t.Errorf("EnvFile = %q", opts.EnvFile)
	}
}

func TestParseOptions_UnknownFlag_ReturnsError(t *testing.T) {
	if _, err := ParseOptions(CommandServe, []string{"--email", "a@b.c"}, io.Discard); err == nil {
		t.Fatal("expected error for grant-only flag on serve")
	}
}

func TestParseOptions_Grant(t *testing.T) {
	opts, err := ParseOptions(CommandGrant, []string{"--email", "pastor@grace.example.org", "--church", "grace-chapel", "--role", "editor"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Grant.Email != "pastor@grace.example.org" || opts.Grant.ChurchSlug != "grace-chapel" {
		t.Errorf("unexpected grant: %+v", opts.Grant)
	}
	if opts.Grant.Role != model.RoleEditor {
		t.Errorf("Role = %q, want editor", opts.Grant.Role)
	}
	if opts.Grant.Admin != nil {
		t.Error("Admin should be nil when --admin is not given")
	}
}

func TestParseOptions_GrantAdminFlag(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want bool
	}{
		{[]string{"--email", "a@b.c", "--admin"}, true},
		{[]string{"--email", "a@b.c", "--admin=false"}, false},
	} {
		opts, err := ParseOptions(CommandGrant, tt.args, io.Discard)
		if err != nil {
			t.Fatalf("ParseOptions(%v): %v", tt.args, err)
		}
		if opts.Grant.Admin == nil || *opts.Grant.Admin != tt.want {
			t.Errorf("ParseOptions(%v).Admin = %v, want %v", tt.args, opts.Grant.Admin, tt.want)
		}
	}
}

func TestParseOptions_GrantValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing email", []string{"--church", "grace-chapel"}},
		{"invalid role", []string{"--email", "a@b.c", "--church", "grace-chapel", "--role", "owner"}},
		{"nothing to grant", []string{"--email", "a@b.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseOptions(CommandGrant, tt.args, io.Discard); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}

	_, err := ParseOptions(CommandGrant, []string{"--email", "a@b.c"}, io.Discard)
	if !errors.Is(err, admin.ErrNothingToGrant) {
		t.Errorf("expected ErrNothingToGrant, got %v", err)
	}
}
