package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/hitoshi/sermonhub/internal/admin"
	"github.com/hitoshi/sermonhub/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除を行うワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandGrant はidentityに教会の所属や管理者フラグを付与する。
	CommandGrant Command = "grant"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "grant":
		return CommandGrant
	default:
		return CommandServe
	}
}

// Options はサブコマンド共通のフラグ。
type Options struct {
	// EnvFile が指定された場合、そのファイルを.envとして読み込む。
	EnvFile string
	Grant   admin.GrantRequest
}

// ParseOptions はサブコマンド名以降のフラグを解析する。
// grant以外のコマンドでは--env-fileのみを受け付ける。
func ParseOptions(cmd Command, args []string, output io.Writer) (*Options, error) {
	fs := pflag.NewFlagSet(string(cmd), pflag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	opts := &Options{}
	fs.StringVar(&opts.EnvFile, "env-file", "", "path to a .env file to load before reading the environment")

	var role string
	var isAdmin bool
	if cmd == CommandGrant {
		fs.StringVar(&opts.Grant.Email, "email", "", "email of the identity to grant (required)")
		fs.StringVar(&opts.Grant.ChurchSlug, "church", "", "slug of the church to attach the identity to")
		fs.StringVar(&role, "role", string(model.RoleViewer), "membership role: admin, editor or viewer")
		fs.BoolVar(&isAdmin, "admin", false, "set (or with --admin=false clear) the portal administrator flag")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cmd == CommandGrant {
		if opts.Grant.Email == "" {
			return nil, errors.New("--email is required")
		}
		opts.Grant.Role = model.Role(role)
		if !opts.Grant.Role.Valid() {
			return nil, fmt.Errorf("invalid --role %q", role)
		}
		if fs.Changed("admin") {
			opts.Grant.Admin = &isAdmin
		}
		if opts.Grant.ChurchSlug == "" && opts.Grant.Admin == nil {
			return nil, admin.ErrNothingToGrant
		}
	}
	return opts, nil
}
