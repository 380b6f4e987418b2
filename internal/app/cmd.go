package app

// Command はバイナリの起動モードを表す。
// 単一バイナリをAPIサーバー・ワーカー・運用コマンドで共用する。
type Command string

const (
	// CommandServe はAPIサーバーモード。
	CommandServe Command = "serve"
	// CommandWorker は決済セッション期限切れワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションの適用。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーへのヘルスチェック。
	// distrolessイメージにはシェルがないためサブコマンドで代用する。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand は第一引数をサブコマンドとして解釈する。
// 引数なし・未知のコマンドはいずれもCommandServeにフォールバックする。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
